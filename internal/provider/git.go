package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	"starbase-go/internal/vcs"
)

// Author is the identity written on commits created by a GitProvider.
type Author struct {
	Name  string
	Email string
}

// DefaultAuthor signs commits when no author is configured.
var DefaultAuthor = Author{Name: "Starbase", Email: "starbase@localhost"}

// storageOpener returns the object storage of a repository, creating it if needed.
type storageOpener func(ref vcs.RepoRef) (storage.Storer, error)

// GitProvider is a vcs.Provider over go-git object storage. Commits are built
// directly from blobs and trees, so repositories need no worktree.
type GitProvider struct {
	mu     sync.Mutex
	open   storageOpener
	repos  map[string]*git.Repository
	author Author
	now    func() time.Time
}

func newGitProvider(open storageOpener, author Author) *GitProvider {
	if author.Name == "" {
		author = DefaultAuthor
	}
	return &GitProvider{
		open:   open,
		repos:  make(map[string]*git.Repository),
		author: author,
		now:    time.Now,
	}
}

// repoKey identifies a repository. A URL wins over namespace/name.
func repoKey(ref vcs.RepoRef) string {
	if ref.URL != "" {
		return ref.URL
	}
	if ref.Namespace == "" {
		return ref.Name
	}
	return ref.Namespace + "/" + ref.Name
}

// repository returns the cached repository for ref, initializing it on first use.
// Callers must hold p.mu.
func (p *GitProvider) repository(ref vcs.RepoRef) (*git.Repository, error) {
	key := repoKey(ref)
	if key == "" {
		return nil, fmt.Errorf("repository reference is empty")
	}
	if repo, ok := p.repos[key]; ok {
		return repo, nil
	}

	st, err := p.open(ref)
	if err != nil {
		return nil, fmt.Errorf("opening storage for %s: %w", key, err)
	}
	repo, err := git.Open(st, nil)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.Init(st, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", key, err)
	}
	p.repos[key] = repo
	return repo, nil
}

// GetBranches lists branch heads. The branch HEAD points at is the default.
func (p *GitProvider) GetBranches(ctx context.Context, ref vcs.RepoRef) ([]vcs.RemoteBranch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := p.repository(ref)
	if err != nil {
		return nil, err
	}

	defaultBranch := ""
	if head, err := repo.Storer.Reference(plumbing.HEAD); err == nil && head.Type() == plumbing.SymbolicReference {
		defaultBranch = head.Target().Short()
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	var branches []vcs.RemoteBranch
	err = iter.ForEach(func(r *plumbing.Reference) error {
		name := r.Name().Short()
		branches = append(branches, vcs.RemoteBranch{
			Name:      name,
			SHA:       r.Hash().String(),
			IsDefault: name == defaultBranch,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, ctx.Err()
}

// branchCommit resolves the head commit of branch, or nil if the branch does not exist.
func branchCommit(repo *git.Repository, branch string) (*object.Commit, error) {
	r, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving branch %s: %w", branch, err)
	}
	commit, err := repo.CommitObject(r.Hash())
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", r.Hash(), err)
	}
	return commit, nil
}

func remoteCommit(c *object.Commit) vcs.RemoteCommit {
	return vcs.RemoteCommit{
		SHA:     c.Hash.String(),
		Message: strings.TrimSpace(c.Message),
		Author:  c.Author.Name,
		Date:    c.Author.When.UTC(),
	}
}

// GetTree returns every path of the branch, directories included.
func (p *GitProvider) GetTree(ctx context.Context, ref vcs.RepoRef, branch string) ([]vcs.TreeEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := p.repository(ref)
	if err != nil {
		return nil, err
	}
	commit, err := branchCommit(repo, branch)
	if err != nil {
		return nil, err
	}
	if commit == nil {
		return nil, &vcs.NotFoundError{Resource: "remote branch", Key: branch}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree: %w", err)
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	var entries []vcs.TreeEntry
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walking tree: %w", err)
		}
		entryType := vcs.EntryBlob
		if entry.Mode == filemode.Dir {
			entryType = vcs.EntryTree
		}
		entries = append(entries, vcs.TreeEntry{Path: name, Type: entryType})
	}
	return entries, ctx.Err()
}

// PushFiles writes Files and removes Deletions as one commit on Branch.
func (p *GitProvider) PushFiles(ctx context.Context, req vcs.PushRequest) (*vcs.RemoteCommit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	repo, err := p.repository(req.Repo)
	if err != nil {
		return nil, err
	}

	parent, err := branchCommit(repo, req.Branch)
	if err != nil {
		return nil, err
	}
	if parent == nil && !req.CreateBranch {
		return nil, &vcs.NotFoundError{Resource: "remote branch", Key: req.Branch}
	}

	entries := make(map[string]object.TreeEntry)
	if parent != nil {
		tree, err := parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("loading base tree: %w", err)
		}
		if err := flattenTree(repo, tree, "", entries); err != nil {
			return nil, err
		}
	}

	for _, p := range req.Deletions {
		delete(entries, cleanPath(p))
	}
	for _, f := range req.Files {
		hash, err := writeBlob(repo, []byte(f.Content))
		if err != nil {
			return nil, err
		}
		name := cleanPath(f.Path)
		entries[name] = object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: hash}
	}

	treeHash, err := buildTreeFromEntries(repo, entries)
	if err != nil {
		return nil, err
	}

	sig := object.Signature{Name: p.author.Name, Email: p.author.Email, When: p.now()}
	commit := &object.Commit{
		TreeHash:  treeHash,
		Author:    sig,
		Committer: sig,
		Message:   req.Message,
	}
	if parent != nil {
		commit.ParentHashes = []plumbing.Hash{parent.Hash}
	}
	obj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return nil, fmt.Errorf("encoding commit: %w", err)
	}
	commitHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return nil, fmt.Errorf("storing commit: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(req.Branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, commitHash)); err != nil {
		return nil, fmt.Errorf("updating branch %s: %w", req.Branch, err)
	}
	if err := pointHeadIfUnborn(repo, refName); err != nil {
		return nil, err
	}

	commit.Hash = commitHash
	result := remoteCommit(commit)
	return &result, nil
}

// pointHeadIfUnborn makes the first pushed branch of an empty repository its default.
func pointHeadIfUnborn(repo *git.Repository, branch plumbing.ReferenceName) error {
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err == nil && head.Type() == plumbing.SymbolicReference {
		if _, err := repo.Storer.Reference(head.Target()); err == nil {
			return nil
		}
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch)); err != nil {
		return fmt.Errorf("setting HEAD: %w", err)
	}
	return nil
}

// PullFiles returns the blobs of Branch matching any pattern.
func (p *GitProvider) PullFiles(ctx context.Context, req vcs.PullRequest) (*vcs.PullResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := p.repository(req.Repo)
	if err != nil {
		return nil, err
	}
	commit, err := branchCommit(repo, req.Branch)
	if err != nil {
		return nil, err
	}
	if commit == nil {
		return nil, &vcs.NotFoundError{Resource: "remote branch", Key: req.Branch}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree: %w", err)
	}

	resp := &vcs.PullResponse{Commit: remoteCommit(commit)}
	err = tree.Files().ForEach(func(f *object.File) error {
		if !matchAny(req.Patterns, f.Name) {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		resp.Files = append(resp.Files, vcs.RemoteFile{Path: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(resp.Files, func(i, j int) bool { return resp.Files[i].Path < resp.Files[j].Path })
	return resp, ctx.Err()
}

func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// writeBlob stores content as a blob object.
func writeBlob(repo *git.Repository, content []byte) (plumbing.Hash, error) {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("opening blob writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("writing blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("closing blob writer: %w", err)
	}

	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing blob: %w", err)
	}
	return hash, nil
}

// flattenTree collects every file of tree into entries keyed by full path.
func flattenTree(repo *git.Repository, tree *object.Tree, prefix string, entries map[string]object.TreeEntry) error {
	for _, entry := range tree.Entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = prefix + "/" + entry.Name
		}
		if entry.Mode == filemode.Dir {
			subtree, err := repo.TreeObject(entry.Hash)
			if err != nil {
				return fmt.Errorf("loading subtree %s: %w", fullPath, err)
			}
			if err := flattenTree(repo, subtree, fullPath, entries); err != nil {
				return err
			}
			continue
		}
		entries[fullPath] = object.TreeEntry{Name: fullPath, Mode: entry.Mode, Hash: entry.Hash}
	}
	return nil
}

type treeNode struct {
	dirs  map[string]*treeNode
	files []object.TreeEntry
}

func newTreeNode() *treeNode {
	return &treeNode{dirs: make(map[string]*treeNode)}
}

// buildTreeFromEntries writes nested tree objects for flattened entries and returns the root hash.
func buildTreeFromEntries(repo *git.Repository, entries map[string]object.TreeEntry) (plumbing.Hash, error) {
	root := newTreeNode()
	for fullPath, entry := range entries {
		node := root
		parts := strings.Split(fullPath, "/")
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.dirs[dir]
			if !ok {
				child = newTreeNode()
				node.dirs[dir] = child
			}
			node = child
		}
		node.files = append(node.files, object.TreeEntry{Name: parts[len(parts)-1], Mode: entry.Mode, Hash: entry.Hash})
	}
	return writeTree(repo, root)
}

func writeTree(repo *git.Repository, node *treeNode) (plumbing.Hash, error) {
	treeEntries := append([]object.TreeEntry(nil), node.files...)
	for name, child := range node.dirs {
		hash, err := writeTree(repo, child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		treeEntries = append(treeEntries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}

	// Git orders entries by name, comparing directories as if they ended in "/".
	sort.Slice(treeEntries, func(i, j int) bool {
		a, b := treeEntries[i].Name, treeEntries[j].Name
		if treeEntries[i].Mode == filemode.Dir {
			a += "/"
		}
		if treeEntries[j].Mode == filemode.Dir {
			b += "/"
		}
		return a < b
	})

	obj := repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: treeEntries}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding tree: %w", err)
	}
	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing tree: %w", err)
	}
	return hash, nil
}

var _ vcs.Provider = (*GitProvider)(nil)

// Close drops the open repositories. Filesystem storage stays on disk.
func (p *GitProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repos = make(map[string]*git.Repository)
	return nil
}
