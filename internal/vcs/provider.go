package vcs

import (
	"context"
	"time"
)

// Tree entry types returned by Provider.GetTree.
const (
	EntryBlob = "blob"
	EntryTree = "tree"
)

// RepoRef addresses a remote repository.
type RepoRef struct {
	URL       string
	Namespace string
	Name      string
}

// RemoteBranch is a branch head on the remote.
type RemoteBranch struct {
	Name      string
	SHA       string
	IsDefault bool
}

// TreeEntry is one path of a remote branch tree.
type TreeEntry struct {
	Path string
	Type string // EntryBlob or EntryTree
}

// RemoteFile is a path with its UTF-8 content.
type RemoteFile struct {
	Path    string
	Content string
}

// RemoteCommit describes a commit on the remote.
type RemoteCommit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// PushRequest writes Files and removes Deletions as a single remote commit.
type PushRequest struct {
	Repo         RepoRef
	Branch       string
	Files        []RemoteFile
	Message      string
	Deletions    []string
	CreateBranch bool
}

// PullRequest fetches the files of Branch matching any of Patterns (doublestar globs).
type PullRequest struct {
	Repo     RepoRef
	Branch   string
	Patterns []string
}

// PullResponse is the fetched file set and the commit it was read at.
type PullResponse struct {
	Files  []RemoteFile
	Commit RemoteCommit
}

// Provider is a remote Git host. The reconciler never depends on a provider's wire format.
type Provider interface {
	GetBranches(ctx context.Context, repo RepoRef) ([]RemoteBranch, error)
	GetTree(ctx context.Context, repo RepoRef, branch string) ([]TreeEntry, error)
	PushFiles(ctx context.Context, req PushRequest) (*RemoteCommit, error)
	PullFiles(ctx context.Context, req PullRequest) (*PullResponse, error)
}

// ProviderRegistry resolves provider clients by id and owns their lifecycle.
type ProviderRegistry interface {
	Client(providerID, token string) (Provider, error)
	Close() error
}
