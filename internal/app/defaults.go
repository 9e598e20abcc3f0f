package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the default locations of the config file and the data directory.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// LogDir is where operation logs are written by default.
func (p Paths) LogDir() string { return filepath.Join(p.BaseDir, "log") }

// DefaultPaths resolves Paths. Lookup order for each:
//
//	config: STARBASE_CONFIG_PATH, $XDG_CONFIG_HOME/starbase.toml, ~/.config/starbase.toml
//	data:   STARBASE_HOME, $XDG_DATA_HOME/starbase, ~/.local/share/starbase
func DefaultPaths() (Paths, error) {
	configPath, err := resolvePath("STARBASE_CONFIG_PATH", "XDG_CONFIG_HOME", "starbase.toml", ".config")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := resolvePath("STARBASE_HOME", "XDG_DATA_HOME", "starbase", filepath.Join(".local", "share"))
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func resolvePath(overrideEnv, xdgEnv, name, homeSubdir string) (string, error) {
	if p := os.Getenv(overrideEnv); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdgEnv); filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, homeSubdir, name), nil
}
