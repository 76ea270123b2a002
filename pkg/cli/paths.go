package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the files of an app under its directory, by default
// ~/.giztoy/<app>.
type Paths struct {
	// AppDir is the app directory holding config.yaml and the data
	// directories.
	AppDir string
}

// NewPaths returns the default paths for the given app
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppDir: filepath.Join(home, DefaultBaseDir, appName)}, nil
}

// Paths returns the paths rooted at the directory of the config file, so a
// custom --config keeps its data next to it.
func (c *Config) Paths() *Paths {
	return &Paths{AppDir: c.Dir()}
}

// ConfigFile returns the config file path (<app>/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir, DefaultConfigFile)
}

// DataDir returns the data directory (<app>/data)
func (p *Paths) DataDir() string {
	return filepath.Join(p.AppDir, "data")
}

// HistoryDir returns the chat history database directory (<app>/data/history)
func (p *Paths) HistoryDir() string {
	return filepath.Join(p.DataDir(), "history")
}

// ImageDir returns the generated image directory (<app>/images)
func (p *Paths) ImageDir() string {
	return filepath.Join(p.AppDir, "images")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir(), 0755)
}
