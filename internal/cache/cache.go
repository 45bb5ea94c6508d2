// Package cache provides a filesystem-backed map from local commit nodes to
// the Phabricator revision IDs they were submitted as. It exists to survive
// the window between a successful revision creation and the local amend that
// embeds the marker: a rerun consults the cache instead of creating a
// duplicate revision.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CacheDir is the directory where cache files are stored
const CacheDir = ".cache/moz-review"

// Cache is a filesystem-based identity cache
type Cache struct {
	baseDir string
}

// entry is the on-disk envelope for one binding
type entry struct {
	RevisionID int       `json:"revision_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// New creates a cache rooted in the user's home directory
func New() (*Cache, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewAt(filepath.Join(homeDir, CacheDir))
}

// NewAt creates a cache rooted at the given directory
func NewAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{baseDir: dir}, nil
}

// Get retrieves the revision ID bound to a node. The second return value
// reports whether a binding exists.
func (c *Cache) Get(node string) (int, bool) {
	data, err := os.ReadFile(c.getPath(node))
	if err != nil {
		return 0, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Invalid cache entry, treat as miss
		_ = os.Remove(c.getPath(node))
		return 0, false
	}

	return e.RevisionID, e.RevisionID != 0
}

// Set stores a node to revision binding
func (c *Cache) Set(node string, revisionID int) error {
	e := entry{
		RevisionID: revisionID,
		CreatedAt:  time.Now(),
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := os.WriteFile(c.getPath(node), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// Delete removes the binding for a node, if any
func (c *Cache) Delete(node string) error {
	err := os.Remove(c.getPath(node))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Clear removes all cached bindings
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.baseDir, de.Name())); err != nil {
			return fmt.Errorf("failed to remove cache file: %w", err)
		}
	}

	return nil
}

// getPath returns the file path for a node's binding
func (c *Cache) getPath(node string) string {
	hash := sha256.Sum256([]byte(node))
	return filepath.Join(c.baseDir, hex.EncodeToString(hash[:])+".json")
}
