package songs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// SourceBuiltin marks songs that ship with the client bundle.
const SourceBuiltin = "builtin"

// Entry is one song in the manifest.
type Entry struct {
	File     string `json:"file"`
	Title    string `json:"title"`
	Source   string `json:"source"`
	ID       string `json:"id"`
	Duration int    `json:"duration"`
}

// NewEntry builds the manifest entry for a stored song.
func NewEntry(s *Song) Entry {
	return Entry{
		File:     "music/songs/" + s.ID,
		Title:    s.Title,
		Source:   SourceBuiltin,
		ID:       s.ID,
		Duration: s.Duration,
	}
}

// Catalog is the JSON song manifest on disk. Entries written by other tools
// are preserved as-is.
type Catalog struct {
	path string
	mu   sync.Mutex
}

// NewCatalog opens the manifest at path. The file need not exist yet.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Add appends e unless an entry with the same id is already listed. It
// reports whether the manifest changed.
func (c *Catalog) Add(e Entry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.load()
	if err != nil {
		return false, err
	}

	for _, r := range raw {
		var existing struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(r, &existing) == nil && existing.ID == e.ID {
			return false, nil
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("songs: marshal entry: %w", err)
	}
	raw = append(raw, data)

	if err := c.save(raw); err != nil {
		return false, err
	}
	return true, nil
}

// Entries returns the ids and titles known to the manifest. Entries that do
// not match the Entry shape are skipped.
func (c *Catalog) Entries() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.load()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if json.Unmarshal(r, &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (c *Catalog) load() ([]json.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("songs: read manifest: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("songs: parse manifest %s: %w", c.path, err)
	}
	return raw, nil
}

func (c *Catalog) save(raw []json.RawMessage) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("songs: marshal manifest: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("songs: create manifest dir: %w", err)
		}
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("songs: write manifest: %w", err)
	}
	return nil
}
