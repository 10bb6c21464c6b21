// Package index reads the folder catalog produced by the companion index
// fetcher. Only folder links matter here; everything else in the file is
// carried along untouched.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Index is the top-level catalog document.
type Index struct {
	FetchedAt string `json:"fetched_at"`
	Source    string `json:"source"`
	Links     []Link `json:"links"`
}

// Link is one catalog entry. Type and ID are required; the rest is optional
// naming metadata.
type Link struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	URL       string `json:"url"`
	Label     string `json:"label"`
	GroupHint string `json:"group_hint"`
}

// Load reads and parses the index file.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", path, err)
	}

	return &idx, nil
}

// Group derives the directory name this link mirrors under: the explicit
// group hint, else the label, else a prefix of the folder id. The result is
// always sanitized.
func (l Link) Group() string {
	name := l.GroupHint
	if name == "" {
		name = l.Label
	}
	if name == "" {
		name = l.ID
		if len(name) > 20 {
			name = name[:20]
		}
	}

	return Sanitize(name)
}

// Folders returns the folder links whose derived group matches the filter.
// The filter is a case-insensitive substring; empty matches everything.
func (idx *Index) Folders(filter string) []Link {
	filter = strings.ToLower(filter)

	var out []Link
	for _, l := range idx.Links {
		if l.Type != "folder" || l.ID == "" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(l.Group()), filter) {
			continue
		}
		out = append(out, l)
	}

	return out
}

// Sanitize replaces characters that are unsafe in directory names with
// underscores. The set matches what the index fetcher strips, so group names
// stay stable between the two tools.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		default:
			return r
		}
	}, name)
}
