// Package catalog provides the fixed, ordered list of plaques served by the API.
// The catalog is loaded once at startup and is read-only afterwards.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed data/plaques.json
var defaultPlaques []byte

// Catalog validation errors.
var (
	ErrInvalidID   = errors.New("plaque id must be positive")
	ErrDuplicateID = errors.New("duplicate plaque id")
	ErrEmptyTitle  = errors.New("plaque title is required")
)

// Plaque is a single catalog entry. The ID is stable and is the join key
// for visit records.
type Plaque struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Location   string `json:"location"`
	Date       string `json:"date"`
	Unveiler   string `json:"unveiler"`
	Sponsor    string `json:"sponsor"`
	CityCentre bool   `json:"city_centre"`
}

// Catalog is an immutable, ordered collection of plaques.
type Catalog struct {
	plaques []Plaque
	index   map[int]int // plaque ID -> position in plaques
}

// New builds a catalog from the given plaques, preserving their order.
// The input slice is copied.
func New(plaques []Plaque) (*Catalog, error) {
	c := &Catalog{
		plaques: make([]Plaque, len(plaques)),
		index:   make(map[int]int, len(plaques)),
	}
	copy(c.plaques, plaques)

	for i, p := range c.plaques {
		if p.ID <= 0 {
			return nil, fmt.Errorf("%w: got %d at position %d", ErrInvalidID, p.ID, i)
		}
		if strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("%w: plaque %d", ErrEmptyTitle, p.ID)
		}
		if _, exists := c.index[p.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
		}
		c.index[p.ID] = i
	}

	return c, nil
}

// Parse decodes a JSON array of plaques into a catalog.
func Parse(data []byte) (*Catalog, error) {
	var plaques []Plaque
	if err := json.Unmarshal(data, &plaques); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return New(plaques)
}

// Load reads a catalog from a JSON file on disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultPlaques)
}

// Plaques returns a copy of the catalog entries in catalog order.
func (c *Catalog) Plaques() []Plaque {
	out := make([]Plaque, len(c.plaques))
	copy(out, c.plaques)
	return out
}

// Get returns the plaque with the given ID.
func (c *Catalog) Get(id int) (Plaque, bool) {
	i, ok := c.index[id]
	if !ok {
		return Plaque{}, false
	}
	return c.plaques[i], true
}

// Contains reports whether the catalog has a plaque with the given ID.
func (c *Catalog) Contains(id int) bool {
	_, ok := c.index[id]
	return ok
}

// Len returns the number of plaques in the catalog.
func (c *Catalog) Len() int {
	return len(c.plaques)
}
