package vocabulary

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Item is one vocabulary flashcard.
type Item struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
	Example    string `json:"example,omitempty" yaml:"example,omitempty"`
}

// VisualCard is one icon flashcard.
type VisualCard struct {
	Icon     string `json:"icon" yaml:"icon"`
	Term     string `json:"term" yaml:"term"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Hint     string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Catalog holds the read-only item lists the daily selection draws from.
type Catalog struct {
	Words  []Item       `yaml:"words"`
	Visual []VisualCard `yaml:"visual"`
}

// ErrEmptyCatalog is returned when a catalog has no words to draw from.
var ErrEmptyCatalog = errors.New("vocabulary catalog has no words")

// Default returns the built-in catalog.
func Default() Catalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary catalog: %v", err))
	}
	return c
}

// LoadFile reads a YAML catalog from disk. A file that omits the visual list
// keeps the built-in cards.
func LoadFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(c.Visual) == 0 {
		c.Visual = Default().Visual
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, err
	}
	if err := c.validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) validate() error {
	if len(c.Words) == 0 {
		return ErrEmptyCatalog
	}

	seen := make(map[string]struct{}, len(c.Words))
	for i, item := range c.Words {
		term := strings.TrimSpace(item.Term)
		if term == "" || strings.TrimSpace(item.Definition) == "" {
			return fmt.Errorf("word %d: term and definition are required", i+1)
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("word %d: duplicate term %q", i+1, term)
		}
		seen[key] = struct{}{}
	}

	for i, card := range c.Visual {
		if strings.TrimSpace(card.Icon) == "" || strings.TrimSpace(card.Term) == "" {
			return fmt.Errorf("visual card %d: icon and term are required", i+1)
		}
	}
	return nil
}

// Lookup finds a word by term, ignoring case.
func (c Catalog) Lookup(term string) (Item, bool) {
	term = strings.TrimSpace(term)
	for _, item := range c.Words {
		if strings.EqualFold(item.Term, term) {
			return item, true
		}
	}
	return Item{}, false
}
