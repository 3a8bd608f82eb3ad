package cms

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/sitesearch/internal/domain"
)

//go:embed collections.toml
var defaultCollections []byte

// Collection maps one CMS collection onto SearchRecord fields.
type Collection struct {
	Name     string             `toml:"name"`
	Type     domain.ContentType `toml:"type"`
	Category string             `toml:"category"`
	URL      string             `toml:"url"`
	Title    string             `toml:"title"`
	Subtitle string             `toml:"subtitle,omitempty"`
	Image    string             `toml:"image,omitempty"`
	Address  string             `toml:"address,omitempty"`
	Content  []string           `toml:"content"`
	Rich     []string           `toml:"rich,omitempty"`
}

type collectionsFile struct {
	Collections []Collection `toml:"collection"`
}

var placeholderRE = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// DefaultCollections returns the built-in mapping.
func DefaultCollections() ([]Collection, error) {
	return ParseCollections(defaultCollections)
}

// LoadCollections reads a mapping file. An empty path returns the built-in
// mapping.
func LoadCollections(path string) ([]Collection, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCollections()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading collections file: %w", err)
	}
	return ParseCollections(data)
}

// ParseCollections decodes and validates a TOML mapping. Missing categories
// are derived from the type ("annual_report" -> "Annual Report").
func ParseCollections(data []byte) ([]Collection, error) {
	var f collectionsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling collections: %w", err)
	}
	if len(f.Collections) == 0 {
		return nil, errors.New("no collections defined")
	}
	seen := make(map[string]struct{}, len(f.Collections))
	for i := range f.Collections {
		c := &f.Collections[i]
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("collection %q defined twice", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Category == "" {
			c.Category = CategoryLabel(c.Type)
		}
	}
	return f.Collections, nil
}

func (c *Collection) validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errors.New("collection without name")
	}
	t, err := domain.ParseContentType(string(c.Type))
	if err != nil {
		return fmt.Errorf("collection %q: %w", c.Name, err)
	}
	c.Type = t
	if c.URL == "" || c.Title == "" {
		return fmt.Errorf("collection %q: url and title are required", c.Name)
	}
	return nil
}

// Fields lists every CMS field the mapping reads, in first-use order.
func (c Collection) Fields() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(f string) {
		if f == "" {
			return
		}
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	for _, m := range placeholderRE.FindAllStringSubmatch(c.URL, -1) {
		add(m[1])
	}
	add(c.Title)
	add(c.Subtitle)
	add(c.Image)
	add(c.Address)
	for _, f := range c.Content {
		add(f)
	}
	return out
}

// CategoryLabel turns a content type into a display label.
func CategoryLabel(t domain.ContentType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}
