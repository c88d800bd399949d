package treatment

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the static list of treatment names per type. It is read-only
// after loading.
type Catalog struct {
	names map[Type][]string
	index map[Type]map[string]string
}

// LoadCatalog reads path, or the built-in catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read treatment catalog: %w", err)
	}
	return ParseCatalog(data)
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse treatment catalog: %w", err)
	}

	c := &Catalog{
		names: make(map[Type][]string),
		index: make(map[Type]map[string]string),
	}
	for key, names := range raw {
		t := Type(strings.ToLower(strings.TrimSpace(key)))
		if !t.Valid() {
			return nil, fmt.Errorf("treatment catalog: unknown type %q", key)
		}
		if c.index[t] == nil {
			c.index[t] = make(map[string]string)
		}
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			norm := strings.ToLower(name)
			if _, dup := c.index[t][norm]; dup {
				continue
			}
			c.index[t][norm] = name
			c.names[t] = append(c.names[t], name)
		}
	}
	for _, t := range []Type{TypeMedical, TypeCosmetic} {
		if len(c.names[t]) == 0 {
			return nil, fmt.Errorf("treatment catalog: no names for %s", t)
		}
		sort.Strings(c.names[t])
	}
	return c, nil
}

// Canonical returns the catalog spelling of name for t. Matching ignores
// case and surrounding space.
func (c *Catalog) Canonical(t Type, name string) (string, bool) {
	canon, ok := c.index[t][strings.ToLower(strings.TrimSpace(name))]
	return canon, ok
}

func (c *Catalog) Names(t Type) []string {
	return append([]string(nil), c.names[t]...)
}

// All returns a copy of the catalog keyed by type.
func (c *Catalog) All() map[Type][]string {
	out := make(map[Type][]string, len(c.names))
	for t := range c.names {
		out[t] = c.Names(t)
	}
	return out
}
