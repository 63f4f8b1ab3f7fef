// Package catalog holds the immutable universe of tradeable instruments.
//
// A Catalog is built once (from the embedded default universe or an
// operator-supplied YAML file) and injected into every component that
// needs asset descriptors. There is no package-level mutable state.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atmx/allocation-game/internal/model"
)

var (
	// ErrAssetNotFound is returned when a name is not in the catalog.
	ErrAssetNotFound = errors.New("catalog: asset not found")

	// ErrInvalidAsset is returned when a descriptor violates an invariant
	// (empty name, negative volatility, penalty outside [0,1], ...).
	ErrInvalidAsset = errors.New("catalog: invalid asset descriptor")

	// ErrDuplicateAsset is returned when two descriptors share a name.
	ErrDuplicateAsset = errors.New("catalog: duplicate asset name")
)

//go:embed assets.yaml
var defaultAssets []byte

// Catalog is a read-only, ordered set of asset descriptors keyed by name.
type Catalog struct {
	assets     []model.Asset
	byName     map[string]int
	categories []string
}

type catalogFile struct {
	Assets []model.Asset `yaml:"assets"`
}

// New validates the descriptors and builds a catalog preserving their order.
func New(assets []model.Asset) (*Catalog, error) {
	c := &Catalog{
		assets: make([]model.Asset, 0, len(assets)),
		byName: make(map[string]int, len(assets)),
	}
	seenCategory := make(map[string]bool)

	for _, a := range assets {
		if err := validate(a); err != nil {
			return nil, err
		}
		if _, dup := c.byName[a.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAsset, a.Name)
		}
		c.byName[a.Name] = len(c.assets)
		c.assets = append(c.assets, a)
		if !seenCategory[a.Category] {
			seenCategory[a.Category] = true
			c.categories = append(c.categories, a.Category)
		}
	}
	return c, nil
}

// Parse decodes a YAML document of the form {assets: [...]}.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return New(f.Assets)
}

// Load reads and parses a catalog file from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in universe of seventeen instruments.
func Default() (*Catalog, error) {
	return Parse(defaultAssets)
}

// MustDefault is Default for callers that cannot recover from a broken
// embedded file (tests, command wiring).
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

func validate(a model.Asset) error {
	switch {
	case a.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidAsset)
	case a.Category == "":
		return fmt.Errorf("%w: %q has no category", ErrInvalidAsset, a.Name)
	case a.Volatility < 0 || math.IsNaN(a.Volatility):
		return fmt.Errorf("%w: %q volatility %v", ErrInvalidAsset, a.Name, a.Volatility)
	case a.ExitPenalty < 0 || a.ExitPenalty > 1 || math.IsNaN(a.ExitPenalty):
		return fmt.Errorf("%w: %q exit penalty %v", ErrInvalidAsset, a.Name, a.ExitPenalty)
	case a.Duration < 0:
		return fmt.Errorf("%w: %q duration %v", ErrInvalidAsset, a.Name, a.Duration)
	case a.Lockup < 0:
		return fmt.Errorf("%w: %q lockup %d", ErrInvalidAsset, a.Name, a.Lockup)
	}
	return nil
}

// Len returns the number of instruments.
func (c *Catalog) Len() int { return len(c.assets) }

// All returns every descriptor in catalog order.
func (c *Catalog) All() []model.Asset {
	out := make([]model.Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// Names returns every asset name in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.assets))
	for i, a := range c.assets {
		names[i] = a.Name
	}
	return names
}

// Lookup returns the descriptor for name.
func (c *Catalog) Lookup(name string) (model.Asset, error) {
	i, ok := c.byName[name]
	if !ok {
		return model.Asset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, name)
	}
	return c.assets[i], nil
}

// Contains reports whether name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// ByCategory returns the descriptors of one category in catalog order.
func (c *Catalog) ByCategory(category string) []model.Asset {
	var out []model.Asset
	for _, a := range c.assets {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// Categories returns the distinct categories in order of first appearance.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// Subset resolves names to descriptors, keeping the order of names.
// Any unknown name fails the whole call.
func (c *Catalog) Subset(names []string) ([]model.Asset, error) {
	out := make([]model.Asset, 0, len(names))
	for _, n := range names {
		a, err := c.Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
