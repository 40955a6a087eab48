package character

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownCharacter is returned when a slug is not present in a catalog.
	ErrUnknownCharacter = errors.New("unknown character")
	// ErrInvalidSlug is returned by ValidateSlug.
	ErrInvalidSlug = errors.New("invalid character slug")
)

// MaxSlugLength bounds character slugs.
const MaxSlugLength = 100

// ValidateSlug checks that slug is non-empty, at most MaxSlugLength bytes and
// made only of letters, digits, hyphen and underscore. Slugs announced by a
// peer pass through here before they reach a URL or a lookup.
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > MaxSlugLength {
		return fmt.Errorf("%w: length must be 1..%d", ErrInvalidSlug, MaxSlugLength)
	}
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidSlug, slug, r)
		}
	}
	return nil
}

// Catalog supplies character templates by slug. Returned templates are shared
// and must not be mutated.
type Catalog interface {
	// Character returns the template for slug, or an error wrapping ErrUnknownCharacter.
	Character(ctx context.Context, slug string) (*Character, error)
	// Available lists every slug the catalog can supply, sorted.
	Available(ctx context.Context) ([]string, error)
}

// LoadCharacterFromBytes parses a single character template from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Character.
// Postcondition: Returns a validated *Character, or an error.
func LoadCharacterFromBytes(data []byte) (*Character, error) {
	var c Character
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing character YAML: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// BundledCatalog serves templates loaded once from YAML files. All methods
// return synchronously and are safe for concurrent use.
type BundledCatalog struct {
	chars map[string]*Character
}

// NewBundledCatalog builds a catalog from the given templates.
//
// Precondition: every template must pass Validate; slugs must be unique.
func NewBundledCatalog(chars ...*Character) (*BundledCatalog, error) {
	cat := &BundledCatalog{chars: make(map[string]*Character, len(chars))}
	for _, c := range chars {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := cat.chars[c.Slug]; dup {
			return nil, fmt.Errorf("duplicate character slug %q", c.Slug)
		}
		cat.chars[c.Slug] = c
	}
	return cat, nil
}

// LoadBundledCatalog reads every *.yaml file in dir within fsys.
//
// Postcondition: Returns a catalog holding every template, or the first parse
// or validation error annotated with its file name.
func LoadBundledCatalog(fsys fs.FS, dir string) (*BundledCatalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading character dir %q: %w", dir, err)
	}
	var chars []*Character
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		c, err := LoadCharacterFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		chars = append(chars, c)
	}
	return NewBundledCatalog(chars...)
}

// Character implements Catalog.
func (b *BundledCatalog) Character(_ context.Context, slug string) (*Character, error) {
	c, ok := b.chars[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, slug)
	}
	return c, nil
}

// Available implements Catalog.
func (b *BundledCatalog) Available(_ context.Context) ([]string, error) {
	slugs := make([]string, 0, len(b.chars))
	for slug := range b.chars {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, nil
}
