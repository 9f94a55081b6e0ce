package catalog

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// overlayFile is the YAML schema for catalog extension files.
type overlayFile struct {
	Categories []overlayCategory `yaml:"categories"`
}

type overlayCategory struct {
	ID          string   `yaml:"id"`
	Tier        string   `yaml:"tier"`
	Description string   `yaml:"description"`
	Matchers    []string `yaml:"matchers"`
	Rules       []string `yaml:"rules"`
}

// LoadOverlayFile applies a YAML overlay from disk. Adding a category is a
// data change, not a code change.
func (c *Catalog) LoadOverlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog overlay: %w", err)
	}
	if err := c.ApplyOverlay(data); err != nil {
		return fmt.Errorf("catalog overlay %s: %w", path, err)
	}
	return nil
}

// ApplyOverlay merges YAML overlay content into the catalog. An entry whose
// ID matches an existing category replaces it in place; new IDs append in
// file order. The catalog is unchanged when an error is returned.
func (c *Catalog) ApplyOverlay(data []byte) error {
	var file overlayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse overlay: %w", err)
	}

	parsed := make([]Category, 0, len(file.Categories))
	for _, entry := range file.Categories {
		cat, err := entry.toCategory()
		if err != nil {
			return err
		}
		parsed = append(parsed, cat)
	}

	merged := append([]Category(nil), c.categories...)
	for _, cat := range parsed {
		replaced := false
		for i, existing := range merged {
			if existing.ID == cat.ID {
				merged[i] = cat
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, cat)
		}
	}
	c.categories = merged
	return nil
}

func (o overlayCategory) toCategory() (Category, error) {
	if o.ID == "" {
		return Category{}, fmt.Errorf("overlay category missing id")
	}
	tier, ok := ParseTier(o.Tier)
	if !ok {
		return Category{}, fmt.Errorf("category %q: unknown tier %q", o.ID, o.Tier)
	}
	if len(o.Matchers) == 0 {
		return Category{}, fmt.Errorf("category %q: no matchers", o.ID)
	}

	matchers := make([]*regexp.Regexp, 0, len(o.Matchers))
	for _, pattern := range o.Matchers {
		m, err := regexp.Compile(pattern)
		if err != nil {
			return Category{}, fmt.Errorf("category %q: invalid matcher %q: %w", o.ID, pattern, err)
		}
		matchers = append(matchers, m)
	}

	return Category{
		ID:            o.ID,
		Description:   o.Description,
		Tier:          tier,
		Matchers:      matchers,
		RuleTemplates: append([]string(nil), o.Rules...),
	}, nil
}
