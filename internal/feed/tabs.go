package feed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/citizenintel/portal/internal/leadsapi"
	"gopkg.in/yaml.v3"
)

//go:embed tabs.yaml
var defaultTabs []byte

// DefaultTab is selected when no tab is given.
const DefaultTab = "all"

// ErrUnknownTab is returned when a filter names a tab missing from the table.
var ErrUnknownTab = errors.New("feed: unknown tab")

// Tab maps a feed tab to the query parameters it implies.
type Tab struct {
	Name     string `yaml:"name"`
	Priority string `yaml:"priority"`
	Search   string `yaml:"search"`
	Sort     string `yaml:"sort"`
}

// Tabs is an ordered tab table.
type Tabs []Tab

// Lookup returns the tab called name.
func (ts Tabs) Lookup(name string) (Tab, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t, true
		}
	}
	return Tab{}, false
}

// Names lists the tab names in table order.
func (ts Tabs) Names() []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}

// Query translates the filters into one page request. A reserved search
// prefix on the tab replaces whatever the user typed.
func (t Tab) Query(f Filters, page int) leadsapi.ListQuery {
	search := f.Search
	if t.Search != "" {
		search = t.Search
	}
	return leadsapi.ListQuery{
		Limit:        PageSize,
		Offset:       page * PageSize,
		Priority:     t.Priority,
		Search:       search,
		Sort:         t.Sort,
		Category:     f.Category,
		Jurisdiction: f.Jurisdiction,
	}
}

// DefaultTabs returns the built-in tab table.
func DefaultTabs() Tabs {
	ts, err := ParseTabs(defaultTabs)
	if err != nil {
		panic(fmt.Sprintf("feed: built-in tab table: %v", err))
	}
	return ts
}

// LoadTabs reads a tab table from path, or the built-in one when path is
// empty.
func LoadTabs(path string) (Tabs, error) {
	if path == "" {
		return DefaultTabs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tab table: %w", err)
	}
	return ParseTabs(data)
}

// ParseTabs decodes and validates a YAML tab table.
func ParseTabs(data []byte) (Tabs, error) {
	var doc struct {
		Tabs Tabs `yaml:"tabs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tab table: %w", err)
	}

	seen := make(map[string]bool, len(doc.Tabs))
	for i, t := range doc.Tabs {
		switch {
		case t.Name == "":
			return nil, fmt.Errorf("tab %d has no name", i)
		case seen[t.Name]:
			return nil, fmt.Errorf("tab %q defined twice", t.Name)
		case t.Priority != "" && t.Search != "":
			return nil, fmt.Errorf("tab %q sets both priority and search", t.Name)
		}
		seen[t.Name] = true
		if doc.Tabs[i].Sort == "" {
			doc.Tabs[i].Sort = "newest"
		}
	}
	if !seen[DefaultTab] {
		return nil, fmt.Errorf("tab table has no %q tab", DefaultTab)
	}
	return doc.Tabs, nil
}
