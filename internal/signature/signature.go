// Package signature holds the recording-software signature table and the matcher.
// Each product (OBS, Bandicam, ...) contributes the executable names it ships.
package signature

import (
	"strings"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// executableExts are stripped from the end of signatures and process keys.
var executableExts = []string{".exe", ".com"}

// Product groups the executables of one recording tool.
type Product struct {
	ID          string
	Name        string
	Executables []string
}

// Table is the immutable signature set. Safe for concurrent reads.
type Table struct {
	products []Product
	raw      []string
	keys     []string
}

// NewTable builds a table from products. Order is kept for display only.
func NewTable(products ...Product) *Table {
	t := &Table{products: products}
	seen := make(map[string]bool)
	for _, p := range products {
		for _, exe := range p.Executables {
			key := Strip(exe)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			t.raw = append(t.raw, strings.ToLower(exe))
			t.keys = append(t.keys, key)
		}
	}
	return t
}

// FromNames builds a table from bare signature strings.
func FromNames(names ...string) *Table {
	return NewTable(Product{ID: "custom", Name: "Custom", Executables: names})
}

// Products returns the products in registration order.
func (t *Table) Products() []Product {
	out := make([]Product, len(t.products))
	copy(out, t.products)
	return out
}

// Signatures returns the lowercase signatures as registered.
func (t *Table) Signatures() []string {
	out := make([]string, len(t.raw))
	copy(out, t.raw)
	return out
}

// Len returns the number of distinct signatures.
func (t *Table) Len() int {
	return len(t.keys)
}

// Strip lower-cases s and removes one trailing executable extension.
func Strip(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, ext := range executableExts {
		if strings.HasSuffix(s, ext) {
			return strings.TrimSuffix(s, ext)
		}
	}
	return s
}

// baseName returns the file name of a Windows or POSIX path.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// matchKey returns the original-case base name and its lowercase comparison key.
func matchKey(p domain.ProcessRecord) (string, string) {
	source := p.Command
	if strings.TrimSpace(source) == "" {
		source = p.Name
	}
	base := baseName(strings.TrimSpace(source))
	return base, strings.ToLower(base)
}

// Matches reports whether key contains any signature. First hit wins.
func (t *Table) Matches(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	for i, sig := range t.keys {
		if strings.Contains(key, sig) {
			return t.raw[i], true
		}
	}
	return "", false
}

// Match returns the processes whose name contains a signature.
// Matching is substring based, so "globs64tool.exe" matches "obs64.exe".
// That false-positive risk is accepted to catch versioned binary names.
func Match(processes []domain.ProcessRecord, table *Table) []domain.ProcessRecord {
	matched := make([]domain.ProcessRecord, 0)
	if table == nil {
		return matched
	}
	for _, p := range processes {
		base, key := matchKey(p)
		if _, ok := table.Matches(key); !ok {
			continue
		}
		command := p.Command
		if command == "" {
			command = base
		}
		matched = append(matched, domain.ProcessRecord{
			Name:    base,
			PID:     p.PID,
			Command: command,
		})
	}
	return matched
}
