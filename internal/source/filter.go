package source

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// categoryExtensions maps a language category to the file extensions it covers.
var categoryExtensions = map[string][]string{
	"python":     {".py"},
	"java":       {".java"},
	"javascript": {".js", ".jsx", ".mjs"},
	"typescript": {".ts", ".tsx"},
	"go":         {".go"},
}

// DefaultCategories are used when a filter names none.
var DefaultCategories = []string{"python", "java", "javascript"}

// DefaultExclude skips test directories at any depth.
var DefaultExclude = []string{"**/tests/**"}

// Categories returns the supported category names, sorted.
func Categories() []string {
	names := make([]string, 0, len(categoryExtensions))
	for name := range categoryExtensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter selects which files of a repository become units.
type Filter struct {
	// Categories limits units to these languages. Empty means DefaultCategories.
	Categories []string

	// Exclude lists doublestar globs matched against unit keys. Nil means
	// DefaultExclude; an empty non-nil slice excludes nothing.
	Exclude []string

	// MaxBytes skips files larger than this. Zero means no limit.
	MaxBytes int64
}

// Matcher is a compiled Filter. It is safe for concurrent use.
type Matcher struct {
	extToCategory map[string]string
	exclude       []string
	maxBytes      int64
}

// Compile validates the filter.
func (f Filter) Compile() (*Matcher, error) {
	categories := f.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	exclude := f.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}
	if f.MaxBytes < 0 {
		return nil, fmt.Errorf("%w: max bytes cannot be negative", ErrInvalidFilter)
	}

	m := &Matcher{
		extToCategory: make(map[string]string),
		maxBytes:      f.MaxBytes,
	}
	for _, c := range categories {
		name := strings.ToLower(strings.TrimSpace(c))
		exts, ok := categoryExtensions[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, c)
		}
		for _, ext := range exts {
			m.extToCategory[ext] = name
		}
	}
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: bad exclude pattern %q", ErrInvalidFilter, pattern)
		}
		m.exclude = append(m.exclude, pattern)
	}
	return m, nil
}

// Match reports whether key is a unit and its category. Hidden paths
// (any segment starting with '.') never match.
func (m *Matcher) Match(key string) (string, bool) {
	if isHidden(key) {
		return "", false
	}
	category, ok := m.extToCategory[strings.ToLower(path.Ext(key))]
	if !ok {
		return "", false
	}
	for _, pattern := range m.exclude {
		if matched, _ := doublestar.Match(pattern, key); matched {
			return "", false
		}
	}
	return category, true
}

// AllowSize reports whether a file of size bytes is within the limit.
func (m *Matcher) AllowSize(size int64) bool {
	return m.maxBytes == 0 || size <= m.maxBytes
}

func isHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
