// Package order restores the acquisition order of slice locators from their file names.
package order

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Locator is an opaque reference to one slice image, e.g. "wadouri:https://host/dicoms/3/VHFCT1mm-Ankle (12).dcm/"
type Locator = string

const (
	DefaultPrefix = "VHFCT1mm-Ankle"
	DefaultSuffix = ".dcm"
	wadoScheme    = "wadouri:"
)

// Pattern extracts the acquisition index from a display name
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern builds the "<prefix>(<digits>)<suffix>" pattern, matched case-insensitively.
// Prefix and suffix are literal text.
func NewPattern(prefix, suffix string) Pattern {
	expr := `(?i)^` + regexp.QuoteMeta(prefix) + `\s*\((\d+)\)` + regexp.QuoteMeta(suffix) + `$`
	return Pattern{re: regexp.MustCompile(expr)}
}

// CompilePattern uses a custom expression; it must contain exactly one capture group matching digits
func CompilePattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid slice pattern: %w", err)
	}
	if re.NumSubexp() != 1 {
		return Pattern{}, fmt.Errorf("slice pattern %q must have exactly one capture group, has %d", expr, re.NumSubexp())
	}
	return Pattern{re: re}, nil
}

// ParsePattern prefers expr when set and falls back to prefix and suffix
func ParsePattern(prefix, suffix, expr string) (Pattern, error) {
	if expr != "" {
		return CompilePattern(expr)
	}
	return NewPattern(prefix, suffix), nil
}

// Index returns the acquisition index of a locator, if its display name matches.
// The zero Pattern matches nothing.
func (p Pattern) Index(locator Locator) (int, bool) {
	if p.re == nil {
		return 0, false
	}
	m := p.re.FindStringSubmatch(DisplayName(locator))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// String returns the underlying expression
func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()
}

// DisplayName returns the last path segment of a locator without scheme or trailing slash
func DisplayName(locator Locator) string {
	s := strings.TrimPrefix(locator, wadoScheme)
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		s = u.Path
	}
	s = strings.TrimRight(s, "/")
	name := path.Base(s)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Stats summarizes the last resolution
type Stats struct {
	Matched   int
	Unmatched int
}

// Resolver sorts locators by the index embedded in their names
type Resolver struct {
	pattern Pattern
	log     *slog.Logger
}

// NewResolver creates a resolver for the given pattern
func NewResolver(pattern Pattern) *Resolver {
	return &Resolver{
		pattern: pattern,
		log:     slog.With("c", "order"),
	}
}

// Resolve returns the locators in acquisition order.
//
// The input is first sorted by locator text, so the result does not depend on the
// order the backend listed them in. Matching locators are then sorted by their
// index (ties by text) and placed into the positions matching locators occupied;
// locators that do not match keep their positions. The result is always a
// permutation of the input.
func (r *Resolver) Resolve(locators []Locator) ([]Locator, Stats) {
	out := make([]Locator, len(locators))
	copy(out, locators)
	sort.Strings(out)

	type entry struct {
		index   int
		locator Locator
	}

	var slots []int
	var matched []entry
	for i, l := range out {
		if n, ok := r.pattern.Index(l); ok {
			slots = append(slots, i)
			matched = append(matched, entry{index: n, locator: l})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].index != matched[j].index {
			return matched[i].index < matched[j].index
		}
		return matched[i].locator < matched[j].locator
	})

	for i, slot := range slots {
		out[slot] = matched[i].locator
	}

	stats := Stats{Matched: len(matched), Unmatched: len(out) - len(matched)}
	if stats.Unmatched > 0 {
		r.log.Warn("locators without slice index", "pattern", r.pattern.String(), "matched", stats.Matched, "unmatched", stats.Unmatched)
	}
	return out, stats
}
