// Package filter implements the stateless, reentrant Filter Engine from
// spec.md §4.2: deciding whether a single DICOM object should be visible
// to a module, given that module's positive and negative filter sets.
package filter

import (
	"log/slog"

	"github.com/oriongate/dicomdispatch/internal/dicom"
)

// Set is a module's filter configuration for one direction (positive or
// negative): a mapping from allow-listed tag name to the regular
// expressions tested against that tag's value.
type Set map[dicom.Tag][]string

// Engine evaluates Matches. It is safe for concurrent use — the regex
// cache is the only shared state, and it is internally synchronized.
type Engine struct {
	cache  *regexCache
	logger *slog.Logger
}

// New builds a Filter Engine with a regex cache sized for the expected
// number of distinct patterns across all loaded modules; 0 picks a
// sensible default.
func New(cacheSize int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cache: newRegexCache(cacheSize), logger: logger}
}

// Matches reports whether obj passes both filter sets, per spec.md §4.2:
//
//   - For every allow-listed tag present as a key in positive: the object
//     must expose that tag, and at least one of its regexes must match the
//     tag's string value. Missing the tag, or matching none of its
//     regexes, rejects the object outright.
//   - For every allow-listed tag present as a key in negative: if the
//     object exposes the tag and any of its regexes match, the object is
//     rejected.
//   - Tag keys outside the allow-list are ignored in both sets.
//   - A pattern that fails to compile never matches anything (it cannot
//     reject via a positive filter's "no regex matched" path only because
//     of a typo elsewhere — each regex is judged independently). It is
//     compiled only once (the failure is cached), but a warning is logged
//     every time it is evaluated.
func (e *Engine) Matches(obj dicom.Object, positive, negative Set) bool {
	for _, tag := range dicom.AllowedTags {
		patterns, ok := positive[tag]
		if !ok {
			continue
		}
		value, present := obj.Value(tag)
		if !present {
			return false
		}
		if !e.anyMatches(patterns, value) {
			return false
		}
	}

	for _, tag := range dicom.AllowedTags {
		patterns, ok := negative[tag]
		if !ok {
			continue
		}
		value, present := obj.Value(tag)
		if !present {
			continue
		}
		if e.anyMatches(patterns, value) {
			return false
		}
	}

	return true
}

func (e *Engine) anyMatches(patterns []string, value string) bool {
	for _, p := range patterns {
		re := e.cache.compile(p)
		if re == nil {
			e.logger.Warn("filter pattern failed to compile, treating as non-matching", "pattern", p)
			continue
		}
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
