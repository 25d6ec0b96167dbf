package errdigest

import (
	"errors"
	"strings"
)

// Filter decides whether an error is worth capturing. Exclusions win over
// inclusions; an empty include list includes everything not excluded.
//
// A pattern matches an error when it equals the error's full type name
// ("*fs.PathError"), the name without pointer marker ("fs.PathError"), the
// short name ("PathError"), or is a ".Name" suffix of it. Exclusions match
// the returned error only. Inclusions consider every error in the Unwrap
// chain, so wrapping does not hide a matching cause.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter builds a filter, dropping blank patterns.
func NewFilter(include, exclude []string) Filter {
	return Filter{include: clean(include), exclude: clean(exclude)}
}

// Captures reports whether err passes the filter. A nil error never does.
func (f Filter) Captures(err error) bool {
	if err == nil {
		return false
	}

	if matchesAny(f.exclude, []string{TypeName(err)}) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	return matchesAny(f.include, chainNames(err))
}

func chainNames(err error) []string {
	var names []string
	for i := 0; err != nil && i < maxChain; i++ {
		names = append(names, TypeName(err))
		err = errors.Unwrap(err)
	}
	return names
}

func matchesAny(patterns, names []string) bool {
	for _, p := range patterns {
		for _, n := range names {
			if matches(p, n) {
				return true
			}
		}
	}
	return false
}

func matches(pattern, typeName string) bool {
	bare := strings.TrimLeft(typeName, "*")
	switch pattern {
	case typeName, bare, ShortName(typeName):
		return true
	}
	return strings.HasSuffix(bare, "."+strings.TrimLeft(pattern, "*"))
}

func clean(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
