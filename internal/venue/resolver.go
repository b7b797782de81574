// Package venue matches free-text location strings against the known-venue
// directory.
package venue

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dukerupert/eventsync/internal/model"
)

// minContainLen keeps very short names ("Hall", "Park") from matching
// everything by containment.
const minContainLen = 5

var typeSuffixes = []string{"theater", "theatre", "arena", "stadium", "center", "centre", "complex", "hall", "park"}

type entry struct {
	id       string
	key      string
	stripped string
}

// Resolver resolves venue names. It is built once per sync run and memoizes
// lookups for that run only.
type Resolver struct {
	exact    map[string]string
	stripped map[string]string
	entries  []entry
	cache    map[string]string
}

// NewResolver indexes the canonical names and aliases of every record.
func NewResolver(records []model.VenueRecord) *Resolver {
	r := &Resolver{
		exact:    make(map[string]string),
		stripped: make(map[string]string),
		cache:    make(map[string]string),
	}
	for _, rec := range records {
		names := append([]string{rec.Name}, rec.Aliases...)
		for _, n := range names {
			key := normalize(n)
			if key == "" {
				continue
			}
			if _, dup := r.exact[key]; !dup {
				r.exact[key] = rec.ID
			}
			s := stripType(key)
			if _, dup := r.stripped[s]; s != "" && !dup {
				r.stripped[s] = rec.ID
			}
			r.entries = append(r.entries, entry{id: rec.ID, key: key, stripped: s})
		}
	}
	// Longest names first so "Civic Center Music Hall" wins over "Civic Center".
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].key) > len(r.entries[j].key)
	})
	return r
}

// Resolve returns the venue id for name, or "" when nothing matches.
// Order: exact name/alias, containment, then the same two steps with
// venue-type suffixes and a leading "the" removed.
func (r *Resolver) Resolve(name string) string {
	key := normalize(name)
	if key == "" {
		return ""
	}
	if id, ok := r.cache[key]; ok {
		return id
	}
	id := r.resolve(key)
	r.cache[key] = id
	return id
}

func (r *Resolver) resolve(key string) string {
	if id, ok := r.exact[key]; ok {
		return id
	}
	if id := r.contains(key, func(e entry) string { return e.key }); id != "" {
		return id
	}

	s := stripType(key)
	if s == "" {
		return ""
	}
	if id, ok := r.stripped[s]; ok {
		return id
	}
	return r.contains(s, func(e entry) string { return e.stripped })
}

func (r *Resolver) contains(key string, field func(entry) string) string {
	for _, e := range r.entries {
		known := field(e)
		if len(known) < minContainLen || len(key) < minContainLen {
			continue
		}
		if containsWords(key, known) || containsWords(known, key) {
			return e.id
		}
	}
	return ""
}

// containsWords reports whether needle appears in haystack on word boundaries.
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

func normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "&", " and "))
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '\'' || r == '’' || r == '.':
			return -1
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func stripType(key string) string {
	s := strings.TrimPrefix(key, "the ")
	for _, suffix := range typeSuffixes {
		if strings.HasSuffix(s, " "+suffix) {
			s = strings.TrimSuffix(s, " "+suffix)
			break
		}
	}
	return strings.TrimSpace(s)
}
