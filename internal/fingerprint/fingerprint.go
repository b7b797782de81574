// Package fingerprint computes the content hash used to skip no-op writes.
package fingerprint

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dukerupert/eventsync/internal/model"
)

// DefaultDescriptionPrefix is how many description runes feed the hash.
const DefaultDescriptionPrefix = 500

// fieldSep cannot occur in cleaned event text.
const fieldSep = "\x1f"

// Class is the outcome of comparing a fresh hash with the stored one.
type Class int

const (
	Insert Class = iota
	Update
	Unchanged
)

func (c Class) String() string {
	switch c {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// ContentHash hashes, in order: title, the first prefix runes of the
// description, start, end, venue name, url, ticket url, image url and
// categories. Every other field is ignored.
func ContentHash(ev model.CanonicalEvent, prefix int) string {
	if prefix <= 0 {
		prefix = DefaultDescriptionPrefix
	}
	fields := []string{
		ev.Title,
		runePrefix(ev.Description, prefix),
		instant(ev.StartDateTime),
		instant(ev.EndDateTime),
		ev.VenueName(),
		ev.URL,
		ev.TicketURL,
		ev.ImageURL,
		strings.Join(ev.Categories, ","),
	}
	sum := xxhash.Sum64String(strings.Join(fields, fieldSep))
	return strconv.FormatUint(sum, 16)
}

// Classify compares hash with the snapshot entry for id. A missing entry is
// an insert, a different hash an update.
func Classify(snapshot map[string]string, id, hash string) Class {
	prev, ok := snapshot[id]
	switch {
	case !ok:
		return Insert
	case prev != hash:
		return Update
	default:
		return Unchanged
	}
}

func instant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
