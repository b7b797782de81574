// Package textutil cleans the HTML-ish text upstream sources put in titles
// and descriptions.
package textutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`\s+`)

	// "12/31/2025 - " or "12/31/2025 to 01/01/2026 - " at the very start.
	dateRangePrefix = regexp.MustCompile(`^\s*\d{1,2}/\d{1,2}/\d{4}(?:\s*(?:to|-|–)\s*\d{1,2}/\d{1,2}/\d{4})?\s*[-–—:|]\s*`)

	// Connective left behind once a leading title is removed ("<Title> is a party").
	leadingConnective = regexp.MustCompile(`(?i)^(?:is|are|was|will be)\s+`)
)

// blockTags get a separator in place of the tag so adjacent words do not fuse.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "ul": true, "ol": true,
	"tr": true, "td": true, "th": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "section": true, "article": true,
	"header": true, "footer": true, "nav": true, "main": true, "table": true,
}

// DecodeHTMLEntities decodes named, decimal and hex character references.
// Non-breaking spaces are folded to plain spaces.
func DecodeHTMLEntities(s string) string {
	if !strings.Contains(s, "&") {
		return strings.ReplaceAll(s, "\u00a0", " ")
	}
	return strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
}

// StripHTML removes tags, drops script/style bodies, decodes entities in the
// remaining text once, and collapses whitespace.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	return collapse(render(s, ' '))
}

// TextLines renders markup as plain text with one line per block element.
// Empty lines are dropped and each line is whitespace-collapsed.
func TextLines(s string) []string {
	var out []string
	for _, line := range strings.Split(render(s, '\n'), "\n") {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// render writes the text content of s, placing sep at block boundaries.
func render(s string, sep byte) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.ReplaceAll(b.String(), "\u00a0", " ")
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := z.Text()
			if sep == '\n' {
				text = bytes.Map(func(r rune) rune {
					if r == '\n' || r == '\r' {
						return ' '
					}
					return r
				}, text)
			}
			b.Write(text)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && tt == html.StartTagToken {
				skip++
			}
			if blockTags[tag] {
				b.WriteByte(sep)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				b.WriteByte(sep)
			}
		}
	}
}

// tagEntities unescapes only the angle brackets of escaped markup.
var tagEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">")

// CleanDescription produces the stored plain-text description. Escaped markup
// (&lt;p&gt;) is turned back into tags before stripping so it is removed
// rather than kept as literal text; every other entity is decoded exactly
// once by StripHTML. title may be raw and is decoded before comparison.
func CleanDescription(raw, title string) string {
	text := raw
	if strings.Contains(text, "&lt;") {
		text = tagEntities.Replace(text)
	}
	text = StripHTML(text)

	stripped := false
	if loc := dateRangePrefix.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
		stripped = true
	}

	title = collapse(DecodeHTMLEntities(title))
	if title != "" && len(text) >= len(title) && strings.EqualFold(text[:len(title)], title) {
		rest := text[len(title):]
		// Only strip whole-word repetitions.
		if r, _ := utf8.DecodeRuneInString(rest); rest == "" || !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			text = leadingConnective.ReplaceAllString(strings.TrimLeft(rest, " -–—:;,.|"), "")
			stripped = true
		}
	}

	text = strings.TrimLeft(text, " -–—:;,.|*•")
	text = strings.TrimRight(text, " -–—:;,|*•")

	if stripped {
		text = capitalizeFirst(text)
	}
	return text
}

// Truncate shortens s to at most max runes, cutting on a word boundary when
// one is near and marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := max - 3
	if cut < 1 {
		return string(runes[:max])
	}
	out := string(runes[:cut])
	if i := strings.LastIndexByte(out, ' '); i > cut/2 {
		out = out[:i]
	}
	return strings.TrimRight(out, " ,;:-") + "..."
}

// Capitalize upper-cases the first letter of every space-separated word.
func Capitalize(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalizeFirst(w)
	}
	return strings.Join(words, " ")
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
