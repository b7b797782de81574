package category

import (
	"sort"
	"strings"

	"github.com/dukerupert/eventsync/internal/textutil"
)

// Canonical display labels.
const (
	LiveMusic   = "Live Music"
	Festivals   = "Festivals"
	Family      = "Family"
	Theater     = "Theater"
	ArtsCulture = "Arts & Culture"
	Sports      = "Sports"
	FoodDrink   = "Food & Drink"
	Holidays    = "Holidays"
	Military    = "Military"
	Community   = "Community"
	Outdoors    = "Outdoors"
	Nightlife   = "Nightlife"
	Education   = "Education"
)

// priority is the display order. Labels not listed sort after these,
// alphabetically.
var priority = []string{
	LiveMusic,
	Festivals,
	Family,
	Theater,
	ArtsCulture,
	Sports,
	FoodDrink,
	Holidays,
	Military,
	Community,
	Outdoors,
	Nightlife,
	Education,
}

var rank = func() map[string]int {
	m := make(map[string]int, len(priority))
	for i, p := range priority {
		m[p] = i
	}
	return m
}()

// Normalize maps free-text source tags onto the controlled vocabulary.
// Unmapped tags are kept, capitalized. The result has no duplicates and is
// sorted by display priority.
func Normalize(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		label := Lookup(tag)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	Sort(out)
	return out
}

// Lookup returns the display label for a single tag, or "" for a blank tag.
func Lookup(tag string) string {
	key := strings.ToLower(strings.Join(strings.Fields(tag), " "))
	if key == "" {
		return ""
	}
	if label, ok := exactMatch[key]; ok {
		return label
	}
	return textutil.Capitalize(strings.TrimSpace(tag))
}

// Infer derives labels from free text (usually a title) for sources that
// publish no tags. Matching is case-insensitive substring, ordered
// more-specific first.
func Infer(text string) []string {
	text = strings.ToLower(text)
	if text == "" {
		return nil
	}
	var out []string
	for _, entry := range substringMatches {
		if strings.Contains(text, entry.keyword) {
			out = append(out, entry.category)
		}
	}
	return Normalize(out)
}

// Sort orders labels by display priority in place.
func Sort(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		ri, iKnown := rank[labels[i]]
		rj, jKnown := rank[labels[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return labels[i] < labels[j]
		}
	})
}

var exactMatch = map[string]string{
	// Live Music
	"live music":      LiveMusic,
	"music":           LiveMusic,
	"concert":         LiveMusic,
	"concerts":        LiveMusic,
	"classical music": LiveMusic,
	"classical":       LiveMusic,
	"gospel":          LiveMusic,
	"jazz":            LiveMusic,
	"blues":           LiveMusic,
	"country":         LiveMusic,
	"rock":            LiveMusic,
	"symphony":        LiveMusic,
	"band":            LiveMusic,
	"orchestra":       LiveMusic,

	// Festivals
	"festivals":      Festivals,
	"festival":       Festivals,
	"fair":           Festivals,
	"street fair":    Festivals,
	"celebration":    Festivals,
	"parade":         Festivals,
	"parades":        Festivals,
	"market":         Festivals,
	"farmers market": Festivals,

	// Family
	"family":          Family,
	"kids":            Family,
	"children":        Family,
	"family friendly": Family,
	"family-friendly": Family,
	"all ages":        Family,
	"youth":           Family,

	// Theater
	"theater":         Theater,
	"theatre":         Theater,
	"broadway":        Theater,
	"musical":         Theater,
	"play":            Theater,
	"comedy":          Theater,
	"dance":           Theater,
	"ballet":          Theater,
	"performing arts": Theater,

	// Arts & Culture
	"arts & culture":   ArtsCulture,
	"arts and culture": ArtsCulture,
	"arts":             ArtsCulture,
	"art":              ArtsCulture,
	"museum":           ArtsCulture,
	"exhibit":          ArtsCulture,
	"exhibition":       ArtsCulture,
	"gallery":          ArtsCulture,
	"history":          ArtsCulture,
	"film":             ArtsCulture,

	// Sports
	"sports":     Sports,
	"sport":      Sports,
	"athletics":  Sports,
	"hockey":     Sports,
	"basketball": Sports,
	"football":   Sports,
	"baseball":   Sports,
	"soccer":     Sports,
	"rodeo":      Sports,
	"wrestling":  Sports,
	"run":        Sports,
	"5k":         Sports,

	// Food & Drink
	"food & drink":   FoodDrink,
	"food and drink": FoodDrink,
	"food":           FoodDrink,
	"dining":         FoodDrink,
	"beer":           FoodDrink,
	"wine":           FoodDrink,
	"tasting":        FoodDrink,
	"brewery":        FoodDrink,

	// Holidays
	"holidays":  Holidays,
	"holiday":   Holidays,
	"seasonal":  Holidays,
	"christmas": Holidays,
	"halloween": Holidays,

	// Military
	"military":     Military,
	"mwr":          Military,
	"veterans":     Military,
	"base":         Military,
	"installation": Military,

	// Community
	"community":  Community,
	"civic":      Community,
	"government": Community,
	"meeting":    Community,
	"volunteer":  Community,
	"fundraiser": Community,
	"charity":    Community,

	// Outdoors
	"outdoors":   Outdoors,
	"outdoor":    Outdoors,
	"parks":      Outdoors,
	"recreation": Outdoors,
	"nature":     Outdoors,

	// Nightlife
	"nightlife": Nightlife,
	"bar":       Nightlife,
	"trivia":    Nightlife,
	"karaoke":   Nightlife,

	// Education
	"education": Education,
	"class":     Education,
	"classes":   Education,
	"workshop":  Education,
	"lecture":   Education,
	"library":   Education,
}

var substringMatches = []struct {
	keyword  string
	category string
}{
	{"farmers market", Festivals},
	{"symphony", LiveMusic},
	{"orchestra", LiveMusic},
	{"concert", LiveMusic},
	{"live music", LiveMusic},
	{"jazz", LiveMusic},
	{"festival", Festivals},
	{"fest", Festivals},
	{"parade", Festivals},
	{"kids", Family},
	{"family", Family},
	{"musical", Theater},
	{"theatre", Theater},
	{"theater", Theater},
	{"comedy", Theater},
	{"ballet", Theater},
	{"exhibit", ArtsCulture},
	{"art walk", ArtsCulture},
	{"museum", ArtsCulture},
	{"hockey", Sports},
	{"basketball", Sports},
	{"football", Sports},
	{"baseball", Sports},
	{"rodeo", Sports},
	{" vs ", Sports},
	{" vs. ", Sports},
	{"5k", Sports},
	{"beer", FoodDrink},
	{"wine", FoodDrink},
	{"food truck", FoodDrink},
	{"christmas", Holidays},
	{"holiday", Holidays},
	{"halloween", Holidays},
	{"veterans", Military},
	{"memorial day", Military},
	{"trivia", Nightlife},
	{"karaoke", Nightlife},
	{"workshop", Education},
	{"lecture", Education},
}
