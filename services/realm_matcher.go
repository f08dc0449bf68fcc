// services/realm_matcher.go
package services

import (
	"bufio"
	_ "embed"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RealmAcceptThreshold is the lowest score that is corrected without asking.
const RealmAcceptThreshold = 80

//go:embed realms.txt
var realmList string

// RealmMatch is the best reference realm for some input and its similarity
// score in 0..100.
type RealmMatch struct {
	Realm string
	Score int
}

// RealmMatcher corrects free-text realm names against a fixed reference list.
type RealmMatcher struct {
	realms    []string
	keys      []string
	threshold int
	dmp       *diffmatchpatch.DiffMatchPatch
}

// NewRealmMatcher builds a matcher over realms. List order decides ties.
func NewRealmMatcher(realms []string) *RealmMatcher {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	m := &RealmMatcher{threshold: RealmAcceptThreshold, dmp: dmp}
	for _, r := range realms {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		m.realms = append(m.realms, r)
		m.keys = append(m.keys, foldRealm(r))
	}
	return m
}

// DefaultRealmMatcher matches against the bundled US realm list.
func DefaultRealmMatcher() *RealmMatcher {
	return NewRealmMatcher(BundledRealms())
}

// BundledRealms returns the embedded realm list in file order.
func BundledRealms() []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(realmList))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return out
}

// Realms returns the reference list.
func (m *RealmMatcher) Realms() []string {
	return append([]string(nil), m.realms...)
}

// Correct returns the highest scoring reference realm for input. An empty
// input or an empty list yields a zero match.
func (m *RealmMatcher) Correct(input string) RealmMatch {
	key := foldRealm(input)
	if key == "" {
		return RealmMatch{}
	}

	best := RealmMatch{Score: -1}
	for i, candidate := range m.keys {
		if candidate == key {
			return RealmMatch{Realm: m.realms[i], Score: 100}
		}
		if score := m.similarity(key, candidate); score > best.Score {
			best = RealmMatch{Realm: m.realms[i], Score: score}
		}
	}
	if best.Score < 0 {
		return RealmMatch{}
	}
	return best
}

// Accepts reports whether match is good enough to substitute silently.
func (m *RealmMatcher) Accepts(match RealmMatch) bool {
	return match.Realm != "" && match.Score >= m.threshold
}

// Similarity scores two realm names in 0..100 after folding case, accents
// and whitespace.
func (m *RealmMatcher) Similarity(a, b string) int {
	return m.similarity(foldRealm(a), foldRealm(b))
}

// similarity is 2*M/T*100 where M counts runes the diff keeps equal and T is
// the rune total of both strings.
func (m *RealmMatcher) similarity(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	equal := 0
	for _, d := range m.dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			equal += utf8.RuneCountInString(d.Text)
		}
	}
	return int(math.Round(200 * float64(equal) / float64(total)))
}

func foldRealm(s string) string {
	s = unidecode.Unidecode(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var realmSlugStrip = strings.NewReplacer("'", "", "’", "", "-", "")

// RealmSlug is the profile service form of a realm name: apostrophes and
// hyphens dropped, lower case, spaces as dashes ("Area 52" -> "area-52").
func RealmSlug(realm string) string {
	return slug.Make(realmSlugStrip.Replace(realm))
}

// NormalizeCharacter trims a character name and capitalizes it the way the
// game displays it ("tHRALL" -> "Thrall").
func NormalizeCharacter(name string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(name))
}

// characterKey is the lower-cased form used in profile service URLs.
func characterKey(name string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(name))
}
