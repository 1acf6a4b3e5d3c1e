// Package similarity scores how alike two name strings are on a 0-100 scale.
//
// ModeFull compares whole strings and is symmetric. ModePartial returns the
// best score of the shorter string against every equally long window of the
// longer one, so a nickname or truncated name scores 100 against a name that
// contains it.
package similarity

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how two strings are compared.
type Mode string

const (
	ModeFull    Mode = "full"
	ModePartial Mode = "partial"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModePartial:
		return ModePartial, nil
	default:
		return "", fmt.Errorf("unknown similarity mode %q (must be full or partial)", s)
	}
}

// Score returns the similarity of a and b in [0, 100] under mode.
// Unknown modes score as ModeFull.
func Score(a, b string, mode Mode) int {
	if mode == ModePartial {
		return partial([]rune(a), []rune(b))
	}
	return ratio([]rune(a), []rune(b))
}

// Scorer bundles a mode with optional input folding.
type Scorer struct {
	Mode Mode
	// Fold applies Fold to both inputs before scoring.
	Fold bool
}

// Score scores a and b with the scorer's settings.
func (s Scorer) Score(a, b string) int {
	if s.Fold {
		a, b = Fold(a), Fold(b)
	}
	return Score(a, b, s.Mode)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases s, strips diacritics and removes all whitespace, so
// "Zoë  Müller" and "zoemuller" compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// ratio is 100 * (1 - indel/(len(a)+len(b))), rounded, where indel is the
// edit distance with insertions and deletions only.
func ratio(a, b []rune) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	d := indelDistance(a, b)
	return int(math.Round(100 * float64(total-d) / float64(total)))
}

func partial(a, b []rune) int {
	short, long := a, b
	if len(b) < len(a) {
		short, long = b, a
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}

	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if s := ratio(short, long[i:i+len(short)]); s > best {
			best = s
			if best == 100 {
				break
			}
		}
	}
	return best
}

// indelDistance is the Levenshtein distance with substitutions costing 2,
// which equals len(a)+len(b)-2*LCS(a, b).
func indelDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 2
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
