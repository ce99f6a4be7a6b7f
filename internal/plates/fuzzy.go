package plates

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	// DefaultThreshold is the similarity at or above which two plates match.
	DefaultThreshold = 0.7
	// suggestionWindow widens the threshold for generating suggestions.
	suggestionWindow = 0.2
	maxSuggestions   = 5
)

// confusableGroups are characters commonly misread by OCR on camera captures.
var confusableGroups = [][]rune{
	{'0', 'O', 'D', 'Q'},
	{'I', '1', 'L', 'T'},
	{'5', 'S', 'G'},
	{'B', '8', 'R'},
	{'6', 'G', 'C'},
	{'2', 'Z', 'R'},
}

// confusables maps a character to every character it may be misread as.
var confusables = buildConfusables()

func buildConfusables() map[rune][]rune {
	out := make(map[rune][]rune)
	for _, group := range confusableGroups {
		for _, r := range group {
			for _, alt := range group {
				if alt == r || containsRune(out[r], alt) {
					continue
				}
				out[r] = append(out[r], alt)
			}
		}
	}
	return out
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// Match is the outcome of FuzzyMatch.
type Match struct {
	Suggestions []string `json:"suggestions,omitempty"`
	Similarity  float64  `json:"similarity"`
	IsMatch     bool     `json:"isMatch"`
}

// Similarity returns the normalized Levenshtein similarity of two already
// normalized plates: (maxLen - distance) / maxLen. It is 0 when either side
// is empty.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if a == b {
		return 1
	}

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

// FuzzyMatch compares input against target after normalizing both. When the
// similarity is within suggestionWindow of threshold it also proposes up to
// five single-character OCR corrections of input, closest to target first.
func FuzzyMatch(input, target string, threshold float64) Match {
	in, tg := Normalize(input), Normalize(target)
	sim := Similarity(in, tg)

	m := Match{
		Similarity: sim,
		IsMatch:    sim >= threshold,
	}
	if sim > threshold-suggestionWindow {
		m.Suggestions = suggest(in, tg)
	}
	return m
}

// Suggestions returns every distinct single-substitution variant of a
// normalized plate using the confusable map, in generation order.
func Suggestions(plate string) []string {
	runes := []rune(plate)
	seen := make(map[string]struct{})
	var out []string

	for i, r := range runes {
		for _, alt := range confusables[r] {
			variant := make([]rune, len(runes))
			copy(variant, runes)
			variant[i] = alt
			s := string(variant)
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func suggest(input, target string) []string {
	candidates := Suggestions(input)
	if len(candidates) == 0 {
		return nil
	}

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c] = Similarity(c, target)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})

	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	return candidates
}
