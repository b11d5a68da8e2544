package evaluation

import (
	"strings"
	"unicode"

	"github.com/lehigh-university-libraries/lifeindex/internal/models"
)

// Score weights for the overall comparison score
const (
	TitleWeight    = 0.4
	CategoryWeight = 0.4
	TagWeight      = 0.2
)

// FieldMatch describes how one proposed field compares to the confirmed value
type FieldMatch struct {
	Expected string  `yaml:"expected"`
	Actual   string  `yaml:"actual"`
	Score    float64 `yaml:"score"`
	Method   string  `yaml:"method"`
}

// Comparison scores an assist proposal against the metadata a person
// confirmed for the same photo
type Comparison struct {
	Title        FieldMatch `yaml:"title"`
	Category     FieldMatch `yaml:"category"`
	Tags         FieldMatch `yaml:"tags"`
	OverallScore float64    `yaml:"overallscore"`
}

// Compare scores proposal against the confirmed item.
func Compare(item models.Item, proposal models.Proposal) Comparison {
	c := Comparison{
		Title:    compareText(item.Title, proposal.Title),
		Category: compareCategory(item.Category, proposal.Category),
		Tags:     compareTags(item.Tags, proposal.Tags),
	}
	c.OverallScore = c.Title.Score*TitleWeight + c.Category.Score*CategoryWeight + c.Tags.Score*TagWeight
	return c
}

func compareText(expected, actual string) FieldMatch {
	m := FieldMatch{Expected: expected, Actual: actual}
	expNorm := normalizeText(expected)
	actNorm := normalizeText(actual)

	switch {
	case expNorm == "" && actNorm == "":
		m.Score, m.Method = 1.0, "both_missing"
	case expNorm == "":
		m.Score, m.Method = 0.0, "expected_missing"
	case actNorm == "":
		m.Score, m.Method = 0.0, "actual_missing"
	case expNorm == actNorm:
		m.Score, m.Method = 1.0, "exact"
	default:
		m.Score = stringSimilarity(expNorm, actNorm)
		switch {
		case m.Score > 0.9:
			m.Method = "fuzzy_high"
		case m.Score > 0.7:
			m.Method = "fuzzy_medium"
		default:
			m.Method = "no_match"
		}
	}
	return m
}

// compareCategory requires the normalized proposal to equal the confirmed
// category exactly.
func compareCategory(expected, actual string) FieldMatch {
	m := FieldMatch{Expected: expected, Actual: actual, Method: "no_match"}
	if models.NormalizeCategory(actual) == expected {
		m.Score, m.Method = 1.0, "exact"
	}
	return m
}

// compareTags scores the Jaccard index of the two tag sets.
func compareTags(expected models.Tags, actual []string) FieldMatch {
	m := FieldMatch{
		Expected: strings.Join(expected, ", "),
		Actual:   strings.Join(actual, ", "),
	}

	want := tagSet(expected)
	got := tagSet(actual)
	switch {
	case len(want) == 0 && len(got) == 0:
		m.Score, m.Method = 1.0, "both_missing"
		return m
	case len(want) == 0:
		m.Method = "expected_missing"
		return m
	case len(got) == 0:
		m.Method = "actual_missing"
		return m
	}

	shared := 0
	for tag := range got {
		if want[tag] {
			shared++
		}
	}
	union := len(want) + len(got) - shared
	m.Score = float64(shared) / float64(union)

	switch {
	case m.Score == 1.0:
		m.Method = "exact"
	case shared > 0:
		m.Method = "overlap"
	default:
		m.Method = "no_match"
	}
	return m
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if norm := normalizeText(tag); norm != "" {
			set[norm] = true
		}
	}
	return set
}

// normalizeText lowercases, drops punctuation and collapses whitespace.
func normalizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// stringSimilarity calculates similarity between two strings using Levenshtein distance
// Returns a score from 0.0 (completely different) to 1.0 (identical)
func stringSimilarity(s1, s2 string) float64 {
	r1, r2 := []rune(s1), []rune(s2)
	maxLen := max(len(r1), len(r2))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(r1, r2))/float64(maxLen)
}

// levenshteinDistance calculates the Levenshtein distance between two rune slices
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}
