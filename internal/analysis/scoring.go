package analysis

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// HeuristicAnalyzer is the keyless fallback: a deterministic rule-based
// scorer used in development and as a degradation path when the provider
// is not configured. It is intentionally simple; the provider client is
// the production analyzer.
type HeuristicAnalyzer struct{}

func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

var powerWords = []string{
	"free", "new", "proven", "save", "instant", "exclusive",
	"guaranteed", "limited", "now", "you",
}

var ctaVerbs = []string{
	"get", "start", "try", "buy", "join", "download", "book", "claim",
	"discover", "learn", "shop", "sign",
}

func (a *HeuristicAnalyzer) Analyze(ctx context.Context, copy AdCopy) (*Result, error) {
	score := 50.0
	var suggestions []string

	headline := strings.TrimSpace(copy.Headline)
	hlen := len([]rune(headline))
	switch {
	case hlen == 0:
		score -= 20
		suggestions = append(suggestions, "add a headline")
	case hlen < 20:
		score -= 5
		suggestions = append(suggestions, "headline is short; aim for 20-60 characters")
	case hlen <= 60:
		score += 15
	default:
		score -= 10
		suggestions = append(suggestions, "headline is long; most platforms truncate past 60 characters")
	}

	lower := strings.ToLower(headline + " " + copy.Body)
	matched := 0
	for _, w := range powerWords {
		if strings.Contains(lower, w) {
			matched++
		}
	}
	if matched > 0 {
		score += float64(min(matched, 4)) * 2.5
	} else {
		suggestions = append(suggestions, "no persuasive power words found")
	}

	cta := strings.ToLower(strings.TrimSpace(copy.CTA))
	if cta == "" {
		score -= 15
		suggestions = append(suggestions, "add a call to action")
	} else {
		hasVerb := false
		for _, v := range ctaVerbs {
			if strings.HasPrefix(cta, v) {
				hasVerb = true
				break
			}
		}
		if hasVerb {
			score += 15
		} else {
			score += 5
			suggestions = append(suggestions, "start the call to action with an action verb")
		}
	}

	if shoutingRatio(headline) > 0.5 && hlen > 10 {
		score -= 10
		suggestions = append(suggestions, "avoid all-caps headlines")
	}

	if strings.Count(copy.Headline+copy.Body, "!") > 2 {
		score -= 5
		suggestions = append(suggestions, "reduce exclamation marks")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Result{
		Score:       score,
		Verdict:     verdictFor(score),
		Suggestions: suggestions,
	}, nil
}

func verdictFor(score float64) string {
	switch {
	case score >= 80:
		return fmt.Sprintf("Strong copy (%.0f/100); ready to run.", score)
	case score >= 60:
		return fmt.Sprintf("Decent copy (%.0f/100) with room to improve.", score)
	case score >= 40:
		return fmt.Sprintf("Weak copy (%.0f/100); apply the suggestions before spending budget.", score)
	default:
		return fmt.Sprintf("Poor copy (%.0f/100); rewrite recommended.", score)
	}
}

// shoutingRatio is the fraction of letters that are uppercase.
func shoutingRatio(s string) float64 {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
