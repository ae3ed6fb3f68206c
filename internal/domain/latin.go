package domain

import (
	"regexp"
	"strings"
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	latinShape = regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[a-z\-]+){1,2}$`)
)

// NormalizeLatin lowercases and collapses whitespace; used for matching names.
func NormalizeLatin(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(strings.ToLower(s), " "))
}

// CandidateID derives the candidate key: lowercased, whitespace to underscore.
func CandidateID(latin string) string {
	return spaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(latin)), "_")
}

// CardSlug derives the card key: trimmed, whitespace to dash, lowercased.
func CardSlug(latin string) string {
	return strings.ToLower(spaceRun.ReplaceAllString(strings.TrimSpace(latin), "-"))
}

// PlantID derives the plant_id field stored on cards.
func PlantID(latin string) string {
	return "plant_" + CandidateID(latin)
}

// TitleCaseLatin capitalises the genus and lowercases the rest ("withania Somnifera" -> "Withania somnifera").
func TitleCaseLatin(s string) string {
	parts := strings.Fields(s)
	for i, w := range parts {
		lower := strings.ToLower(w)
		if i == 0 && lower != "" {
			lower = strings.ToUpper(lower[:1]) + lower[1:]
		}
		parts[i] = lower
	}
	return strings.Join(parts, " ")
}

// ValidLatin accepts binomial or trinomial names in title case.
func ValidLatin(s string) bool {
	return latinShape.MatchString(s)
}
