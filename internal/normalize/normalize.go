// Package normalize turns the code-prefixed subject labels of the portal into
// display names and coefficients.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultCoefficient = "1"

// minSegmentLen is the length a hyphen-delimited segment must exceed to be
// taken as a name rather than a code fragment ("STM", "GE", "01").
const minSegmentLen = 3

// trailing "(3)", "- (1,5)", ": (2) (TP)", anchored at the end of the label.
var coefficientSuffix = regexp.MustCompile(`\s*(?:[-–—:]\s*)?\(\s*(\d+(?:[.,]\d+)?)\s*\)\s*(?:\([^()]*\)\s*)?$`)

// "placement" is left out, it is an ordinary word in course names
// ("Calcul des déplacements", "Électronique de placement").
var internshipMarkers = map[string]bool{
	"stage":       true,
	"stages":      true,
	"internship":  true,
	"internships": true,
}

// Normalize derives the display name and coefficient of a raw label.
func Normalize(label string) (name, coefficient string) {
	name, coefficient, _ = Split(label)
	return name, coefficient
}

// Split is Normalize but also reports whether the label carried a coefficient.
func Split(label string) (name, coefficient string, found bool) {
	label = strings.Join(strings.Fields(label), " ")

	rest, coefficient, found := cutCoefficient(label)
	if !found {
		coefficient = defaultCoefficient
	}

	rest = afterColon(rest)
	if !isInternship(label) {
		rest = pickSegment(rest)
	}

	name = strings.TrimSpace(rest)
	if name == "" {
		name = label
	}
	return name, coefficient, found
}

func cutCoefficient(label string) (rest, coefficient string, found bool) {
	loc := coefficientSuffix.FindStringSubmatchIndex(label)
	if loc == nil {
		return label, "", false
	}
	return label[:loc[0]], label[loc[2]:loc[3]], true
}

func afterColon(label string) string {
	_, after, ok := strings.Cut(label, ":")
	if !ok {
		return label
	}
	after = strings.TrimSpace(after)
	if after == "" {
		return label
	}
	return after
}

// isInternship reports whether a whole word of label is an internship marker.
func isInternship(label string) bool {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if internshipMarkers[w] {
			return true
		}
	}
	return false
}

func pickSegment(label string) string {
	if !strings.Contains(label, "-") {
		return label
	}
	segments := strings.Split(label, "-")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	last := segments[len(segments)-1]
	if utf8.RuneCountInString(last) > minSegmentLen {
		return last
	}
	for _, seg := range segments {
		if utf8.RuneCountInString(seg) > minSegmentLen {
			return seg
		}
	}

	_, after, _ := strings.Cut(label, "-")
	after = strings.TrimSpace(after)
	if after == "" {
		return label
	}
	return after
}
