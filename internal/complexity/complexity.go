// Package complexity guesses a Big-O label for a piece of source code.
//
// This is keyword matching on the lower-cased text, not analysis: a
// variable named "sorted" counts as sorting and two unrelated loops count
// as nested. The label is informational only.
package complexity

import (
	"regexp"
	"strings"
)

const (
	Constant     = "O(1)"
	Logarithmic  = "O(log n)"
	Linear       = "O(n)"
	Linearithmic = "O(n log n)"
	Quadratic    = "O(n²)"
	Cubic        = "O(n³)"
)

// Rules are evaluated in order; the first match wins.
var rules = []struct {
	pattern *regexp.Regexp
	label   string
}{
	{regexp.MustCompile(`(for|while)[\s\S]*?(for|while)[\s\S]*?(for|while)`), Cubic},
	{regexp.MustCompile(`(for|while)[\s\S]*?(for|while)`), Quadratic},
	{regexp.MustCompile(`sort|quicksort|mergesort|heapsort`), Linearithmic},
	{regexp.MustCompile(`for|while|foreach|map|filter|reduce`), Linear},
	{regexp.MustCompile(`binary.*search|binarysearch`), Logarithmic},
}

// Analyze returns one of the labels above. It never fails.
func Analyze(code string) string {
	lower := strings.ToLower(code)
	for _, r := range rules {
		if r.pattern.MatchString(lower) {
			return r.label
		}
	}
	return Constant
}
