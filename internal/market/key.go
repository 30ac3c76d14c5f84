package market

import (
	"strings"
)

// DefaultTag is assigned when no variation rule matches.
const DefaultTag = "standard"

// BuildComparisonKey joins an already-normalised reference number with a
// variation tag. The reference is used verbatim.
func BuildComparisonKey(reference, tag string) (string, error) {
	if strings.TrimSpace(reference) == "" {
		return "", &ValidationError{Field: "reference_number", Reason: "must not be empty"}
	}
	if tag == "" {
		return "", &ValidationError{Field: "variation_tag", Reason: "must not be empty"}
	}
	return reference + "-" + tag, nil
}

// SplitComparisonKey splits a key at its last dash. Tags never contain a dash,
// while reference numbers may.
func SplitComparisonKey(key string) (reference, tag string, ok bool) {
	idx := strings.LastIndexByte(key, '-')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}
