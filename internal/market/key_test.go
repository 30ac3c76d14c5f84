package market

import (
	"errors"
	"testing"
)

func TestBuildComparisonKey(t *testing.T) {
	key, err := BuildComparisonKey("1680", "tiffany")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "1680-tiffany" {
		t.Fatalf("expected 1680-tiffany, got %s", key)
	}

	again, _ := BuildComparisonKey("1680", "tiffany")
	if again != key {
		t.Fatalf("key building must be idempotent: %q vs %q", key, again)
	}
}

func TestBuildComparisonKeyDistinguishesTags(t *testing.T) {
	standard, _ := BuildComparisonKey("1680", DefaultTag)
	tiffany, _ := BuildComparisonKey("1680", "tiffany")
	if standard == tiffany {
		t.Fatalf("different tags must yield different keys, both %s", standard)
	}
}

func TestBuildComparisonKeyRejectsEmptyReference(t *testing.T) {
	for _, ref := range []string{"", "   "} {
		_, err := BuildComparisonKey(ref, "standard")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("reference %q: expected validation error, got %v", ref, err)
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "reference_number" {
			t.Fatalf("expected reference_number field, got %#v", err)
		}
	}
}

func TestBuildComparisonKeyRejectsEmptyTag(t *testing.T) {
	if _, err := BuildComparisonKey("1680", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty tag, got %v", err)
	}
}

func TestSplitComparisonKey(t *testing.T) {
	cases := []struct {
		key, ref, tag string
		ok            bool
	}{
		{"1680-tiffany", "1680", "tiffany", true},
		{"116610LN-0001-standard", "116610LN-0001", "standard", true},
		{"nodash", "", "", false},
		{"-standard", "", "", false},
		{"1680-", "", "", false},
	}
	for _, tc := range cases {
		ref, tag, ok := SplitComparisonKey(tc.key)
		if ok != tc.ok || ref != tc.ref || tag != tc.tag {
			t.Errorf("SplitComparisonKey(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.key, ref, tag, ok, tc.ref, tc.tag, tc.ok)
		}
	}
}
