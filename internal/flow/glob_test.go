package flow

import "testing"

func TestMatchGlobStar(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything", true},
		{"*.example.test", "api.example.test", true},
		{"*.example.test", "example.test", false},
		{"api.*.test", "api.example.test", true},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"EXAMPLE.*", "example.test", true},
	}
	for _, c := range cases {
		if got := matchGlob(c.pattern, c.s); got != c.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}

func TestMatchAnyEmptyMeansMatchAnything(t *testing.T) {
	if !matchAny(nil, "whatever") {
		t.Error("matchAny(nil, ...) should match anything")
	}
	if matchAny([]string{"foo*"}, "bar") {
		t.Error("matchAny should reject a non-matching pattern set")
	}
}
