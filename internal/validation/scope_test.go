package validation

import "testing"

func TestValidScopeName_Valid(t *testing.T) {
	valids := []string{
		"a",
		"dev",
		"staging",
		"pr-123",
		"eu.prod",
		"blue_green",
		// 64 chars (start/end alnum)
		mkLen("a", 63) + "b",
	}
	for _, v := range valids {
		if !ValidScopeName(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidScopeName_Invalid(t *testing.T) {
	invalids := []string{
		"",          // empty
		"-lead",     // starts with non-alnum
		"trail.",    // ends with non-alnum
		"bad space", // space
		"Prod",      // uppercase
		"a:b",       // colon
		"semi;colon",
		mkLen("a", 65), // > 64
	}
	for _, v := range invalids {
		if ValidScopeName(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

// mkLen builds a string of exactly total chars: prefix followed by 'a' padding.
func mkLen(prefix string, total int) string {
	if total <= len(prefix) {
		return prefix[:total]
	}
	out := make([]byte, total)
	copy(out, []byte(prefix))
	for i := len(prefix); i < total; i++ {
		out[i] = 'a'
	}
	return string(out)
}
