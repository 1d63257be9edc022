package validation

import "regexp"

// Delivery scope rules (the suffix of the scoped exchange, e.g. "postmesh_events.staging"):
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9_.-].
// - Length 1..64.
// - No colon, whitespace or semicolon: the scope ends up in broker object names.
//
// Examples valid: dev, staging, pr-123, eu.prod, blue_green
// Examples invalid: "", Prod, "bad space", -lead, trail., a:b, 65+ chars.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName returns true if the provided delivery scope matches the allowed pattern.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}
