package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	PostContentMin = 3
	PostContentMax = 5000
	MaxMediaIDs    = 20
)

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects field errors. A nil Errors is valid input.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns e as an error, or nil when empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidatePost checks the body of a post creation. Content length is counted in runes.
func ValidatePost(content string, mediaIDs []string) error {
	var errs Errors

	n := utf8.RuneCountInString(strings.TrimSpace(content))
	switch {
	case n < PostContentMin:
		errs = append(errs, FieldError{"content", fmt.Sprintf("must be at least %d characters", PostContentMin)})
	case n > PostContentMax:
		errs = append(errs, FieldError{"content", fmt.Sprintf("must be at most %d characters", PostContentMax)})
	}

	if len(mediaIDs) > MaxMediaIDs {
		errs = append(errs, FieldError{"mediaIds", fmt.Sprintf("at most %d items", MaxMediaIDs)})
	}
	for i, id := range mediaIDs {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, FieldError{fmt.Sprintf("mediaIds[%d]", i), "must be a non-empty string"})
		}
	}
	return errs.Err()
}
