// Package validation checks free-form text stored in credential records.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeInvalidLabel помечает ошибки валидации меток
const TextCodeInvalidLabel = "VALUESET_INVALID_LABEL"

// ValidateLabel checks that a label is a single line of printable text.
// Labels are echoed into terminals and logs, so control characters, escape
// sequences and line breaks are refused.
func ValidateLabel(label string) error {
	if !utf8.ValidString(label) {
		return labelError("label must be valid UTF-8")
	}

	if !IsSingleLine(label) {
		return labelError("label must be a single line")
	}

	if !IsEscapeSafe(label) {
		return labelError("label must not contain control characters or escape sequences")
	}

	return nil
}

// IsSingleLine reports whether s holds no line or paragraph breaks.
func IsSingleLine(s string) bool {
	return !strings.ContainsAny(s, "\n\r\v\f\u0085\u2028\u2029")
}

// IsEscapeSafe reports whether s holds no control characters. ESC (0x1b)
// and the C1 CSI introducer are control characters, so this also rules out
// terminal escape sequences.
func IsEscapeSafe(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) < 0
}

func labelError(message string) error {
	return goerrors.NewValidation("label: validation failed", goerrors.FieldError{
		Field:   "label",
		Message: message,
	}).
		WithTextCode(TextCodeInvalidLabel).
		WithSeverity(goerrors.SeverityError)
}
