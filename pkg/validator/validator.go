package validator

import (
	"strconv"
	"strings"
)

// ValidationError represents a validation error. Message is a locale key
// the client translates.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// Get returns the first message recorded for field
func (v ValidationErrors) Get(field string) (string, bool) {
	for _, e := range v {
		if e.Field == field {
			return e.Message, true
		}
	}
	return "", false
}

// Required reports whether value has non-whitespace content
func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ParseID parses a positive integer identifier
func ParseID(value string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
