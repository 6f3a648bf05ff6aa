package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the calendar-date format used for achievement dates.
const DateLayout = "2006-01-02"

// MaxDescriptionLength is the maximum achievement description length in runes.
const MaxDescriptionLength = 1000

// MaxUserNameLength is the maximum display name length in runes.
const MaxUserNameLength = 200

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a non-empty list of field failures usable as an error value.
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Field + ": " + ve.Message
	}
	return strings.Join(parts, "; ")
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Err returns the accumulated errors as an error, or nil when there are none.
func (c *Collector) Err() error {
	if !c.HasErrors() {
		return nil
	}
	return Errors(c.errors)
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateDate returns an error unless value is a real YYYY-MM-DD calendar date.
func ValidateDate(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a calendar date (YYYY-MM-DD)",
		}
	}
	return nil
}

// fieldNamePattern restricts top-level document field names.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateFieldName returns an error if name cannot be used as a top-level document field.
func ValidateFieldName(field, name string) *ValidationError {
	if !fieldNamePattern.MatchString(name) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid field name %q", name),
		}
	}
	return nil
}

// ValidateAchievement checks a new achievement's date and description.
func ValidateAchievement(date, description string) error {
	var c Collector
	c.Add(ValidateDate("date", date))
	c.Add(ValidateRequired("description", description))
	c.Add(ValidateUTF8("description", description))
	c.Add(ValidateNoNullBytes("description", description))
	c.Add(ValidateMaxLength("description", strings.TrimSpace(description), MaxDescriptionLength))
	return c.Err()
}

// ValidateUserName checks a display name. Empty names are allowed.
func ValidateUserName(name string) error {
	var c Collector
	c.Add(ValidateUTF8("userName", name))
	c.Add(ValidateNoNullBytes("userName", name))
	c.Add(ValidateMaxLength("userName", name, MaxUserNameLength))
	return c.Err()
}
