package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationError names the offending setting and what is wrong with it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator is a function that validates configuration and returns errors
type Validator func() ValidationErrors

// Validate runs every validator and returns their combined errors, or nil.
func Validate(validators ...Validator) error {
	var all ValidationErrors
	for _, validator := range validators {
		all = append(all, validator()...)
	}
	if all.HasErrors() {
		return all
	}
	return nil
}

// CollectErrors drops the nil entries.
func CollectErrors(errors ...*ValidationError) ValidationErrors {
	var result ValidationErrors
	for _, err := range errors {
		if err != nil {
			result = append(result, *err)
		}
	}
	return result
}

// WhenSet runs validator only if value is not empty.
func WhenSet(value string, validator func() *ValidationError) *ValidationError {
	if value == "" {
		return nil
	}
	return validator()
}

func RequireNonEmpty(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func RequirePositive(field string, value int) *ValidationError {
	if value <= 0 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be positive, got %d", value)}
	}
	return nil
}

func RequirePositiveFloat(field string, value float64) *ValidationError {
	if value <= 0 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be positive, got %g", value)}
	}
	return nil
}

func RequireGreaterThan(field string, value, threshold int) *ValidationError {
	if value <= threshold {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be greater than %d, got %d", threshold, value)}
	}
	return nil
}

func RequireNonNegativeDuration(field string, value time.Duration) *ValidationError {
	if value < 0 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be non-negative, got %v", value)}
	}
	return nil
}

func RequireValidPort(field string, value uint16) *ValidationError {
	if value == 0 {
		return &ValidationError{Field: field, Message: "port must be between 1 and 65535"}
	}
	return nil
}

func RequireOneOf(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("must be one of %v, got %q", allowed, value)}
}

func RequireMinLength(field, value string, minLength int) *ValidationError {
	if len(value) < minLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters, got %d", minLength, len(value))}
	}
	return nil
}

// RequireAddress accepts a 0x-prefixed 20-byte hex address other than zero.
func RequireAddress(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be 0x-prefixed, got %q", value)}
	}
	if !common.IsHexAddress(value) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid address %q", value)}
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return &ValidationError{Field: field, Message: "must not be the zero address"}
	}
	return nil
}
