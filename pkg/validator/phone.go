package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and a leading +")

	// ErrInvalidLength indicates phone number is outside the E.164 length range
	ErrInvalidLength = errors.New("phone number must have between 8 and 15 digits")
)

// phoneRegex matches an optional leading + followed by digits only
var phoneRegex = regexp.MustCompile(`^\+?\d+$`)

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// PhoneValidator handles phone number validation for escalation contacts
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates an international or national phone number.
// Accepts format: +14155550100 or (415) 555-0100 or 415.555.0100
// Returns sanitized phone number and error if invalid
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	digits := strings.TrimPrefix(sanitized, "+")
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidLength
	}

	return sanitized, nil
}

// Sanitize removes separators from a phone number, keeping a leading +
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.TrimSpace(phone)
	plus := strings.HasPrefix(phone, "+")
	phone = strings.TrimPrefix(phone, "+")

	// Remove spaces, dashes, parentheses, and other common separators
	phone = separatorReplacer.Replace(phone)

	if plus {
		return "+" + phone
	}
	return phone
}

// ValidateMultiple validates multiple phone numbers at once, returning the
// sanitized valid numbers and a map of rejected input to its error
func (v *PhoneValidator) ValidateMultiple(phones []string) ([]string, map[string]error) {
	var valid []string
	rejected := make(map[string]error)
	seen := make(map[string]struct{})

	for _, phone := range phones {
		sanitized, err := v.Validate(phone)
		if err != nil {
			rejected[phone] = err
			continue
		}
		if _, dup := seen[sanitized]; dup {
			continue
		}
		seen[sanitized] = struct{}{}
		valid = append(valid, sanitized)
	}

	return valid, rejected
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
