package security

import (
	"unicode"
	"unicode/utf8"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// TextValidator checks short free-text fields that end up printed on a page
// or stored as record names.
type TextValidator struct {
	MaxRunes      int
	MaxRepetition int
}

func NewTextValidator() *TextValidator {
	return &TextValidator{
		MaxRunes:      120,
		MaxRepetition: 40,
	}
}

// Validate reports the first problem with value. Empty values are valid.
func (v *TextValidator) Validate(field, value string) error {
	if !utf8.ValidString(value) {
		return apperrors.ErrBadRequest.Withf("%s is not valid UTF-8", field)
	}
	if v.MaxRunes > 0 && utf8.RuneCountInString(value) > v.MaxRunes {
		return apperrors.ErrBadRequest.Withf("%s exceeds %d characters", field, v.MaxRunes)
	}
	for _, r := range value {
		if r == 0 || (unicode.IsControl(r) && r != '\t') {
			return apperrors.ErrBadRequest.Withf("%s contains control characters", field)
		}
	}
	if v.MaxRepetition > 0 && hasExcessiveRepetition(value, v.MaxRepetition) {
		return apperrors.ErrBadRequest.Withf("%s repeats one character too often", field)
	}
	return nil
}

// ValidateStampSpec checks the text lines of a stamp.
func (v *TextValidator) ValidateStampSpec(spec domain.StampSpec) error {
	fields := []struct{ name, value string }{
		{"seal_number", spec.SealNumber},
		{"carrier_name", spec.CarrierName},
		{"carrier_company", spec.CarrierCompany},
	}
	for _, f := range fields {
		if err := v.Validate(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	var prev rune
	count := 0
	for i, r := range input {
		if i > 0 && r == prev {
			count++
			if count > maxLen {
				return true
			}
		} else {
			count = 1
		}
		prev = r
	}
	return false
}

func ValidateStampSpec(spec domain.StampSpec) error {
	return NewTextValidator().ValidateStampSpec(spec)
}

func ValidateText(field, value string) error {
	return NewTextValidator().Validate(field, value)
}
