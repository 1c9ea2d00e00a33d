package services

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/storefront/internal/common"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit
	maxNameLength     = 100
)

func validateRegistration(in RegisterInput) error {
	v := common.NewValidationError()

	switch {
	case in.FullName == "":
		v.Add("fullName", "required")
	case len(in.FullName) > maxNameLength:
		v.Add("fullName", "too long")
	}

	if in.Email == "" {
		v.Add("email", "required")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		v.Add("email", "invalid")
	}

	if in.PhoneNumber != "" && !validPhone(in.PhoneNumber) {
		v.Add("phoneNumber", "invalid")
	}

	validateNewPassword(v, "password", "confirmPassword", in.Password, in.ConfirmPassword)
	return v.OrNil()
}

func validateNewPassword(v *common.ValidationError, field, confirmField, password, confirm string) {
	switch {
	case password == "":
		v.Add(field, "required")
	case len(password) < minPasswordLength:
		v.Add(field, "too short")
	case len(password) > maxPasswordLength:
		v.Add(field, "too long")
	}
	if password != confirm {
		v.Add(confirmField, "does not match")
	}
}

// validPhone accepts an optional leading plus followed by 7 to 15 digits,
// ignoring spaces, dashes and parentheses.
func validPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
