package core

// validation.go holds the value rules shared by issuer and security rows,
// plus the struct validator used on inbound requests.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	isinRegex  = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{10}$`)
)

// ValidEmail reports whether s is an acceptable contact email.
func ValidEmail(s string) bool { return emailRegex.MatchString(s) }

// ValidISIN reports whether s has the ISIN shape: two letters then ten
// letters or digits. The check digit is not verified.
func ValidISIN(s string) bool { return isinRegex.MatchString(s) }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("isin", func(fl validator.FieldLevel) bool {
		return ValidISIN(fl.Field().String())
	})
	_ = v.RegisterValidation("record_type", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "issuer" || s == "security"
	})
	return v
}

// ValidateStruct checks the `validate` tags on v and folds every failure
// into one error.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// Authorize is the single upload permission check: the caller must be a
// named custodian.
func Authorize(p Principal) error {
	if err := ValidateStruct(p); err != nil {
		return unauthorizedError("Unauthorized: %v", err)
	}
	if p.Role != RoleCustodian {
		return unauthorizedError("Unauthorized: only custodians can upload files")
	}
	return nil
}
