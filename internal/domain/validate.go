package domain

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	customerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
	contactEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.(com|org|net|edu|gov|in)$`)
	mobilePattern       = regexp.MustCompile(`^[0-9]{10}$`)
	gstinPattern        = regexp.MustCompile(`^[0-9A-Z]{15}$`)
	panPattern          = regexp.MustCompile(`^[0-9A-Z]{10}$`)
	codeNamePattern     = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("customername", func(fl validator.FieldLevel) bool {
			return ValidCustomerName(fl.Field().String())
		})
		_ = v.RegisterValidation("contactemail", func(fl validator.FieldLevel) bool {
			return contactEmailPattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("mobile10", func(fl validator.FieldLevel) bool {
			return mobilePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
			return gstinPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("pan", func(fl validator.FieldLevel) bool {
			return panPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("codename", func(fl validator.FieldLevel) bool {
			return codeNamePattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidCustomerName accepts 4 to 20 characters of letters, digits, space, '_'
// and '-', not starting with a digit or a space.
func ValidCustomerName(name string) bool {
	if len(name) < 4 || len(name) > 20 {
		return false
	}
	if !customerNamePattern.MatchString(name) {
		return false
	}
	first := name[0]
	return first != ' ' && (first < '0' || first > '9')
}

func ValidContactEmail(email string) bool {
	return contactEmailPattern.MatchString(strings.TrimSpace(email))
}

// Validate runs struct tags on req and converts failures into a ValidationError
// keyed by json field path.
func Validate(req any) error {
	err := validatorInstance().Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := NewValidationError()
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe), validationMessage(fe))
	}
	return verr
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email", "contactemail":
		return "Enter a valid email address."
	case "customername":
		return "Name must be 4-20 characters, letters, digits, space, _ or -, and cannot start with a digit or space."
	case "codename":
		return "Only letters, digits, space, _ and - are allowed."
	case "mobile10":
		return "Mobile number must be exactly 10 digits."
	case "gstin":
		return "GST number must be 15 characters of digits and capital letters."
	case "pan":
		return "PAN number must be 10 characters of digits and capital letters."
	case "eqfield":
		return "Passwords do not match."
	case "datetime":
		return "Enter a valid date."
	case "min":
		if fe.Kind() == reflect.String {
			return "Must be at least " + fe.Param() + " characters."
		}
		return "Must contain at least " + fe.Param() + " entries."
	case "max":
		if fe.Kind() == reflect.String {
			return "Must be at most " + fe.Param() + " characters."
		}
		return "Must contain at most " + fe.Param() + " entries."
	case "oneof":
		return "Must be one of: " + fe.Param() + "."
	default:
		return "Invalid value."
	}
}
