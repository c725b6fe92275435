package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/frahmantamala/expense-approval/internal"
)

var (
	once     sync.Once
	validate *validator.Validate

	currencyCodePattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// Validator returns the shared validator. Field names in messages follow the
// json tags so they match what clients send.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("currency_code", func(fl validator.FieldLevel) bool {
			return currencyCodePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s and returns a VALIDATION_ERROR AppError listing every
// failing field, or nil.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error(), apperrors.ErrCodeValidationFailed)
	}

	b := NewBuilder()
	for _, fe := range fieldErrs {
		field := fieldPath(fe)
		b.Add(field, message(field, fe), strings.ToUpper(fe.Tag()))
	}
	return b.Err()
}

// fieldPath drops the root struct name: "RuleDTO.approvers[0].user_id" becomes
// "approvers[0].user_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, fe.Param())
	case "currency_code":
		return fmt.Sprintf("%s must be a 3-letter currency code", field)
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Builder accumulates field errors for checks that struct tags cannot express.
type Builder struct {
	errs []apperrors.ValidationError
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Add(field, message, code string) *Builder {
	b.errs = append(b.errs, apperrors.ValidationError{Field: field, Message: message, Code: code})
	return b
}

func (b *Builder) AddIf(cond bool, field, message, code string) *Builder {
	if cond {
		b.Add(field, message, code)
	}
	return b
}

func (b *Builder) HasErrors() bool {
	return len(b.errs) > 0
}

func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	return apperrors.NewValidationFieldErrors(b.errs...)
}
