package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/classbook/internal/domain"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is every field that failed. It matches domain.ErrInvalidInput.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}

	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(e), strings.Join(msgs, "; "))
}

func (e Errors) Is(target error) bool {
	return target == domain.ErrInvalidInput
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// decimal.Decimal is validated by its numeric value so gte/gt tags apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &Validator{validate: v}
}

// Struct validates s against its `validate` tags.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return translate(verrs)
	}

	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

func translate(verrs validator.ValidationErrors) Errors {
	out := make(Errors, 0, len(verrs))

	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Namespace(),
			Message: message(fe),
		})
	}

	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " element(s)"
	case "max":
		return "must have at most " + fe.Param() + " element(s)"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "failed on " + fe.Tag()
	}
}
