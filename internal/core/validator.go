package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"agroalerts/internal/types"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validator wraps go-playground/validator with the domain tags and maps
// failures to AppErrors.
//
// Custom tags:
//   - date: a calendar date in types.DateLayout ("2006-01-02").
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// tagCodes maps validator tags to the error code reported to clients.
var tagCodes = map[string]types.ErrorCode{
	"required":  types.ErrCodeValidationMissingField,
	"latitude":  types.ErrCodeValidationInvalidLat,
	"longitude": types.ErrCodeValidationInvalidLon,
	"date":      types.ErrCodeValidationInvalidDate,
}

// NewValidator creates a Validator and registers the custom tags. Field names
// in errors come from the `query` struct tag, then `json`, then the Go name.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"query", "json"} {
			name, _, _ := strings.Cut(f.Tag.Get(key), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	if err := v.RegisterValidation("date", validateDate); err != nil {
		logger.Error("failed to register validation tag", "tag", "date", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

func validateDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.Parse(types.DateLayout, s)
	return err == nil
}

// ValidateStruct validates s and returns nil or an *types.AppError. The code
// is that of the first failing field; every failure is listed under the
// "validation_errors" detail.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator rejected input type", "type", fmt.Sprintf("%T", s), "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, ValidationError{
			Field:   fe.Field(),
			Code:    string(codeForTag(fe.Tag())),
			Message: messageFor(fe),
		})
	}

	first := fields[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, err,
		map[string]any{"validation_errors": fields})
}

func codeForTag(tag string) types.ErrorCode {
	if code, ok := tagCodes[tag]; ok {
		return code
	}
	return types.ErrCodeValidationInvalidValue
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "latitude":
		return fmt.Sprintf("%s must be a latitude between -90 and 90", fe.Field())
	case "longitude":
		return fmt.Sprintf("%s must be a longitude between -180 and 180", fe.Field())
	case "date":
		return fmt.Sprintf("%s must be a date formatted as YYYY-MM-DD", fe.Field())
	default:
		return fmt.Sprintf("%s failed the %q check", fe.Field(), fe.Tag())
	}
}
