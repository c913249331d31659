package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/kb/internal/core/domain"
)

var validate = NewValidator()

// NewValidator returns a validator with the permission tag registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return domain.PermissionLevel(fl.Field().String()).IsValid()
	})
	return v
}

// ValidateStruct checks struct tags and reports failures as a
// *domain.ValidationError.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return &domain.ValidationError{Fields: fields}
}
