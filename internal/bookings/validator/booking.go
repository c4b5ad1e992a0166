package validator

import (
	"errors"
	"fmt"
	"strings"

	"busway/pkg/logger"
	"busway/pkg/model"
	"busway/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) (*BookingValidator, error) {
	v := validator.New()
	if err := v.RegisterValidation("contact_phone", validateContactPhone); err != nil {
		return nil, fmt.Errorf("failed to register contact_phone validation: %w", err)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}, nil
}

func validateContactPhone(fl validator.FieldLevel) bool {
	return sanitizer.NormalizePhone(fl.Field().String()) != ""
}

func (v *BookingValidator) ValidateClaim(req *model.ClaimRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	seen := make(map[string]struct{}, len(req.Passengers))
	for _, p := range req.Passengers {
		if _, dup := seen[p.SeatNumber]; dup {
			return ValidationErrors{
				ValidationError{
					Field:   "Passengers",
					Message: fmt.Sprintf("seat %s requested more than once", p.SeatNumber),
				},
			}
		}
		seen[p.SeatNumber] = struct{}{}
	}

	return nil
}

func (v *BookingValidator) ValidateExtendHold(req *model.ExtendHoldRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "contact_phone":
			message = fmt.Sprintf("%s must be a valid phone number", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
