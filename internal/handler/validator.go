package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/seat-ticketing/internal/model"
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
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(msgs, "; "))
}

// RequestValidator is installed as echo's Validator. Field names in errors
// are the JSON names.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(reservationForm, model.ReservationRequest{})
	return &RequestValidator{validate: v}
}

// reservationForm requires exactly one of the manual and auto forms, and one
// ticket user per seat.
func reservationForm(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.ReservationRequest)
	auto := req.TicketCategoryID > 0 || req.TicketCount > 0
	switch {
	case req.Manual() && auto:
		sl.ReportError(req.TicketCategoryID, "ticket_category_id", "TicketCategoryID", "excluded_with_seats", "")
	case !req.Manual() && (req.TicketCategoryID <= 0 || req.TicketCount <= 0):
		sl.ReportError(req.Seats, "seats", "Seats", "seats_or_category", "")
	default:
		want := req.TicketCount
		if req.Manual() {
			want = len(req.Seats)
		}
		if len(req.TicketUserIDs) != want {
			sl.ReportError(req.TicketUserIDs, "ticket_user_ids", "TicketUserIDs", "one_per_seat", "")
		}
	}
}

func (v *RequestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			return translate(errs)
		}
		return err
	}
	return nil
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, err := range errs {
		message := err.Error()
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must have at least %s entries", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "excluded_with_seats":
			message = "choose seats or a ticket category and count, not both"
		case "seats_or_category":
			message = "seats or a ticket category and count are required"
		case "one_per_seat":
			message = "one ticket user is required per seat"
		}
		out = append(out, ValidationError{Field: err.Namespace(), Message: message})
	}
	return out
}
