package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"hotel-relay/internal/domain"
	"hotel-relay/internal/types"

	"github.com/go-playground/validator/v10"
)

const maxBodySize = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, types.ErrorResponse{Error: message})
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// Any failure is returned as a *domain.ValidationError.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Message: "invalid request body"}
	}
	if err := validate.Struct(dst); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) *domain.ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.ValidationError{Field: "body", Message: "invalid request body"}
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	case "email":
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("%s must be a valid email address", field)}
	case "datetime":
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("%s must be a date (YYYY-MM-DD)", field)}
	case "min", "max":
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("%s is out of range", field)}
	default:
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("%s is invalid", field)}
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request")
}
