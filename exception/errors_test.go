package exception

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestValidationErrorIs(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := fmt.Errorf("validate: %w", NewMalformedDocument("", cause))

	if !errors.Is(err, ErrMalformedDocument) {
		t.Error("expected errors.Is(err, ErrMalformedDocument)")
	}
	if errors.Is(err, ErrServiceNotFound) {
		t.Error("malformed document must not match ErrServiceNotFound")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if KindOf(err) != KindMalformedDocument {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindMalformedDocument)
	}
}

func TestServiceNotFoundNamesType(t *testing.T) {
	err := NewServiceNotFound("PDF")
	if err.Component != "PDFValidationService" {
		t.Errorf("Component = %q, want %q", err.Component, "PDFValidationService")
	}
	if !strings.Contains(err.Error(), "PDFValidationService not found") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewReportMarshalling("XML", errors.New("boom")), "creating xml from qualified report failed: boom"},
		{NewValidationServiceError("BDOCValidationService", errors.New("boom")), "error occurred during validation in BDOCValidationService: boom"},
		{NewMalformedDocument("DDOC container passed to BDOC validator", nil), "malformed document: DDOC container passed to BDOC validator"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewMalformedDocument("", nil), http.StatusBadRequest},
		{NewServiceNotFound("PDF"), http.StatusBadRequest},
		{NewReportMarshalling("JSON", nil), http.StatusInternalServerError},
		{NewValidationServiceError("x", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestToCustomError(t *testing.T) {
	ce := ToCustomError(NewServiceNotFound("PDF"))
	if ce.Status != http.StatusBadRequest || ce.Code != ServiceNotFound {
		t.Errorf("unexpected payload: %+v", ce)
	}
	if got := ce.Error(); got != "Validation service for document type PDF is not registered" {
		t.Errorf("Error() = %q", got)
	}

	ce = ToCustomError(errors.New("plain"))
	if ce.Status != http.StatusInternalServerError || ce.Code != InternalError {
		t.Errorf("unexpected payload: %+v", ce)
	}

	orig := CustomError{Status: http.StatusBadRequest, Code: BadRequestBody, Message: BadRequestBodyMsg}
	if got := ToCustomError(fmt.Errorf("wrap: %w", orig)); got.Code != BadRequestBody {
		t.Errorf("Code = %q, want %q", got.Code, BadRequestBody)
	}
}
