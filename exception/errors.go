// Package exception defines the typed failures surfaced by the validation core
// and their mapping onto transport error payloads.
package exception

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the closed set of validation failure categories.
type Kind int

const (
	KindMalformedDocument Kind = iota + 1
	KindServiceNotFound
	KindReportMarshalling
	KindValidationService
)

func (k Kind) String() string {
	switch k {
	case KindMalformedDocument:
		return "MalformedDocument"
	case KindServiceNotFound:
		return "ServiceNotFound"
	case KindReportMarshalling:
		return "ReportMarshalling"
	case KindValidationService:
		return "ValidationService"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is checks against a *ValidationError.
var (
	ErrMalformedDocument = &ValidationError{Kind: KindMalformedDocument}
	ErrServiceNotFound   = &ValidationError{Kind: KindServiceNotFound}
	ErrReportMarshalling = &ValidationError{Kind: KindReportMarshalling}
	ErrValidationService = &ValidationError{Kind: KindValidationService}
)

// ValidationError is a failure of a single validation request.
type ValidationError struct {
	Kind Kind
	// Component names the service responsible for the failure.
	Component string
	// DocumentType is set for ServiceNotFound.
	DocumentType string
	// Protocol is set for ReportMarshalling.
	Protocol string
	Message  string
	Err      error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindMalformedDocument:
		b.WriteString("malformed document")
	case KindServiceNotFound:
		fmt.Fprintf(&b, "%s not found", e.Component)
	case KindReportMarshalling:
		fmt.Fprintf(&b, "creating %s from qualified report failed", strings.ToLower(e.Protocol))
	case KindValidationService:
		b.WriteString("error occurred during validation")
		if e.Component != "" {
			fmt.Fprintf(&b, " in %s", e.Component)
		}
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches any *ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewMalformedDocument wraps a container parsing or subtype failure.
func NewMalformedDocument(message string, err error) *ValidationError {
	return &ValidationError{Kind: KindMalformedDocument, Message: message, Err: err}
}

// NewServiceNotFound reports that no service is registered for documentType.
// The component is the conventional service name "<TYPE>ValidationService".
func NewServiceNotFound(documentType string) *ValidationError {
	return &ValidationError{
		Kind:         KindServiceNotFound,
		Component:    ServiceName(documentType),
		DocumentType: documentType,
	}
}

// NewReportMarshalling reports a serialization failure for protocol.
func NewReportMarshalling(protocol string, err error) *ValidationError {
	return &ValidationError{Kind: KindReportMarshalling, Protocol: protocol, Err: err}
}

// NewValidationServiceError wraps an unexpected failure in service.
func NewValidationServiceError(service string, err error) *ValidationError {
	return &ValidationError{Kind: KindValidationService, Component: service, Err: err}
}

// ServiceName returns the validation service name for a document type.
func ServiceName(documentType string) string {
	return documentType + "ValidationService"
}

// KindOf returns the kind of the first *ValidationError in err's chain, or 0.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// HTTPStatus maps an error onto an HTTP status code. Input errors are 400,
// everything else is 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMalformedDocument, KindServiceNotFound:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
