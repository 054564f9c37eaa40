package container

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/huyen-pk/SiVa/engine"
)

// SignatureError is a finding of the container library about a signature.
type SignatureError struct {
	Message string
}

func (e *SignatureError) Error() string {
	return e.Message
}

// NewSignatureError creates a SignatureError with a formatted message.
func NewSignatureError(format string, args ...interface{}) *SignatureError {
	return &SignatureError{Message: fmt.Sprintf(format, args...)}
}

// XMLSignature implements the format independent part of Signature for
// XML-DSig based signatures. Container implementations embed it.
type XMLSignature struct {
	id      string
	element *etree.Element
	props   *engine.XAdESProperties
	refs    []engine.Reference
	resolve engine.ReferenceResolver

	result *engine.SignatureResult
	report *engine.SimpleReport
}

// NewXMLSignature wraps a ds:Signature element. External references are
// resolved with resolve during validation.
func NewXMLSignature(id string, el *etree.Element, resolve engine.ReferenceResolver) (*XMLSignature, error) {
	props, err := engine.ParseXAdES(el)
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", id, err)
	}
	signedInfo := el.SelectElement("SignedInfo")
	if signedInfo == nil {
		return nil, fmt.Errorf("signature %s: missing SignedInfo", id)
	}
	refs, err := engine.ParseReferences(signedInfo)
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", id, err)
	}
	return &XMLSignature{
		id:      id,
		element: el,
		props:   props,
		refs:    refs,
		resolve: resolve,
	}, nil
}

func (s *XMLSignature) ID() string {
	return s.id
}

// Properties returns the XAdES qualifying properties.
func (s *XMLSignature) Properties() *engine.XAdESProperties {
	return s.props
}

// ReferenceURIs returns the reference URIs as written in the signature.
func (s *XMLSignature) ReferenceURIs() []string {
	uris := make([]string, 0, len(s.refs))
	for _, ref := range s.refs {
		uris = append(uris, ref.URI)
	}
	return uris
}

func (s *XMLSignature) ClaimedSigningTime() (time.Time, error) {
	if s.props.SigningTime.IsZero() {
		return time.Time{}, fmt.Errorf("signature %s: claimed signing time: %w", s.id, ErrMissingTime)
	}
	return s.props.SigningTime, nil
}

// TrustedSigningTime returns the time proven by a timestamp or OCSP response.
func (s *XMLSignature) TrustedSigningTime() (time.Time, error) {
	if s.result == nil {
		return time.Time{}, ErrNotValidated
	}
	if s.result.TrustedTime.IsZero() {
		return time.Time{}, fmt.Errorf("signature %s: trusted signing time: %w", s.id, ErrMissingTime)
	}
	return s.result.TrustedTime, nil
}

func (s *XMLSignature) SignerName() string {
	if s.result != nil && s.result.SigningCertificate != nil {
		return s.result.SigningCertificate.Subject.CommonName
	}
	certs, err := engine.SignatureCertificates(s.element)
	if err != nil || len(certs) == 0 {
		return ""
	}
	return certs[0].Subject.CommonName
}

// Validate runs the engine for this signature and records the result in
// report.
func (s *XMLSignature) Validate(v *engine.Validator, report *engine.SimpleReport) {
	s.result = v.Validate(s.id, s.element, s.resolve)
	s.report = report
	report.Add(s.result)
}

func (s *XMLSignature) ValidationReport() (*engine.SimpleReport, error) {
	if s.report == nil {
		return nil, ErrNotValidated
	}
	return s.report, nil
}

// ValidateSignature returns the engine findings as container library errors.
// The engine warnings are carried over as warnings.
func (s *XMLSignature) ValidateSignature() (*ValidationResult, error) {
	if s.result == nil {
		return nil, ErrNotValidated
	}
	result := &ValidationResult{}
	for _, e := range s.result.Errors {
		result.Errors = append(result.Errors, &SignatureError{Message: e.Content})
	}
	for _, w := range s.result.Warnings {
		result.Warnings = append(result.Warnings, &SignatureError{Message: w.Content})
	}
	return result, nil
}
