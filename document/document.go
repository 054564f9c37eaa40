// Package document defines the inputs accepted by the validation proxy and the
// per-request document handed to validation services.
package document

import (
	"fmt"
	"strings"
)

// DocumentType is the container type declared by the client.
type DocumentType string

const (
	PDF  DocumentType = "PDF"
	BDOC DocumentType = "BDOC"
	DDOC DocumentType = "DDOC"
)

// MIME types of the supported container formats.
const (
	MimeTypePDF  = "application/pdf"
	MimeTypeBDOC = "application/vnd.etsi.asic-e+zip"
	MimeTypeDDOC = "application/x-ddoc"
)

var mimeTypes = map[DocumentType]string{
	PDF:  MimeTypePDF,
	BDOC: MimeTypeBDOC,
	DDOC: MimeTypeDDOC,
}

// DocumentTypes returns all declared document types in a stable order.
func DocumentTypes() []DocumentType {
	return []DocumentType{PDF, BDOC, DDOC}
}

// MimeType returns the MIME type mapped to the document type.
func (t DocumentType) MimeType() string {
	return mimeTypes[t]
}

// IsValid reports whether t is one of the declared document types.
func (t DocumentType) IsValid() bool {
	_, ok := mimeTypes[t]
	return ok
}

func (t DocumentType) String() string {
	return string(t)
}

// ParseDocumentType parses a document type name, ignoring case.
func ParseDocumentType(s string) (DocumentType, error) {
	for _, t := range DocumentTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// RequestProtocol selects the wire format of the validation report.
type RequestProtocol string

const (
	JSON RequestProtocol = "JSON"
	XML  RequestProtocol = "XML"
)

// ParseRequestProtocol parses a protocol name, ignoring case. An empty value
// selects JSON.
func ParseRequestProtocol(s string) (RequestProtocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(JSON):
		return JSON, nil
	case string(XML):
		return XML, nil
	default:
		return "", fmt.Errorf("unknown request protocol %q", s)
	}
}

// ProxyDocument is the transport-facing validation request.
type ProxyDocument struct {
	Name            string
	Bytes           []byte
	DocumentType    DocumentType
	RequestProtocol RequestProtocol
}

// ValidationDocument is the document passed to a validation service.
type ValidationDocument struct {
	Name     string
	Bytes    []byte
	MimeType string
}

// NewValidationDocument creates the validation document for a proxy document.
// The MIME type is derived from the declared document type.
func NewValidationDocument(d *ProxyDocument) *ValidationDocument {
	return &ValidationDocument{
		Name:     d.Name,
		Bytes:    d.Bytes,
		MimeType: d.DocumentType.MimeType(),
	}
}
