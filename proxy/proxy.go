// Package proxy dispatches validation requests to the service registered for
// the declared document type and serializes the resulting report.
package proxy

import (
	"github.com/huyen-pk/SiVa/document"
	"github.com/huyen-pk/SiVa/exception"
	"github.com/huyen-pk/SiVa/report"
	"github.com/huyen-pk/SiVa/validation"
	log "github.com/sirupsen/logrus"
)

// Registry maps document types to their validation services. It is built at
// startup and only read afterwards.
type Registry map[document.DocumentType]validation.Service

// ValidationProxy is the entry point of the validation core.
type ValidationProxy struct {
	services Registry
}

// NewValidationProxy creates a proxy over services. The registry is copied.
func NewValidationProxy(services Registry) *ValidationProxy {
	r := make(Registry, len(services))
	for t, s := range services {
		r[t] = s
	}
	return &ValidationProxy{services: r}
}

// Validate validates doc and returns the report in the requested protocol.
func (p *ValidationProxy) Validate(doc *document.ProxyDocument) (string, error) {
	svc, err := p.serviceFor(doc.DocumentType)
	if err != nil {
		return "", err
	}
	qr, err := svc.ValidateDocument(document.NewValidationDocument(doc))
	if err != nil {
		return "", err
	}
	if doc.RequestProtocol == document.XML {
		return toXML(qr)
	}
	return toJSON(qr)
}

// Supports reports whether a service is registered for t.
func (p *ValidationProxy) Supports(t document.DocumentType) bool {
	_, ok := p.services[t]
	return ok
}

func (p *ValidationProxy) serviceFor(t document.DocumentType) (validation.Service, error) {
	svc, ok := p.services[t]
	if !ok || svc == nil {
		err := exception.NewServiceNotFound(t.String())
		log.Errorf("%s not found", err.Component)
		return nil, err
	}
	return svc, nil
}

func toJSON(qr *report.QualifiedReport) (string, error) {
	data, err := qr.ToJSON()
	if err != nil {
		log.Errorf("creating json from qualified report failed: %v", err)
		return "", exception.NewReportMarshalling(string(document.JSON), err)
	}
	return string(data), nil
}

func toXML(qr *report.QualifiedReport) (string, error) {
	data, err := qr.ToXML()
	if err != nil {
		log.Errorf("creating xml from qualified report failed: %v", err)
		return "", exception.NewReportMarshalling(string(document.XML), err)
	}
	return string(data), nil
}
