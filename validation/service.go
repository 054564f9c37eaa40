// Package validation implements the per container type validation services.
// A service builds the container, checks that its parsed type is one it
// handles, runs the engine and turns the result into a qualified report.
package validation

import (
	"strings"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/document"
	"github.com/huyen-pk/SiVa/engine"
	"github.com/huyen-pk/SiVa/exception"
	"github.com/huyen-pk/SiVa/report"
	"github.com/huyen-pk/SiVa/validation/qualified"
	"github.com/huyen-pk/SiVa/xmlguard"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Service validates documents of one container type.
type Service interface {
	ValidateDocument(doc *document.ValidationDocument) (*report.QualifiedReport, error)
}

// ConfigurationProvider supplies the shared engine configuration.
type ConfigurationProvider interface {
	Configuration() (*engine.Configuration, error)
}

// ContainerService is the common implementation behind BDOCService and
// DDOCService.
type ContainerService struct {
	name     string
	provider ConfigurationProvider
	builder  container.Builder
	clock    clockwork.Clock

	// guard inspects the raw bytes before the container is built.
	guard func([]byte) error
	// accepts reports whether the parsed container type is handled.
	accepts func(containerType string) bool
}

// Name returns the service name used in errors, e.g. BDOCValidationService.
func (s *ContainerService) Name() string {
	return s.name
}

// ValidateDocument validates doc and builds its qualified report.
func (s *ContainerService) ValidateDocument(doc *document.ValidationDocument) (*report.QualifiedReport, error) {
	conf, err := s.provider.Configuration()
	if err != nil {
		return nil, exception.NewValidationServiceError(s.name, err)
	}

	if s.guard != nil {
		if err := s.guard(doc.Bytes); err != nil {
			log.Errorf("Document %s rejected by XML guard: %v", doc.Name, err)
			return nil, exception.NewMalformedDocument("", err)
		}
	}

	c, err := s.builder.Build(doc.Bytes, conf)
	if err != nil {
		log.Errorf("Unable to create container from validation document %s: %v", doc.Name, err)
		return nil, exception.NewMalformedDocument("", err)
	}
	if !s.accepts(c.Type()) {
		log.Errorf("%s container passed to %s", c.Type(), s.name)
		return nil, exception.NewMalformedDocument(c.Type()+" container is not supported by "+s.name, nil)
	}

	if err := c.Validate(); err != nil {
		log.Errorf("Error occurred during validation in %s: %v", s.name, err)
		return nil, exception.NewValidationServiceError(s.name, err)
	}
	validationTime := s.clock.Now()

	qr, err := qualified.NewReportBuilder(c, doc.Name, validationTime).Build()
	if err != nil {
		log.Errorf("Error occurred during validation in %s: %v", s.name, err)
		return nil, exception.NewValidationServiceError(s.name, err)
	}
	log.WithFields(log.Fields{
		"document":   doc.Name,
		"service":    s.name,
		"signatures": qr.SignaturesCount,
		"valid":      qr.ValidSignaturesCount,
	}).Info("Document validated")
	return qr, nil
}

// BDOCService validates BDOC containers. DDOC containers are rejected even
// when the builder can read them.
type BDOCService struct {
	*ContainerService
}

// NewBDOCService creates the BDOC validation service. A nil clock uses the
// real clock.
func NewBDOCService(provider ConfigurationProvider, builder container.Builder, clock clockwork.Clock) *BDOCService {
	return &BDOCService{&ContainerService{
		name:     exception.ServiceName(string(document.BDOC)),
		provider: provider,
		builder:  builder,
		clock:    clockOrReal(clock),
		accepts: func(t string) bool {
			return !strings.EqualFold(t, container.TypeDDOC)
		},
	}}
}

// DDOCService validates DigiDoc XML containers. Input passes the XML entity
// guard before it is parsed.
type DDOCService struct {
	*ContainerService
}

// NewDDOCService creates the DDOC validation service. A nil clock uses the
// real clock.
func NewDDOCService(provider ConfigurationProvider, builder container.Builder, clock clockwork.Clock) *DDOCService {
	return &DDOCService{&ContainerService{
		name:     exception.ServiceName(string(document.DDOC)),
		provider: provider,
		builder:  builder,
		clock:    clockOrReal(clock),
		guard:    xmlguard.Validate,
		accepts: func(t string) bool {
			return strings.EqualFold(t, container.TypeDDOC)
		},
	}}
}

func clockOrReal(clock clockwork.Clock) clockwork.Clock {
	if clock == nil {
		return clockwork.NewRealClock()
	}
	return clock
}
