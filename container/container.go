// Package container defines the signature container abstraction used by the
// validation services. Implementations live in the asic and ddoc packages.
package container

import (
	"errors"
	"time"

	"github.com/huyen-pk/SiVa/engine"
)

// Container types.
const (
	TypeBDOC = "BDOC"
	TypeDDOC = "DDOC"
)

// ErrMissingTime is returned when a signature carries no usable time.
var ErrMissingTime = errors.New("signature time not available")

// ErrNotValidated is returned when results are requested before Validate.
var ErrNotValidated = errors.New("container has not been validated")

// DataFile is a signed payload of a container.
type DataFile struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// Container is a parsed signature container.
type Container interface {
	// Type returns the container subtype, e.g. BDOC or DDOC.
	Type() string
	Signatures() []Signature
	DataFiles() []DataFile
	// Validate runs the validation engine over every signature.
	Validate() error
}

// Signature is a signature of a container. Result accessors are only
// meaningful after the container has been validated.
type Signature interface {
	ID() string
	// Profile returns the baseline profile name, e.g. LT or LT_TM.
	Profile() string
	ClaimedSigningTime() (time.Time, error)
	TrustedSigningTime() (time.Time, error)
	// SignerName returns the common name of the signing certificate.
	SignerName() string
	// ReferenceURIs returns the URIs of all signed references.
	ReferenceURIs() []string
	// ValidationReport returns the engine's simple report for the signature.
	ValidationReport() (*engine.SimpleReport, error)
	// ValidateSignature re-runs the signature level checks of the container
	// library and returns its own findings.
	ValidateSignature() (*ValidationResult, error)
}

// ValidationResult holds the findings of the container library.
type ValidationResult struct {
	Errors   []error
	Warnings []error
}

// IsValid reports whether no errors were found.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Builder parses raw bytes into a container.
type Builder interface {
	Build(data []byte, conf *engine.Configuration) (Container, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(data []byte, conf *engine.Configuration) (Container, error)

// Build calls f.
func (f BuilderFunc) Build(data []byte, conf *engine.Configuration) (Container, error) {
	return f(data, conf)
}
