// Package engine implements the cryptographic validation engine used by the
// container library: XML-DSig core validation of XAdES signatures, certificate
// chain and revocation checks against the configured trust anchors, and the
// per-signature simple report.
package engine

import (
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// ErrNoTrustedCertificates is returned when the trust source yields nothing.
var ErrNoTrustedCertificates = errors.New("trust source returned no certificates")

// TrustedListsCertificateSource supplies the certificates trusted by the engine.
type TrustedListsCertificateSource interface {
	Certificates() ([]*x509.Certificate, error)
}

// Configuration is the engine configuration shared by all validations.
// It must not be modified after it has been built.
type Configuration struct {
	// TrustedCertificates are the anchors taken from the trust source.
	TrustedCertificates []*x509.Certificate
	roots               *x509.CertPool

	// Clock supplies the current time for certificate checks.
	Clock clockwork.Clock

	// RequireRevocation makes missing OCSP data an INDETERMINATE result.
	RequireRevocation bool

	// RequireQualified adds a warning when the signer certificate has no
	// QcCompliance statement.
	RequireQualified bool
}

// Roots returns the trust anchors as a certificate pool.
func (c *Configuration) Roots() *x509.CertPool {
	return c.roots
}

// IsTrusted reports whether cert is one of the trust anchors.
func (c *Configuration) IsTrusted(cert *x509.Certificate) bool {
	for _, t := range c.TrustedCertificates {
		if t.Equal(cert) {
			return true
		}
	}
	return false
}

// Options controls how a Configuration is built.
type Options struct {
	Clock             clockwork.Clock
	RequireRevocation bool
	RequireQualified  bool
	// AllowEmptyTrust permits a configuration without anchors; every chain
	// check then ends INDETERMINATE.
	AllowEmptyTrust bool
}

// NewConfiguration builds a configuration seeded from the trust source.
func NewConfiguration(source TrustedListsCertificateSource, opts Options) (*Configuration, error) {
	if source == nil {
		return nil, errors.New("trust source is nil")
	}
	certs, err := source.Certificates()
	if err != nil {
		return nil, fmt.Errorf("failed to load trusted certificates: %w", err)
	}
	if len(certs) == 0 && !opts.AllowEmptyTrust {
		return nil, ErrNoTrustedCertificates
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Configuration{
		TrustedCertificates: certs,
		roots:               pool,
		Clock:               clock,
		RequireRevocation:   opts.RequireRevocation,
		RequireQualified:    opts.RequireQualified,
	}, nil
}

// ConfigurationProvider lazily builds the shared Configuration exactly once.
// Concurrent first callers block until the single build has finished and all
// observe the same result, including a build error.
type ConfigurationProvider struct {
	source TrustedListsCertificateSource
	opts   Options
	build  func(TrustedListsCertificateSource, Options) (*Configuration, error)

	once sync.Once
	conf *Configuration
	err  error
}

// NewConfigurationProvider creates a provider for source.
func NewConfigurationProvider(source TrustedListsCertificateSource, opts Options) *ConfigurationProvider {
	return &ConfigurationProvider{
		source: source,
		opts:   opts,
		build:  NewConfiguration,
	}
}

// NewStaticConfigurationProvider returns a provider that always yields conf.
func NewStaticConfigurationProvider(conf *Configuration) *ConfigurationProvider {
	p := &ConfigurationProvider{conf: conf}
	p.once.Do(func() {})
	return p
}

// Configuration returns the shared configuration, building it on first use.
func (p *ConfigurationProvider) Configuration() (*Configuration, error) {
	p.once.Do(func() {
		p.conf, p.err = p.build(p.source, p.opts)
		if p.err != nil {
			log.Errorf("Failed to build engine configuration: %v", p.err)
			return
		}
		log.Infof("Engine configuration built with %d trusted certificates", len(p.conf.TrustedCertificates))
	})
	return p.conf, p.err
}
