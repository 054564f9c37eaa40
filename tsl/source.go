package tsl

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/huyen-pk/SiVa/engine"
	"github.com/huyen-pk/SiVa/keys"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Source supplies the trust anchors of a trusted list. When the list is a
// list of the lists, the national lists it points to are loaded as well.
// Source satisfies engine.TrustedListsCertificateSource.
type Source struct {
	// Location is a URL or a file path.
	Location string
	// SignerCertificates verify the list at Location. Without them the list
	// is read unchecked.
	SignerCertificates []*x509.Certificate
	// Territories restricts which pointed lists are loaded. Empty loads all.
	Territories []string
	// ServiceTypes selects the services that become anchors. Nil uses
	// DefaultServiceTypes.
	ServiceTypes []string
	Fetcher      *Fetcher
	Clock        clockwork.Clock
	// Timeout bounds one Certificates call. Zero means no limit.
	Timeout time.Duration
}

// Certificates loads the trusted list and returns its anchors.
func (s *Source) Certificates() ([]*x509.Certificate, error) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.CertificatesContext(ctx)
}

// CertificatesContext is Certificates with a caller supplied context.
func (s *Source) CertificatesContext(ctx context.Context) ([]*x509.Certificate, error) {
	if s.Location == "" {
		return nil, fmt.Errorf("trusted list location is not configured")
	}
	if len(s.SignerCertificates) == 0 {
		log.Warnf("Trusted list %s is loaded without signature verification", s.Location)
	}
	tl, err := s.load(ctx, s.Location, s.SignerCertificates)
	if err != nil {
		return nil, err
	}

	anchors := tl.TrustAnchors(s.ServiceTypes)
	for _, p := range tl.Pointers {
		if p.Location == s.Location || !s.wantTerritory(p.Territory) {
			continue
		}
		entry := log.WithFields(log.Fields{"territory": p.Territory, "location": p.Location})
		if len(p.SignerCertificates) == 0 {
			entry.Warn("Skipping trusted list without signer certificates")
			continue
		}
		child, err := s.load(ctx, p.Location, p.SignerCertificates)
		if err != nil {
			entry.Warnf("Skipping trusted list: %v", err)
			continue
		}
		anchors = append(anchors, child.TrustAnchors(s.ServiceTypes)...)
	}

	anchors = keys.Deduplicate(anchors)
	log.Infof("Loaded %d trust anchors from trusted list %s", len(anchors), s.Location)
	return anchors, nil
}

func (s *Source) load(ctx context.Context, location string, signers []*x509.Certificate) (*TrustedList, error) {
	fetcher := s.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	data, err := fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to load trusted list %s: %w", location, err)
	}

	if len(signers) > 0 {
		signed, signer, err := VerifySignatureWithCandidates(string(data), signers)
		if err != nil {
			return nil, fmt.Errorf("trusted list %s: %w", location, err)
		}
		if signer != nil {
			log.Debugf("Trusted list %s signed by %s", location, signer.Subject.CommonName)
		}
		data = []byte(signed)
	}

	tl, parseErrs, err := Parse(data)
	for _, pe := range parseErrs {
		log.Warnf("Trusted list %s: %v", location, pe)
	}
	if err != nil {
		return nil, fmt.Errorf("trusted list %s: %w", location, err)
	}

	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tl.Expired(clock.Now()) {
		log.Warnf("Trusted list %s of %s expired at %s", location, tl.Territory, tl.NextUpdate.Format(time.RFC3339))
	}
	return tl, nil
}

func (s *Source) wantTerritory(territory string) bool {
	if len(s.Territories) == 0 {
		return true
	}
	for _, t := range s.Territories {
		if strings.EqualFold(t, territory) {
			return true
		}
	}
	return false
}

// MultiSource merges the anchors of several sources. Any failing source
// fails the whole call.
type MultiSource []engine.TrustedListsCertificateSource

func (m MultiSource) Certificates() ([]*x509.Certificate, error) {
	var all []*x509.Certificate
	for _, src := range m {
		certs, err := src.Certificates()
		if err != nil {
			return nil, err
		}
		all = append(all, certs...)
	}
	return keys.Deduplicate(all), nil
}
