// Package containertest builds signed BDOC and DDOC containers in memory for
// tests. Certificates, OCSP responses and timestamps are issued by a
// throwaway PKI.
package containertest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/huyen-pk/SiVa/engine"
)

// PKIOptions controls the generated certificates.
type PKIOptions struct {
	// SignerCN is the common name of the signer, "TEST SIGNER" by default.
	SignerCN string
	// ECDSA selects a P-256 signer key instead of RSA.
	ECDSA bool
	// Qualified adds the QcCompliance and QcSSCD statements.
	Qualified bool
	// Untrusted issues the signer from a CA outside of the trust source.
	Untrusted bool
}

// PKI is a test certificate hierarchy.
type PKI struct {
	Root    *x509.Certificate
	RootKey crypto.Signer

	// Issuer issued the signer. It is Root unless the PKI is untrusted.
	Issuer    *x509.Certificate
	IssuerKey crypto.Signer

	Signer    *x509.Certificate
	SignerKey crypto.Signer

	TSA    *x509.Certificate
	TSAKey crypto.Signer
}

var serial atomic.Int64

func nextSerial() *big.Int {
	return big.NewInt(1000 + serial.Add(1))
}

// NewPKI creates a root CA, a signer and a timestamping authority.
func NewPKI(opts PKIOptions) (*PKI, error) {
	now := time.Now()
	p := &PKI{}

	var err error
	p.RootKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	rootTemplate := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: "TEST of SiVa Root CA", Country: []string{"EE"}},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	p.Root, err = createCertificate(rootTemplate, rootTemplate, p.RootKey.Public(), p.RootKey)
	if err != nil {
		return nil, err
	}

	p.Issuer, p.IssuerKey = p.Root, p.RootKey
	if opts.Untrusted {
		p.IssuerKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		untrusted := &x509.Certificate{
			SerialNumber:          nextSerial(),
			Subject:               pkix.Name{CommonName: "Untrusted CA"},
			NotBefore:             now.Add(-24 * time.Hour),
			NotAfter:              now.Add(365 * 24 * time.Hour),
			IsCA:                  true,
			BasicConstraintsValid: true,
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		}
		p.Issuer, err = createCertificate(untrusted, untrusted, p.IssuerKey.Public(), p.IssuerKey)
		if err != nil {
			return nil, err
		}
	}

	if opts.ECDSA {
		p.SignerKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	} else {
		p.SignerKey, err = rsa.GenerateKey(rand.Reader, 2048)
	}
	if err != nil {
		return nil, err
	}
	cn := opts.SignerCN
	if cn == "" {
		cn = "TEST SIGNER"
	}
	signerTemplate := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: cn, Country: []string{"EE"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	if opts.Qualified {
		qc, err := engine.MarshalQCStatements(engine.OIDQcCompliance, engine.OIDQcSSCD)
		if err != nil {
			return nil, err
		}
		signerTemplate.ExtraExtensions = []pkix.Extension{{Id: engine.OIDQcStatements, Value: qc}}
	}
	p.Signer, err = createCertificate(signerTemplate, p.Issuer, p.SignerKey.Public(), p.IssuerKey)
	if err != nil {
		return nil, err
	}

	p.TSAKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	tsaTemplate := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: "TEST of SiVa TSA"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
	}
	p.TSA, err = createCertificate(tsaTemplate, p.Root, p.TSAKey.Public(), p.RootKey)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func createCertificate(template, parent *x509.Certificate, pub crypto.PublicKey, priv crypto.Signer) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate %q: %w", template.Subject.CommonName, err)
	}
	return x509.ParseCertificate(der)
}

// TrustSource returns a trust source holding the root CA.
func (p *PKI) TrustSource() engine.TrustedListsCertificateSource {
	return StaticSource{p.Root}
}

// Configuration builds an engine configuration trusting the root CA.
func (p *PKI) Configuration() (*engine.Configuration, error) {
	return engine.NewConfiguration(p.TrustSource(), engine.Options{RequireRevocation: true})
}

// StaticSource is a fixed list of trusted certificates.
type StaticSource []*x509.Certificate

func (s StaticSource) Certificates() ([]*x509.Certificate, error) {
	return s, nil
}
