package engine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"
	"time"
)

func certWithQC(t *testing.T, ids ...asn1.ObjectIdentifier) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "QC"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	if len(ids) > 0 {
		value, err := MarshalQCStatements(ids...)
		if err != nil {
			t.Fatal(err)
		}
		template.ExtraExtensions = []pkix.Extension{{Id: OIDQcStatements, Value: value}}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestParseQCStatements(t *testing.T) {
	cert := certWithQC(t, OIDQcCompliance, OIDQcSSCD)
	qc, err := ParseQCStatements(cert)
	if err != nil {
		t.Fatalf("ParseQCStatements() error = %v", err)
	}
	if !qc.HasCompliance() || !qc.HasSSCD() {
		t.Errorf("statements = %v, want compliance and SSCD", qc.IDs)
	}

	if _, err := ParseQCStatements(certWithQC(t)); !errors.Is(err, ErrQCStatementNotFound) {
		t.Errorf("error = %v, want ErrQCStatementNotFound", err)
	}
}

func TestSignatureLevel(t *testing.T) {
	tests := []struct {
		name       string
		cert       *x509.Certificate
		indication string
		want       string
	}{
		{"qes", certWithQC(t, OIDQcCompliance, OIDQcSSCD), IndicationTotalPassed, SignatureLevelQES},
		{"adesqc", certWithQC(t, OIDQcCompliance), IndicationTotalPassed, SignatureLevelAdESqc},
		{"ades", certWithQC(t), IndicationTotalPassed, SignatureLevelAdES},
		{"failed", certWithQC(t, OIDQcCompliance, OIDQcSSCD), IndicationTotalFailed, SignatureLevelNA},
		{"no cert", nil, IndicationTotalPassed, SignatureLevelNA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signatureLevel(tt.cert, tt.indication); got != tt.want {
				t.Errorf("signatureLevel() = %q, want %q", got, tt.want)
			}
		})
	}
}
