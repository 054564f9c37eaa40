package tsl

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/moov-io/signedxml"
)

type testCA struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

func newCA(t *testing.T, cn string) *testCA {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("Failed to generate serial: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn, Country: []string{"EE"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return &testCA{Cert: cert, Key: key}
}

type testService struct {
	Name   string
	Type   string
	Status string
	Certs  []*x509.Certificate
	// RawCert replaces the certificate encoding when set.
	RawCert string
}

type testPointer struct {
	Location  string
	Territory string
	MimeType  string
	Signers   []*x509.Certificate
}

type testList struct {
	Territory  string
	NextUpdate string
	Services   []testService
	Pointers   []testPointer
}

func b64(c *x509.Certificate) string {
	return base64.StdEncoding.EncodeToString(c.Raw)
}

func (l testList) XML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<TrustServiceStatusList xmlns="http://uri.etsi.org/02231/v2#" Id="TrustServiceStatusList" TSLTag="http://uri.etsi.org/19612/TSLTag">`)
	b.WriteString(`<SchemeInformation><TSLVersionIdentifier>5</TSLVersionIdentifier><TSLSequenceNumber>42</TSLSequenceNumber>`)
	b.WriteString(`<SchemeOperatorName><Name xml:lang="et">Tarbijakaitse</Name><Name xml:lang="en">Consumer Protection Authority</Name></SchemeOperatorName>`)
	fmt.Fprintf(&b, `<SchemeTerritory>%s</SchemeTerritory>`, l.Territory)
	if len(l.Pointers) > 0 {
		b.WriteString(`<PointersToOtherTSL>`)
		for _, p := range l.Pointers {
			b.WriteString(`<OtherTSLPointer><ServiceDigitalIdentities>`)
			for _, c := range p.Signers {
				fmt.Fprintf(&b, `<ServiceDigitalIdentity><DigitalId><X509Certificate>%s</X509Certificate></DigitalId></ServiceDigitalIdentity>`, b64(c))
			}
			fmt.Fprintf(&b, `</ServiceDigitalIdentities><TSLLocation>%s</TSLLocation><AdditionalInformation>`, p.Location)
			fmt.Fprintf(&b, `<OtherInformation><SchemeTerritory>%s</SchemeTerritory></OtherInformation>`, p.Territory)
			mime := p.MimeType
			if mime == "" {
				mime = MimeType
			}
			fmt.Fprintf(&b, `<OtherInformation><MimeType>%s</MimeType></OtherInformation>`, mime)
			b.WriteString(`</AdditionalInformation></OtherTSLPointer>`)
		}
		b.WriteString(`</PointersToOtherTSL>`)
	}
	b.WriteString(`<ListIssueDateTime>2016-06-01T00:00:00Z</ListIssueDateTime>`)
	nextUpdate := l.NextUpdate
	if nextUpdate == "" {
		nextUpdate = "2099-01-01T00:00:00Z"
	}
	fmt.Fprintf(&b, `<NextUpdate><dateTime>%s</dateTime></NextUpdate>`, nextUpdate)
	b.WriteString(`</SchemeInformation>`)

	if len(l.Services) > 0 {
		b.WriteString(`<TrustServiceProviderList><TrustServiceProvider>`)
		b.WriteString(`<TSPInformation><TSPName><Name xml:lang="en">SK ID Solutions AS</Name></TSPName></TSPInformation><TSPServices>`)
		for _, s := range l.Services {
			b.WriteString(`<TSPService><ServiceInformation>`)
			fmt.Fprintf(&b, `<ServiceTypeIdentifier>%s</ServiceTypeIdentifier>`, s.Type)
			fmt.Fprintf(&b, `<ServiceName><Name xml:lang="en">%s</Name></ServiceName>`, s.Name)
			b.WriteString(`<ServiceDigitalIdentity>`)
			for _, c := range s.Certs {
				fmt.Fprintf(&b, `<DigitalId><X509Certificate>%s</X509Certificate></DigitalId>`, b64(c))
			}
			if s.RawCert != "" {
				fmt.Fprintf(&b, `<DigitalId><X509Certificate>%s</X509Certificate></DigitalId>`, s.RawCert)
			}
			b.WriteString(`</ServiceDigitalIdentity>`)
			fmt.Fprintf(&b, `<ServiceStatus>%s</ServiceStatus>`, s.Status)
			b.WriteString(`<StatusStartingTime>2016-06-30T22:00:00Z</StatusStartingTime>`)
			b.WriteString(`</ServiceInformation></TSPService>`)
		}
		b.WriteString(`</TSPServices></TrustServiceProvider></TrustServiceProviderList>`)
	}
	b.WriteString(`</TrustServiceStatusList>`)
	return b.String()
}

const signatureTemplate = `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">` +
	`<SignedInfo>` +
	`<CanonicalizationMethod Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"/>` +
	`<SignatureMethod Algorithm="http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"/>` +
	`<Reference URI="">` +
	`<Transforms>` +
	`<Transform Algorithm="http://www.w3.org/2000/09/xmldsig#enveloped-signature"/>` +
	`<Transform Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"/>` +
	`</Transforms>` +
	`<DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/>` +
	`<DigestValue></DigestValue>` +
	`</Reference>` +
	`</SignedInfo>` +
	`<SignatureValue></SignatureValue>` +
	`<KeyInfo><X509Data><X509Certificate>%s</X509Certificate></X509Data></KeyInfo>` +
	`</Signature>`

// Signed returns the list with an enveloped signature by ca.
func (l testList) Signed(t *testing.T, ca *testCA) string {
	t.Helper()
	unsigned := l.XML()
	const closing = `</TrustServiceStatusList>`
	withTemplate := strings.TrimSuffix(unsigned, closing) + fmt.Sprintf(signatureTemplate, b64(ca.Cert)) + closing

	signer, err := signedxml.NewSigner(withTemplate)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	signed, err := signer.Sign(ca.Key)
	if err != nil {
		t.Fatalf("Failed to sign trusted list: %v", err)
	}
	return signed
}
