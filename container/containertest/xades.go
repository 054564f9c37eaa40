package containertest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/digitorus/timestamp"
	"github.com/huyen-pk/SiVa/engine"
	dsig "github.com/russellhaering/goxmldsig"
	"golang.org/x/crypto/ocsp"
)

// Profiles understood by the builders.
const (
	ProfileLT   = "LT"
	ProfileLTTM = "LT_TM"
	ProfileBES  = "B_BES"
)

const (
	signedPropertiesType = "http://uri.etsi.org/01903#SignedProperties"
	timeMarkPolicy       = "urn:oid:1.3.6.1.4.1.10015.1000.3.2.1"
)

// File is a data file to put into a container.
type File struct {
	Name     string
	MimeType string
	Content  []byte
}

// Options controls the generated container.
type Options struct {
	// Files defaults to a single test.txt.
	Files []File
	// Profile is LT by default.
	Profile string
	// Signatures is the number of signatures, 1 by default.
	Signatures int
	// OmitSigningTime leaves out the claimed signing time.
	OmitSigningTime bool
	// Revoked makes the OCSP response report the signer as revoked.
	Revoked bool
	// TamperData changes the first data file after signing.
	TamperData bool
	// UnsignedFile adds a data file that no signature covers (BDOC only).
	UnsignedFile bool
	// Version is the DDOC SignedDoc version, 1.3 by default.
	Version string
}

func (o *Options) defaults() {
	if len(o.Files) == 0 {
		o.Files = []File{{Name: "test.txt", MimeType: "text/plain", Content: []byte("Hello, SiVa!\n")}}
	}
	if o.Profile == "" {
		o.Profile = ProfileLT
	}
	if o.Signatures == 0 {
		o.Signatures = 1
	}
	if o.Version == "" {
		o.Version = "1.3"
	}
}

// reference is a data object to be covered by a signature.
type reference struct {
	uri     string
	content []byte
}

// xadesStyle describes the element naming of a signature flavour.
type xadesStyle struct {
	ds            string // prefix for XML-DSig elements, with colon
	xades         string // prefix for XAdES elements, with colon
	declareDS     bool   // declare XML-DSig as default namespace on Signature
	declareXAdES  string // namespace to declare on QualifyingProperties
	c14n          dsig.AlgorithmID
	transformC14N bool
}

func (s xadesStyle) el(parent *etree.Element, prefix, tag string) *etree.Element {
	return parent.CreateElement(prefix + tag)
}

// sign appends a complete signature with the given id to parent.
func (p *PKI) sign(parent *etree.Element, id string, style xadesStyle, refs []reference, opts Options) error {
	now := time.Now().UTC().Truncate(time.Second)

	sig := style.el(parent, style.ds, "Signature")
	if style.declareDS {
		sig.CreateAttr("xmlns", dsig.Namespace)
	}
	sig.CreateAttr("Id", id)

	signedInfo := style.el(sig, style.ds, "SignedInfo")
	style.el(signedInfo, style.ds, "CanonicalizationMethod").CreateAttr("Algorithm", string(style.c14n))
	method := dsig.RSASHA256SignatureMethod
	if _, ok := p.SignerKey.(*ecdsa.PrivateKey); ok {
		method = dsig.ECDSASHA256SignatureMethod
	}
	style.el(signedInfo, style.ds, "SignatureMethod").CreateAttr("Algorithm", method)

	signatureValue := style.el(sig, style.ds, "SignatureValue")
	signatureValue.CreateAttr("Id", id+"-SIG")
	keyInfo := style.el(sig, style.ds, "KeyInfo")
	x509Data := style.el(keyInfo, style.ds, "X509Data")
	style.el(x509Data, style.ds, "X509Certificate").SetText(base64.StdEncoding.EncodeToString(p.Signer.Raw))

	object := style.el(sig, style.ds, "Object")
	qp := style.el(object, style.xades, "QualifyingProperties")
	if style.declareXAdES != "" {
		qp.CreateAttr("xmlns", style.declareXAdES)
	}
	qp.CreateAttr("Target", "#"+id)
	sp := style.el(qp, style.xades, "SignedProperties")
	spID := id + "-SignedProperties"
	sp.CreateAttr("Id", spID)
	ssp := style.el(sp, style.xades, "SignedSignatureProperties")
	if !opts.OmitSigningTime {
		style.el(ssp, style.xades, "SigningTime").SetText(now.Format(time.RFC3339))
	}
	certDigest := sha256.Sum256(p.Signer.Raw)
	cert := style.el(style.el(ssp, style.xades, "SigningCertificate"), style.xades, "Cert")
	digest := style.el(cert, style.xades, "CertDigest")
	style.el(digest, style.ds, "DigestMethod").CreateAttr("Algorithm", engine.DigestSHA256)
	style.el(digest, style.ds, "DigestValue").SetText(base64.StdEncoding.EncodeToString(certDigest[:]))
	issuerSerial := style.el(cert, style.xades, "IssuerSerial")
	style.el(issuerSerial, style.ds, "X509IssuerName").SetText(p.Signer.Issuer.String())
	style.el(issuerSerial, style.ds, "X509SerialNumber").SetText(p.Signer.SerialNumber.String())
	if opts.Profile == ProfileLTTM {
		spi := style.el(ssp, style.xades, "SignaturePolicyIdentifier")
		sigPolicyID := style.el(style.el(spi, style.xades, "SignaturePolicyId"), style.xades, "SigPolicyId")
		style.el(sigPolicyID, style.xades, "Identifier").SetText(timeMarkPolicy)
	}

	for i, ref := range refs {
		sum := sha256.Sum256(ref.content)
		r := style.el(signedInfo, style.ds, "Reference")
		r.CreateAttr("Id", fmt.Sprintf("%s-RefId%d", id, i))
		r.CreateAttr("URI", ref.uri)
		style.el(r, style.ds, "DigestMethod").CreateAttr("Algorithm", engine.DigestSHA256)
		style.el(r, style.ds, "DigestValue").SetText(base64.StdEncoding.EncodeToString(sum[:]))
	}

	c, err := engine.Canonicalizer(string(style.c14n), "")
	if err != nil {
		return err
	}
	spBytes, err := engine.Canonicalize(sp, c)
	if err != nil {
		return err
	}
	spSum := sha256.Sum256(spBytes)
	spRef := style.el(signedInfo, style.ds, "Reference")
	spRef.CreateAttr("Type", signedPropertiesType)
	spRef.CreateAttr("URI", "#"+spID)
	if style.transformC14N {
		transforms := style.el(spRef, style.ds, "Transforms")
		style.el(transforms, style.ds, "Transform").CreateAttr("Algorithm", string(style.c14n))
	}
	style.el(spRef, style.ds, "DigestMethod").CreateAttr("Algorithm", engine.DigestSHA256)
	style.el(spRef, style.ds, "DigestValue").SetText(base64.StdEncoding.EncodeToString(spSum[:]))

	canonical, err := engine.Canonicalize(signedInfo, c)
	if err != nil {
		return err
	}
	value, err := p.signBytes(canonical)
	if err != nil {
		return err
	}
	signatureValue.SetText(base64.StdEncoding.EncodeToString(value))

	return p.addUnsignedProperties(qp, signatureValue, style, now, opts)
}

func (p *PKI) signBytes(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	value, err := p.SignerKey.Sign(rand.Reader, sum[:], crypto.SHA256)
	if err != nil {
		return nil, err
	}
	if key, ok := p.SignerKey.(*ecdsa.PrivateKey); ok {
		return engine.ECDSAASN1ToRaw(value, (key.Curve.Params().BitSize+7)/8)
	}
	return value, nil
}

func (p *PKI) addUnsignedProperties(qp, signatureValue *etree.Element, style xadesStyle, now time.Time, opts Options) error {
	if opts.Profile == ProfileBES {
		return nil
	}
	usp := style.el(style.el(qp, style.xades, "UnsignedProperties"), style.xades, "UnsignedSignatureProperties")

	if opts.Profile == ProfileLT {
		token, err := p.timestampToken(signatureValue, style.c14n, now)
		if err != nil {
			return err
		}
		ts := style.el(usp, style.xades, "SignatureTimeStamp")
		style.el(ts, style.ds, "CanonicalizationMethod").CreateAttr("Algorithm", string(style.c14n))
		style.el(ts, style.xades, "EncapsulatedTimeStamp").SetText(base64.StdEncoding.EncodeToString(token))
	}

	resp, err := p.OCSPResponse(opts.Revoked, now)
	if err != nil {
		return err
	}
	values := style.el(style.el(usp, style.xades, "RevocationValues"), style.xades, "OCSPValues")
	style.el(values, style.xades, "EncapsulatedOCSPValue").SetText(base64.StdEncoding.EncodeToString(resp))
	return nil
}

// timestampToken returns an RFC 3161 token over the canonical SignatureValue.
func (p *PKI) timestampToken(signatureValue *etree.Element, method dsig.AlgorithmID, at time.Time) ([]byte, error) {
	c, err := engine.Canonicalizer(string(method), "")
	if err != nil {
		return nil, err
	}
	canonical, err := engine.Canonicalize(signatureValue, c)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	ts := timestamp.Timestamp{
		HashAlgorithm: crypto.SHA256,
		HashedMessage: sum[:],
		Time:          at,
		Policy:        asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 10015, 99},

		AddTSACertificate: true,
	}
	resp, err := ts.CreateResponseWithOpts(p.TSA, p.TSAKey, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp: %w", err)
	}
	parsed, err := timestamp.ParseResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return parsed.RawToken, nil
}

// OCSPResponse returns a DER OCSP response about the signer, signed by its
// issuer.
func (p *PKI) OCSPResponse(revoked bool, at time.Time) ([]byte, error) {
	template := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: p.Signer.SerialNumber,
		ThisUpdate:   at.Add(-time.Minute),
		NextUpdate:   at.Add(time.Hour),
	}
	if revoked {
		template.Status = ocsp.Revoked
		template.RevokedAt = at.Add(-10 * time.Minute)
		template.RevocationReason = ocsp.KeyCompromise
	}
	return ocsp.CreateResponse(p.Issuer, p.Issuer, template, p.IssuerKey)
}

func escapeURI(name string) string {
	return (&url.URL{Path: name}).EscapedPath()
}
