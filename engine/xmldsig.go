package engine

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	// Register hash implementations used by XML-DSig.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// XML namespaces used by XAdES signatures.
const (
	NamespaceDSig   = dsig.Namespace
	NamespaceXAdES  = "http://uri.etsi.org/01903/v1.3.2#"
	NamespaceXAdES1 = "http://uri.etsi.org/01903/v1.4.1#"
	NamespaceASiC   = "http://uri.etsi.org/02918/v1.2.1#"
)

// Digest method identifiers.
const (
	DigestSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestSHA224 = "http://www.w3.org/2001/04/xmldsig-more#sha224"
	DigestSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	DigestSHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	DigestSHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"
)

// Transform identifiers that are accepted on references.
const (
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// ErrUnsupportedAlgorithm is returned for unknown algorithm identifiers.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

var digestAlgorithms = map[string]crypto.Hash{
	DigestSHA1:   crypto.SHA1,
	DigestSHA224: crypto.SHA224,
	DigestSHA256: crypto.SHA256,
	DigestSHA384: crypto.SHA384,
	DigestSHA512: crypto.SHA512,
}

var signatureAlgorithms = map[string]x509.SignatureAlgorithm{
	dsig.RSASHA1SignatureMethod:     x509.SHA1WithRSA,
	dsig.RSASHA256SignatureMethod:   x509.SHA256WithRSA,
	dsig.RSASHA384SignatureMethod:   x509.SHA384WithRSA,
	dsig.RSASHA512SignatureMethod:   x509.SHA512WithRSA,
	dsig.ECDSASHA1SignatureMethod:   x509.ECDSAWithSHA1,
	dsig.ECDSASHA256SignatureMethod: x509.ECDSAWithSHA256,
	dsig.ECDSASHA384SignatureMethod: x509.ECDSAWithSHA384,
	dsig.ECDSASHA512SignatureMethod: x509.ECDSAWithSHA512,
}

// DigestAlgorithm returns the hash for an XML-DSig digest method.
func DigestAlgorithm(uri string) (crypto.Hash, error) {
	h, ok := digestAlgorithms[uri]
	if !ok || !h.Available() {
		return 0, fmt.Errorf("%w: digest method %q", ErrUnsupportedAlgorithm, uri)
	}
	return h, nil
}

// Digest hashes data with the XML-DSig digest method uri.
func Digest(uri string, data []byte) ([]byte, error) {
	h, err := DigestAlgorithm(uri)
	if err != nil {
		return nil, err
	}
	w := h.New()
	w.Write(data)
	return w.Sum(nil), nil
}

// Canonicalizer returns the canonicalizer for a canonicalization method.
// An empty algorithm selects inclusive C14N 1.0.
func Canonicalizer(algorithm, prefixList string) (dsig.Canonicalizer, error) {
	switch dsig.AlgorithmID(algorithm) {
	case "", dsig.CanonicalXML10RecAlgorithmId:
		return dsig.MakeC14N10RecCanonicalizer(), nil
	case dsig.CanonicalXML10WithCommentsAlgorithmId:
		return dsig.MakeC14N10WithCommentsCanonicalizer(), nil
	case dsig.CanonicalXML11AlgorithmId:
		return dsig.MakeC14N11Canonicalizer(), nil
	case dsig.CanonicalXML11WithCommentsAlgorithmId:
		return dsig.MakeC14N11WithCommentsCanonicalizer(), nil
	case dsig.CanonicalXML10ExclusiveAlgorithmId:
		return dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList(prefixList), nil
	case dsig.CanonicalXML10ExclusiveWithCommentsAlgorithmId:
		return dsig.MakeC14N10ExclusiveWithCommentsCanonicalizerWithPrefixList(prefixList), nil
	default:
		return nil, fmt.Errorf("%w: canonicalization method %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// Canonicalize serializes el in canonical form. Namespaces declared on the
// ancestors of el are carried onto a detached copy first, so the result does
// not depend on where el sits in its document.
func Canonicalize(el *etree.Element, c dsig.Canonicalizer) ([]byte, error) {
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return nil, err
	}
	detached, err := etreeutils.NSDetatch(ctx, el)
	if err != nil {
		return nil, err
	}
	return c.Canonicalize(detached)
}

// canonicalizerFor reads the CanonicalizationMethod child of el (SignedInfo
// or a timestamp element) and returns the matching canonicalizer.
func canonicalizerFor(el *etree.Element) (dsig.Canonicalizer, error) {
	method := el.SelectElement("CanonicalizationMethod")
	if method == nil {
		return Canonicalizer("", "")
	}
	return Canonicalizer(method.SelectAttrValue("Algorithm", ""), inclusivePrefixes(method))
}

func inclusivePrefixes(el *etree.Element) string {
	if ns := el.SelectElement("InclusiveNamespaces"); ns != nil {
		return ns.SelectAttrValue("PrefixList", "")
	}
	return ""
}

// Reference is a ds:Reference of a signature.
type Reference struct {
	ID           string
	URI          string
	Type         string
	DigestMethod string
	DigestValue  []byte
	Transforms   []Transform
}

// Transform is a ds:Transform of a reference.
type Transform struct {
	Algorithm  string
	PrefixList string
}

// IsInternal reports whether the reference points into the signature document.
func (r Reference) IsInternal() bool {
	return strings.HasPrefix(r.URI, "#")
}

// ParseReferences reads the references of a ds:SignedInfo element.
func ParseReferences(signedInfo *etree.Element) ([]Reference, error) {
	var refs []Reference
	for _, el := range signedInfo.SelectElements("Reference") {
		ref := Reference{
			ID:   el.SelectAttrValue("Id", ""),
			URI:  el.SelectAttrValue("URI", ""),
			Type: el.SelectAttrValue("Type", ""),
		}
		if dm := el.SelectElement("DigestMethod"); dm != nil {
			ref.DigestMethod = dm.SelectAttrValue("Algorithm", "")
		}
		if dv := el.SelectElement("DigestValue"); dv != nil {
			value, err := decodeBase64(dv.Text())
			if err != nil {
				return nil, fmt.Errorf("reference %q: invalid digest value: %w", ref.URI, err)
			}
			ref.DigestValue = value
		}
		if ts := el.SelectElement("Transforms"); ts != nil {
			for _, t := range ts.SelectElements("Transform") {
				ref.Transforms = append(ref.Transforms, Transform{
					Algorithm:  t.SelectAttrValue("Algorithm", ""),
					PrefixList: inclusivePrefixes(t),
				})
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// decodeBase64 decodes base64 text that may contain line breaks.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(s)
}

// findByID returns the element of the document that carries the given Id.
func findByID(root *etree.Element, id string) *etree.Element {
	if root.SelectAttrValue("Id", "") == id {
		return root
	}
	for _, child := range root.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// documentRoot returns the outermost element containing el.
func documentRoot(el *etree.Element) *etree.Element {
	for el.Parent() != nil && el.Parent().Tag != "" {
		el = el.Parent()
	}
	return el
}

// ReferenceResolver returns the bytes of an external reference target.
type ReferenceResolver func(uri string) ([]byte, error)

// ErrReferenceNotFound is returned when a reference target cannot be found.
var ErrReferenceNotFound = errors.New("reference target not found")

// ErrDigestMismatch is returned when a reference digest does not match.
var ErrDigestMismatch = errors.New("digest value mismatch")

// referenceData returns the octets a reference's digest is computed over.
func referenceData(sig *etree.Element, ref Reference, resolve ReferenceResolver) ([]byte, error) {
	if !ref.IsInternal() {
		if resolve == nil {
			return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, ref.URI)
		}
		return resolve(ref.URI)
	}

	target := findByID(documentRoot(sig), strings.TrimPrefix(ref.URI, "#"))
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, ref.URI)
	}

	var c dsig.Canonicalizer
	for _, t := range ref.Transforms {
		if t.Algorithm == TransformEnveloped {
			continue
		}
		cz, err := Canonicalizer(t.Algorithm, t.PrefixList)
		if err != nil {
			return nil, err
		}
		c = cz
	}
	if c == nil {
		c, _ = Canonicalizer("", "")
	}
	return Canonicalize(target, c)
}

// VerifyReference recomputes the digest of ref and compares it.
func VerifyReference(sig *etree.Element, ref Reference, resolve ReferenceResolver) error {
	data, err := referenceData(sig, ref, resolve)
	if err != nil {
		return err
	}
	digest, err := Digest(ref.DigestMethod, data)
	if err != nil {
		return err
	}
	if !equalBytes(digest, ref.DigestValue) {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, ref.URI)
	}
	return nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// VerifySignatureValue checks ds:SignatureValue against the canonical form of
// ds:SignedInfo using the public key of cert.
func VerifySignatureValue(sig *etree.Element, cert *x509.Certificate) error {
	signedInfo := sig.SelectElement("SignedInfo")
	if signedInfo == nil {
		return errors.New("missing SignedInfo")
	}
	valueEl := sig.SelectElement("SignatureValue")
	if valueEl == nil {
		return errors.New("missing SignatureValue")
	}
	value, err := decodeBase64(valueEl.Text())
	if err != nil {
		return fmt.Errorf("invalid SignatureValue: %w", err)
	}

	method := signedInfo.SelectElement("SignatureMethod")
	if method == nil {
		return errors.New("missing SignatureMethod")
	}
	algorithm, ok := signatureAlgorithms[method.SelectAttrValue("Algorithm", "")]
	if !ok {
		return fmt.Errorf("%w: signature method %q", ErrUnsupportedAlgorithm, method.SelectAttrValue("Algorithm", ""))
	}

	c, err := canonicalizerFor(signedInfo)
	if err != nil {
		return err
	}
	canonical, err := Canonicalize(signedInfo, c)
	if err != nil {
		return err
	}

	if _, isEC := cert.PublicKey.(*ecdsa.PublicKey); isEC {
		value, err = ecdsaRawToASN1(value)
		if err != nil {
			return err
		}
	}
	return cert.CheckSignature(algorithm, canonical, value)
}

// ecdsaRawToASN1 converts an XML-DSig r||s ECDSA value to its DER form.
func ecdsaRawToASN1(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, errors.New("invalid ECDSA signature length")
	}
	half := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:half])
	s := new(big.Int).SetBytes(raw[half:])

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// ECDSAASN1ToRaw converts a DER ECDSA signature to the fixed width r||s form
// used by XML-DSig. size is the byte length of the curve order.
func ECDSAASN1ToRaw(der []byte, size int) ([]byte, error) {
	var r, s big.Int
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(&r) || !inner.ReadASN1Integer(&s) || !inner.Empty() {
		return nil, errors.New("invalid ECDSA signature encoding")
	}
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}

// SignatureCertificates returns the certificates in ds:KeyInfo/ds:X509Data,
// signing certificate first.
func SignatureCertificates(sig *etree.Element) ([]*x509.Certificate, error) {
	keyInfo := sig.SelectElement("KeyInfo")
	if keyInfo == nil {
		return nil, nil
	}
	var certs []*x509.Certificate
	for _, data := range keyInfo.SelectElements("X509Data") {
		for _, el := range data.SelectElements("X509Certificate") {
			der, err := decodeBase64(el.Text())
			if err != nil {
				return nil, fmt.Errorf("invalid X509Certificate: %w", err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("invalid X509Certificate: %w", err)
			}
			certs = append(certs, cert)
		}
	}
	return certs, nil
}
