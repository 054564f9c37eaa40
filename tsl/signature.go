package tsl

import (
	"crypto/x509"
	"fmt"
	"sort"

	"github.com/moov-io/signedxml"
)

// SignatureError is a failed trusted list signature check.
type SignatureError struct {
	Message string
}

func (e *SignatureError) Error() string {
	return e.Message
}

// VerifySignature checks the enveloped XML signature of a trusted list
// against signers. It returns the signed content with the signature removed.
func VerifySignature(xmlContent string, signers []*x509.Certificate) (string, *x509.Certificate, error) {
	if len(signers) == 0 {
		return "", nil, &SignatureError{Message: "no signer certificates provided for signature validation"}
	}

	validator, err := signedxml.NewValidator(xmlContent)
	if err != nil {
		return "", nil, &SignatureError{Message: fmt.Sprintf("failed to create XML signature validator: %v", err)}
	}
	certValues := make([]x509.Certificate, 0, len(signers))
	for _, cert := range signers {
		if cert != nil {
			certValues = append(certValues, *cert)
		}
	}
	validator.Certificates = certValues

	signed, err := validator.ValidateReferences()
	if err != nil {
		return "", nil, &SignatureError{Message: fmt.Sprintf("XML signature validation failed: %v", err)}
	}
	if len(signed) == 0 {
		return "", nil, &SignatureError{Message: "no signed content found in XML"}
	}

	var signer *x509.Certificate
	if cert := validator.SigningCert(); len(cert.Raw) > 0 {
		signer = &cert
	}
	return signed[0], signer, nil
}

// VerifySignatureWithCandidates tries each candidate on its own, newest
// first, then all of them together.
func VerifySignatureWithCandidates(xmlContent string, candidates []*x509.Certificate) (string, *x509.Certificate, error) {
	if len(candidates) == 0 {
		return "", nil, &SignatureError{Message: "no candidate certificates provided"}
	}

	sorted := make([]*x509.Certificate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NotBefore.After(sorted[j].NotBefore)
	})

	var lastErr error
	for _, cert := range sorted {
		content, signer, err := VerifySignature(xmlContent, []*x509.Certificate{cert})
		if err == nil {
			return content, signer, nil
		}
		lastErr = err
	}
	if len(sorted) > 1 {
		if content, signer, err := VerifySignature(xmlContent, sorted); err == nil {
			return content, signer, nil
		}
	}
	return "", nil, &SignatureError{
		Message: fmt.Sprintf("none of the %d candidate certificates could validate the signature: %v", len(candidates), lastErr),
	}
}
