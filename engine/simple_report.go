package engine

import (
	"crypto/x509"
	"time"
)

// Indications produced by the engine.
const (
	IndicationTotalPassed   = "TOTAL_PASSED"
	IndicationIndeterminate = "INDETERMINATE"
	IndicationTotalFailed   = "TOTAL_FAILED"
)

// Sub-indications produced by the engine.
const (
	SubIndicationFormatFailure         = "FORMAT_FAILURE"
	SubIndicationHashFailure           = "HASH_FAILURE"
	SubIndicationSigCryptoFailure      = "SIG_CRYPTO_FAILURE"
	SubIndicationRevoked               = "REVOKED"
	SubIndicationSignedDataNotFound    = "SIGNED_DATA_NOT_FOUND"
	SubIndicationNoSigningCertFound    = "NO_SIGNING_CERTIFICATE_FOUND"
	SubIndicationNoCertificateChain    = "NO_CERTIFICATE_CHAIN_FOUND"
	SubIndicationOutOfBoundsNoPOE      = "OUT_OF_BOUNDS_NO_POE"
	SubIndicationTryLater              = "TRY_LATER"
	SubIndicationRevocationOutOfBounds = "REVOCATION_OUT_OF_BOUNDS_NO_POE"
	SubIndicationCryptoConstraintsFail = "CRYPTO_CONSTRAINTS_FAILURE"
)

// Signature levels.
const (
	SignatureLevelQES    = "QES"
	SignatureLevelAdESqc = "AdESqc"
	SignatureLevelAdES   = "AdES"
	SignatureLevelNA     = "NA"
)

// BasicInfo is a coded message in the simple report.
type BasicInfo struct {
	NameID  string
	Content string
}

// SignatureResult is the engine's conclusion for one signature.
type SignatureResult struct {
	ID             string
	Indication     string
	SubIndication  string
	SignatureLevel string
	Errors         []BasicInfo
	Warnings       []BasicInfo

	SigningCertificate *x509.Certificate
	// BestSignatureTime is the earliest trusted proof of existence of the
	// signature, or the validation time when there is none.
	BestSignatureTime time.Time
	// TrustedTime is the time from an OCSP response or signature timestamp.
	// It is zero when the signature carries neither.
	TrustedTime time.Time
}

func (r *SignatureResult) addError(nameID, content string) {
	r.Errors = append(r.Errors, BasicInfo{NameID: nameID, Content: content})
}

func (r *SignatureResult) addWarning(nameID, content string) {
	r.Warnings = append(r.Warnings, BasicInfo{NameID: nameID, Content: content})
}

// conclude sets the indication unless a stronger one is already set.
func (r *SignatureResult) conclude(indication, subIndication string) {
	if r.Indication == IndicationTotalFailed {
		return
	}
	if r.Indication == IndicationIndeterminate && indication != IndicationTotalFailed {
		return
	}
	r.Indication = indication
	r.SubIndication = subIndication
}

// SimpleReport is the engine's per-signature report for one container.
type SimpleReport struct {
	ValidationTime time.Time
	order          []string
	results        map[string]*SignatureResult
}

// NewSimpleReport creates an empty simple report.
func NewSimpleReport(validationTime time.Time) *SimpleReport {
	return &SimpleReport{
		ValidationTime: validationTime,
		results:        make(map[string]*SignatureResult),
	}
}

// Add stores the result for a signature. A later result for the same id
// replaces the earlier one.
func (s *SimpleReport) Add(result *SignatureResult) {
	if _, ok := s.results[result.ID]; !ok {
		s.order = append(s.order, result.ID)
	}
	s.results[result.ID] = result
}

// SignatureIDs returns the ids of all reported signatures in insertion order.
func (s *SimpleReport) SignatureIDs() []string {
	return append([]string(nil), s.order...)
}

// Indication returns the textual indication for a signature, or "" when the
// signature is unknown.
func (s *SimpleReport) Indication(id string) string {
	if r, ok := s.results[id]; ok {
		return r.Indication
	}
	return ""
}

// SubIndication returns the sub-indication for a signature.
func (s *SimpleReport) SubIndication(id string) string {
	if r, ok := s.results[id]; ok {
		return r.SubIndication
	}
	return ""
}

// SignatureLevel returns the qualification level for a signature.
func (s *SimpleReport) SignatureLevel(id string) string {
	if r, ok := s.results[id]; ok {
		return r.SignatureLevel
	}
	return SignatureLevelNA
}

// Errors returns the coded errors for a signature.
func (s *SimpleReport) Errors(id string) []BasicInfo {
	if r, ok := s.results[id]; ok {
		return r.Errors
	}
	return nil
}

// Warnings returns the coded warnings for a signature.
func (s *SimpleReport) Warnings(id string) []BasicInfo {
	if r, ok := s.results[id]; ok {
		return r.Warnings
	}
	return nil
}

// ValidSignaturesCount returns the number of TOTAL_PASSED signatures.
func (s *SimpleReport) ValidSignaturesCount() int {
	n := 0
	for _, r := range s.results {
		if r.Indication == IndicationTotalPassed {
			n++
		}
	}
	return n
}
