package asic

import (
	"github.com/huyen-pk/SiVa/container"
)

// Baseline profiles of BDOC signatures.
const (
	ProfileBES  = "B_BES"
	ProfileEPES = "B_EPES"
	ProfileT    = "T"
	ProfileLT   = "LT"
	ProfileLTTM = "LT_TM"
	ProfileLTA  = "LTA"
)

// TimeMarkPolicyOID identifies the BDOC 2.1 time-mark signature policy.
const TimeMarkPolicyOID = "1.3.6.1.4.1.10015.1000.3.2.1"

// Container library messages.
const (
	msgNoOCSP           = "Signature has no OCSP confirmation"
	msgNoTimestamp      = "Signature has no signature timestamp"
	msgUnsignedDataFile = "Container contains a file named %s which is not found in the signature file"
	msgManifestMismatch = "Manifest file has an entry for file %s with mimetype %s but the signature file for signature %s does not have an entry for this file"
	msgBESNotSupported  = "Signature profile B_BES is not supported for validation"
)

// Signature is a XAdES signature of a BDOC container.
type Signature struct {
	*container.XMLSignature
	container *Container
}

// Profile derives the baseline profile from the unsigned properties.
func (s *Signature) Profile() string {
	props := s.Properties()
	hasOCSP := len(props.OCSPValues) > 0
	hasTimestamp := len(props.SignatureTimeStamps) > 0
	switch {
	case len(props.ArchiveTimeStamps) > 0:
		return ProfileLTA
	case hasOCSP && hasTimestamp:
		return ProfileLT
	case hasOCSP:
		// An OCSP response without a timestamp is a time-mark, whether or
		// not TimeMarkPolicyOID is declared.
		return ProfileLTTM
	case hasTimestamp:
		return ProfileT
	case props.PolicyID != "":
		return ProfileEPES
	default:
		return ProfileBES
	}
}

// ReferenceURIs returns the decoded reference URIs, matching data file names
// for data object references.
func (s *Signature) ReferenceURIs() []string {
	uris := s.XMLSignature.ReferenceURIs()
	for i, uri := range uris {
		uris[i] = DecodeURI(uri)
	}
	return uris
}

// ValidateSignature returns the engine findings together with the BDOC
// specific container checks.
func (s *Signature) ValidateSignature() (*container.ValidationResult, error) {
	result, err := s.XMLSignature.ValidateSignature()
	if err != nil {
		return nil, err
	}

	props := s.Properties()
	switch s.Profile() {
	case ProfileLT, ProfileLTA:
		if len(props.OCSPValues) == 0 {
			result.Errors = append(result.Errors, container.NewSignatureError(msgNoOCSP))
		}
	case ProfileLTTM:
	case ProfileT:
		result.Errors = append(result.Errors, container.NewSignatureError(msgNoOCSP))
	default:
		result.Errors = append(result.Errors, container.NewSignatureError(msgBESNotSupported))
		if len(props.OCSPValues) == 0 {
			result.Errors = append(result.Errors, container.NewSignatureError(msgNoOCSP))
		}
	}
	if s.Profile() == ProfileLTA && len(props.SignatureTimeStamps) == 0 {
		result.Errors = append(result.Errors, container.NewSignatureError(msgNoTimestamp))
	}

	signed := make(map[string]bool)
	for _, uri := range s.ReferenceURIs() {
		signed[uri] = true
	}
	for _, df := range s.container.dataFiles {
		if !signed[df.Name] {
			result.Errors = append(result.Errors, container.NewSignatureError(msgUnsignedDataFile, df.Name))
		}
	}
	for _, entry := range s.container.Manifest() {
		if _, ok := s.container.byName[entry.FullPath]; ok && !signed[entry.FullPath] {
			result.Errors = append(result.Errors, container.NewSignatureError(msgManifestMismatch, entry.FullPath, entry.MediaType, s.ID()))
		}
	}
	return result, nil
}
