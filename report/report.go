// Package report defines the qualified validation report returned to clients.
// The same structure is serialized to JSON and XML with identical field names.
package report

import (
	"encoding/json"
	"encoding/xml"
	"time"
)

// DateTimeFormat is the layout used for every timestamp in the report.
const DateTimeFormat = "2006-01-02T15:04:05Z"

// FormatTime formats t in UTC using DateTimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateTimeFormat)
}

// Indication is the overall verdict for a single signature.
type Indication string

const (
	TotalPassed   Indication = "TOTAL_PASSED"
	Indeterminate Indication = "INDETERMINATE"
	TotalFailed   Indication = "TOTAL_FAILED"
)

// Fixed signature scope labels.
const (
	FullSignatureScope = "FullSignatureScope"
	FullDocument       = "Full document"
)

// Policy identifies the validation policy used to produce the report.
type Policy struct {
	PolicyName        string `json:"policyName" xml:"policyName"`
	PolicyDescription string `json:"policyDescription" xml:"policyDescription"`
	PolicyURL         string `json:"policyUrl" xml:"policyUrl"`
}

// SivaDefaultPolicy is the only supported validation policy.
var SivaDefaultPolicy = Policy{
	PolicyName:        "EE",
	PolicyDescription: "Policy for validating Electronic Signatures and Electronic Seals regardless of the legal type of the signature or seal (according to Regulation (EU) No 910/2014), i.e. the fact that the electronic signature or electronic seal is either Advanced electronic Signature (AdES), AdES supported by a Qualified Certificate (AdES/QC) or a Qualified electronic Signature (QES) does not change the total validation result of the signature.",
	PolicyURL:         "http://open-eid.github.io/SiVa/siva/appendix/validation_policy/#POLv1",
}

// Error is a validation error attached to a signature.
type Error struct {
	NameID  string `json:"nameId" xml:"nameId"`
	Content string `json:"content" xml:"content"`
}

// Warning is a validation warning attached to a signature.
type Warning struct {
	NameID      string `json:"nameId" xml:"nameId"`
	Description string `json:"description" xml:"description"`
}

// SignatureScope names a data file covered by a signature.
type SignatureScope struct {
	Name    string `json:"name" xml:"name"`
	Scope   string `json:"scope" xml:"scope"`
	Content string `json:"content" xml:"content"`
}

// Info carries additional signature information.
type Info struct {
	NameID            string `json:"nameId" xml:"nameId"`
	BestSignatureTime string `json:"bestSignatureTime" xml:"bestSignatureTime"`
}

// SignatureValidationData is the validation result for one signature.
type SignatureValidationData struct {
	ID                 string           `json:"id" xml:"id"`
	SignatureFormat    string           `json:"signatureFormat" xml:"signatureFormat"`
	SignatureLevel     string           `json:"signatureLevel" xml:"signatureLevel"`
	SignedBy           string           `json:"signedBy" xml:"signedBy"`
	Indication         Indication       `json:"indication" xml:"indication"`
	ClaimedSigningTime string           `json:"claimedSigningTime" xml:"claimedSigningTime"`
	Errors             []Error          `json:"errors" xml:"errors"`
	Warnings           []Warning        `json:"warnings" xml:"warnings"`
	SignatureScopes    []SignatureScope `json:"signatureScopes" xml:"signatureScopes"`
	Info               *Info            `json:"info" xml:"info"`
}

// QualifiedReport is the canonical, protocol independent validation report.
type QualifiedReport struct {
	XMLName              xml.Name                   `json:"-" xml:"qualifiedReport"`
	Policy               Policy                     `json:"policy" xml:"policy"`
	ValidationTime       string                     `json:"validationTime" xml:"validationTime"`
	DocumentName         string                     `json:"documentName" xml:"documentName"`
	SignaturesCount      int                        `json:"signaturesCount" xml:"signaturesCount"`
	ValidSignaturesCount int                        `json:"validSignaturesCount" xml:"validSignaturesCount"`
	Signatures           []*SignatureValidationData `json:"signatures" xml:"signatures"`
}

// CountValid returns the number of signatures with a TOTAL_PASSED indication.
func CountValid(signatures []*SignatureValidationData) int {
	count := 0
	for _, sig := range signatures {
		if sig != nil && sig.Indication == TotalPassed {
			count++
		}
	}
	return count
}

// ToJSON serializes the report to JSON.
func (r *QualifiedReport) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ToXML serializes the report to XML, including the XML header.
func (r *QualifiedReport) ToXML() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// ParseJSON parses a report serialized with ToJSON.
func ParseJSON(data []byte) (*QualifiedReport, error) {
	var r QualifiedReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseXML parses a report serialized with ToXML.
func ParseXML(data []byte) (*QualifiedReport, error) {
	var r QualifiedReport
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
