// Package qualified turns a validated container into the qualified report.
//
// Errors and warnings come from two sources. The engine's simple report is
// authoritative and carries coded messages. The container library's own
// signature validation is consulted second, and only messages that repeat an
// engine message are kept, tagged with a generic code.
package qualified

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/engine"
	"github.com/huyen-pk/SiVa/report"
	log "github.com/sirupsen/logrus"
)

// Codes of entries that come from the container library.
const (
	SignatureErrorCode   = "BDOC_SIGNATURE_ERROR"
	SignatureWarningCode = "BDOC_SIGNATURE_WARNING"
	SignatureInfoNameID  = "BDOC_SIGNATURE_INFO"
)

// Signature format prefixes by container type.
const (
	FormatPrefixXAdES = "XAdES_BASELINE_"
	FormatPrefixDDOC  = "DIGIDOC_XML_"
)

var formatPrefixes = map[string]string{
	container.TypeBDOC: FormatPrefixXAdES,
	container.TypeDDOC: FormatPrefixDDOC,
}

// ReportBuilder builds the qualified report of one validated container.
type ReportBuilder struct {
	container      container.Container
	documentName   string
	validationTime time.Time
}

// NewReportBuilder creates a builder. The container must have been validated.
func NewReportBuilder(c container.Container, documentName string, validationTime time.Time) *ReportBuilder {
	return &ReportBuilder{
		container:      c,
		documentName:   documentName,
		validationTime: validationTime,
	}
}

// Build creates the report. It fails when a signature lacks its engine report
// or one of its signing times.
func (b *ReportBuilder) Build() (*report.QualifiedReport, error) {
	signatures := b.container.Signatures()

	dataFiles := make(map[string]bool)
	for _, df := range b.container.DataFiles() {
		dataFiles[df.Name] = true
	}

	qr := &report.QualifiedReport{
		Policy:          report.SivaDefaultPolicy,
		ValidationTime:  report.FormatTime(b.validationTime),
		DocumentName:    xmlText(b.documentName),
		SignaturesCount: len(signatures),
		Signatures:      make([]*report.SignatureValidationData, 0, len(signatures)),
	}
	for _, sig := range signatures {
		data, err := b.signatureValidationData(sig, dataFiles)
		if err != nil {
			return nil, err
		}
		qr.Signatures = append(qr.Signatures, data)
	}
	qr.ValidSignaturesCount = report.CountValid(qr.Signatures)
	return qr, nil
}

func (b *ReportBuilder) signatureValidationData(sig container.Signature, dataFiles map[string]bool) (*report.SignatureValidationData, error) {
	simple, err := sig.ValidationReport()
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", sig.ID(), err)
	}
	claimed, err := sig.ClaimedSigningTime()
	if err != nil {
		return nil, err
	}
	trusted, err := sig.TrustedSigningTime()
	if err != nil {
		return nil, err
	}

	// A failing container library check only costs this signature its
	// second-source entries. It can no longer be reported as passed.
	result, err := sig.ValidateSignature()
	if err != nil {
		log.WithFields(log.Fields{"signature": sig.ID()}).Warnf("Container signature validation failed: %v", err)
		result = nil
	}

	ind := indication(sig.ID(), result, simple)
	log.WithFields(log.Fields{
		"signature":     sig.ID(),
		"indication":    ind,
		"subIndication": simple.SubIndication(sig.ID()),
	}).Debug("Signature validated")

	return &report.SignatureValidationData{
		ID:                 xmlText(sig.ID()),
		SignatureFormat:    xmlText(b.signatureFormat(sig)),
		SignatureLevel:     xmlText(simple.SignatureLevel(sig.ID())),
		SignedBy:           xmlText(sig.SignerName()),
		Indication:         ind,
		ClaimedSigningTime: report.FormatTime(claimed),
		Errors:             errorsOf(sig.ID(), result, simple),
		Warnings:           warningsOf(sig.ID(), result, simple),
		SignatureScopes:    signatureScopes(sig, dataFiles),
		Info: &report.Info{
			NameID:            SignatureInfoNameID,
			BestSignatureTime: report.FormatTime(trusted),
		},
	}, nil
}

func (b *ReportBuilder) signatureFormat(sig container.Signature) string {
	prefix, ok := formatPrefixes[b.container.Type()]
	if !ok {
		prefix = FormatPrefixXAdES
	}
	return prefix + sig.Profile()
}

// indication prefers the container library's verdict for the passing case and
// only then looks at the engine's textual indication.
func indication(id string, result *container.ValidationResult, simple *engine.SimpleReport) report.Indication {
	switch {
	case result != nil && result.IsValid():
		return report.TotalPassed
	case simple.Indication(id) == engine.IndicationIndeterminate:
		return report.Indeterminate
	default:
		return report.TotalFailed
	}
}

func errorsOf(id string, result *container.ValidationResult, simple *engine.SimpleReport) []report.Error {
	engineErrors := simple.Errors(id)
	errs := make([]report.Error, 0, len(engineErrors))
	known := make(map[string]bool, len(engineErrors))
	for _, e := range engineErrors {
		errs = append(errs, report.Error{NameID: e.NameID, Content: xmlText(e.Content)})
		known[e.Content] = true
	}
	if result == nil {
		return errs
	}
	for _, e := range result.Errors {
		if known[e.Error()] {
			errs = append(errs, report.Error{NameID: SignatureErrorCode, Content: xmlText(e.Error())})
		}
	}
	return errs
}

func warningsOf(id string, result *container.ValidationResult, simple *engine.SimpleReport) []report.Warning {
	engineWarnings := simple.Warnings(id)
	warnings := make([]report.Warning, 0, len(engineWarnings))
	known := make(map[string]bool, len(engineWarnings))
	for _, w := range engineWarnings {
		warnings = append(warnings, report.Warning{NameID: w.NameID, Description: xmlText(w.Content)})
		known[w.Content] = true
	}
	if result == nil {
		return warnings
	}
	for _, w := range result.Warnings {
		if known[w.Error()] {
			warnings = append(warnings, report.Warning{NameID: SignatureWarningCode, Description: xmlText(w.Error())})
		}
	}
	return warnings
}

// signatureScopes keeps the references that name a data file of the
// container, dropping references to signed properties.
func signatureScopes(sig container.Signature, dataFiles map[string]bool) []report.SignatureScope {
	scopes := make([]report.SignatureScope, 0)
	for _, uri := range sig.ReferenceURIs() {
		if !dataFiles[uri] {
			continue
		}
		scopes = append(scopes, report.SignatureScope{
			Name:    xmlText(uri),
			Scope:   report.FullSignatureScope,
			Content: report.FullDocument,
		})
	}
	return scopes
}

// xmlText replaces characters that XML 1.0 cannot carry with U+FFFD, the way
// encoding/xml writes them, so the JSON and XML reports hold the same text.
func xmlText(s string) string {
	if strings.IndexFunc(s, notXMLChar) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if notXMLChar(r) {
			return utf8.RuneError
		}
		return r
	}, s)
}

func notXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return false
	case r >= 0x20 && r <= 0xD7FF:
		return false
	case r >= 0xE000 && r <= 0xFFFD:
		return false
	case r >= 0x10000 && r <= utf8.MaxRune:
		return false
	}
	return true
}
