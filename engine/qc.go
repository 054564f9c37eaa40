package engine

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
)

// QC statement OIDs from ETSI EN 319 412-5.
var (
	OIDQcStatements = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 3}
	OIDQcCompliance = asn1.ObjectIdentifier{0, 4, 0, 1862, 1, 1}
	OIDQcSSCD       = asn1.ObjectIdentifier{0, 4, 0, 1862, 1, 4}
	OIDQcType       = asn1.ObjectIdentifier{0, 4, 0, 1862, 1, 6}
	OIDQcTypeEsign  = asn1.ObjectIdentifier{0, 4, 0, 1862, 1, 6, 1}
	OIDQcTypeEseal  = asn1.ObjectIdentifier{0, 4, 0, 1862, 1, 6, 2}
)

// ErrQCStatementNotFound is returned for certificates without QC statements.
var ErrQCStatementNotFound = errors.New("QC statement not found")

// QCStatements lists the statement ids found in a certificate.
type QCStatements struct {
	IDs   []asn1.ObjectIdentifier
	Types []asn1.ObjectIdentifier
}

func (s *QCStatements) has(oid asn1.ObjectIdentifier) bool {
	for _, id := range s.IDs {
		if id.Equal(oid) {
			return true
		}
	}
	return false
}

// HasCompliance reports whether QcCompliance is present.
func (s *QCStatements) HasCompliance() bool { return s.has(OIDQcCompliance) }

// HasSSCD reports whether QcSSCD is present.
func (s *QCStatements) HasSSCD() bool { return s.has(OIDQcSSCD) }

// ParseQCStatements parses the QC statements extension of cert.
func ParseQCStatements(cert *x509.Certificate) (*QCStatements, error) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(OIDQcStatements) {
			return parseQCStatements(ext.Value)
		}
	}
	return nil, ErrQCStatementNotFound
}

func parseQCStatements(data []byte) (*QCStatements, error) {
	var raw []asn1.RawValue
	if _, err := asn1.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse QC statements: %w", err)
	}
	statements := &QCStatements{}
	for _, r := range raw {
		var stmt struct {
			ID   asn1.ObjectIdentifier
			Info asn1.RawValue `asn1:"optional"`
		}
		if _, err := asn1.Unmarshal(r.FullBytes, &stmt); err != nil {
			continue
		}
		statements.IDs = append(statements.IDs, stmt.ID)
		if stmt.ID.Equal(OIDQcType) && len(stmt.Info.FullBytes) > 0 {
			var types []asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(stmt.Info.FullBytes, &types); err == nil {
				statements.Types = append(statements.Types, types...)
			}
		}
	}
	return statements, nil
}

// MarshalQCStatements encodes a QC statements extension value carrying the
// given statement ids without statement info.
func MarshalQCStatements(ids ...asn1.ObjectIdentifier) ([]byte, error) {
	type statement struct {
		ID asn1.ObjectIdentifier
	}
	stmts := make([]statement, len(ids))
	for i, id := range ids {
		stmts[i] = statement{ID: id}
	}
	return asn1.Marshal(stmts)
}

// signatureLevel derives the qualification level of a signature from its
// signing certificate. Only signatures that passed are qualified.
func signatureLevel(cert *x509.Certificate, indication string) string {
	if cert == nil || indication != IndicationTotalPassed {
		return SignatureLevelNA
	}
	qc, err := ParseQCStatements(cert)
	if err != nil || !qc.HasCompliance() {
		return SignatureLevelAdES
	}
	if qc.HasSSCD() {
		return SignatureLevelQES
	}
	return SignatureLevelAdESqc
}
