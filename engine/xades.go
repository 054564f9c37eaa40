package engine

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/digitorus/timestamp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ocsp"
)

// XAdESProperties holds the qualifying properties of a XAdES signature.
type XAdESProperties struct {
	SignedProperties   *etree.Element
	SignedPropertiesID string

	// SigningTime is the claimed signing time, zero when absent.
	SigningTime time.Time

	SigningCertDigestMethod string
	SigningCertDigest       []byte

	// PolicyID is the signature policy identifier, empty for implied policy.
	PolicyID string

	SignatureTimeStamps []*etree.Element
	ArchiveTimeStamps   []*etree.Element
	OCSPValues          [][]byte
}

// ParseXAdES reads the qualifying properties of a ds:Signature element.
func ParseXAdES(sig *etree.Element) (*XAdESProperties, error) {
	props := &XAdESProperties{}

	var qp *etree.Element
	for _, obj := range sig.SelectElements("Object") {
		if qp = obj.SelectElement("QualifyingProperties"); qp != nil {
			break
		}
	}
	if qp == nil {
		return props, nil
	}

	if sp := qp.SelectElement("SignedProperties"); sp != nil {
		props.SignedProperties = sp
		props.SignedPropertiesID = sp.SelectAttrValue("Id", "")
		if ssp := sp.SelectElement("SignedSignatureProperties"); ssp != nil {
			if err := parseSignedSignatureProperties(ssp, props); err != nil {
				return nil, err
			}
		}
	}

	if up := qp.SelectElement("UnsignedProperties"); up != nil {
		if usp := up.SelectElement("UnsignedSignatureProperties"); usp != nil {
			if err := parseUnsignedSignatureProperties(usp, props); err != nil {
				return nil, err
			}
		}
	}
	return props, nil
}

func parseSignedSignatureProperties(ssp *etree.Element, props *XAdESProperties) error {
	if st := ssp.SelectElement("SigningTime"); st != nil {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(st.Text()))
		if err != nil {
			return fmt.Errorf("invalid SigningTime: %w", err)
		}
		props.SigningTime = t
	}

	signingCert := ssp.SelectElement("SigningCertificate")
	if signingCert == nil {
		signingCert = ssp.SelectElement("SigningCertificateV2")
	}
	if signingCert != nil {
		if cert := signingCert.SelectElement("Cert"); cert != nil {
			if digest := cert.SelectElement("CertDigest"); digest != nil {
				if dm := digest.SelectElement("DigestMethod"); dm != nil {
					props.SigningCertDigestMethod = dm.SelectAttrValue("Algorithm", "")
				}
				if dv := digest.SelectElement("DigestValue"); dv != nil {
					value, err := decodeBase64(dv.Text())
					if err != nil {
						return fmt.Errorf("invalid CertDigest: %w", err)
					}
					props.SigningCertDigest = value
				}
			}
		}
	}

	if spi := ssp.SelectElement("SignaturePolicyIdentifier"); spi != nil {
		if id := spi.SelectElement("SignaturePolicyId"); id != nil {
			if sid := id.SelectElement("SigPolicyId"); sid != nil {
				if ident := sid.SelectElement("Identifier"); ident != nil {
					props.PolicyID = strings.TrimPrefix(strings.TrimSpace(ident.Text()), "urn:oid:")
				}
			}
		}
	}
	return nil
}

func parseUnsignedSignatureProperties(usp *etree.Element, props *XAdESProperties) error {
	props.SignatureTimeStamps = usp.SelectElements("SignatureTimeStamp")
	props.ArchiveTimeStamps = usp.SelectElements("ArchiveTimeStamp")

	if rv := usp.SelectElement("RevocationValues"); rv != nil {
		if values := rv.SelectElement("OCSPValues"); values != nil {
			for _, v := range values.SelectElements("EncapsulatedOCSPValue") {
				der, err := decodeBase64(v.Text())
				if err != nil {
					return fmt.Errorf("invalid EncapsulatedOCSPValue: %w", err)
				}
				props.OCSPValues = append(props.OCSPValues, der)
			}
		}
	}
	return nil
}

// Validator validates XAdES signatures against a Configuration.
type Validator struct {
	conf *Configuration
}

// NewValidator creates a validator using conf.
func NewValidator(conf *Configuration) *Validator {
	return &Validator{conf: conf}
}

// Validate runs the full validation of one ds:Signature element. Data object
// references that do not point into the signature document are resolved with
// resolve. Validate never fails; problems are recorded in the result.
func (v *Validator) Validate(id string, sig *etree.Element, resolve ReferenceResolver) *SignatureResult {
	now := v.conf.Clock.Now()
	result := &SignatureResult{ID: id, BestSignatureTime: now}
	defer func() {
		if result.Indication == "" {
			result.Indication = IndicationTotalPassed
		}
		result.SignatureLevel = signatureLevel(result.SigningCertificate, result.Indication)
		log.WithFields(log.Fields{
			"signature":     id,
			"indication":    result.Indication,
			"subIndication": result.SubIndication,
		}).Debug("Signature validated")
	}()

	certs, err := SignatureCertificates(sig)
	if err != nil || len(certs) == 0 {
		result.addError(MsgSigningCertMissing, MsgSigningCertMissingTx)
		result.conclude(IndicationIndeterminate, SubIndicationNoSigningCertFound)
		return result
	}
	signer := certs[0]
	result.SigningCertificate = signer

	props, err := ParseXAdES(sig)
	if err != nil {
		log.Debugf("Signature %s: %v", id, err)
		result.addError(MsgFormatFailure, MsgFormatFailureTx)
		result.conclude(IndicationTotalFailed, SubIndicationFormatFailure)
		return result
	}
	if props.SigningTime.IsZero() {
		result.addWarning(MsgSigningTimeMissing, MsgSigningTimeMissingTx)
	}

	v.checkSigningCertificateDigest(result, signer, props)
	v.checkReferences(result, sig, resolve)
	v.checkSignatureValue(result, sig, signer)
	v.checkTimestamps(result, sig, props)

	chain := v.checkChain(result, signer, certs[1:])
	v.checkRevocation(result, signer, chain, props)

	if !result.TrustedTime.IsZero() {
		result.BestSignatureTime = result.TrustedTime
	}

	if v.conf.RequireQualified {
		if qc, err := ParseQCStatements(signer); err != nil || !qc.HasCompliance() {
			result.addWarning(MsgNotQualified, MsgNotQualifiedTx)
		}
	}
	return result
}

func (v *Validator) checkSigningCertificateDigest(result *SignatureResult, signer *x509.Certificate, props *XAdESProperties) {
	if props.SigningCertDigest == nil {
		return
	}
	digest, err := Digest(props.SigningCertDigestMethod, signer.Raw)
	if err != nil {
		result.addError(MsgAlgorithmNotSupported, MsgAlgorithmNotSupportedTx)
		result.conclude(IndicationIndeterminate, SubIndicationCryptoConstraintsFail)
		return
	}
	if !equalBytes(digest, props.SigningCertDigest) {
		result.addError(MsgSigningCertDigest, MsgSigningCertDigestTx)
		result.conclude(IndicationIndeterminate, SubIndicationNoSigningCertFound)
	}
}

func (v *Validator) checkReferences(result *SignatureResult, sig *etree.Element, resolve ReferenceResolver) {
	signedInfo := sig.SelectElement("SignedInfo")
	if signedInfo == nil {
		result.addError(MsgFormatFailure, MsgFormatFailureTx)
		result.conclude(IndicationTotalFailed, SubIndicationFormatFailure)
		return
	}
	refs, err := ParseReferences(signedInfo)
	if err != nil || len(refs) == 0 {
		result.addError(MsgFormatFailure, MsgFormatFailureTx)
		result.conclude(IndicationTotalFailed, SubIndicationFormatFailure)
		return
	}

	var notFound, notIntact, unsupported bool
	for _, ref := range refs {
		err := VerifyReference(sig, ref, resolve)
		switch {
		case err == nil:
		case errors.Is(err, ErrReferenceNotFound):
			notFound = true
		case errors.Is(err, ErrDigestMismatch):
			notIntact = true
		case errors.Is(err, ErrUnsupportedAlgorithm):
			unsupported = true
		default:
			log.Debugf("Reference %s: %v", ref.URI, err)
			notIntact = true
		}
	}
	if notFound {
		result.addError(MsgReferenceNotFound, MsgReferenceNotFoundTx)
		result.conclude(IndicationIndeterminate, SubIndicationSignedDataNotFound)
	}
	if notIntact {
		result.addError(MsgReferenceNotIntact, MsgReferenceNotIntactTx)
		result.conclude(IndicationTotalFailed, SubIndicationHashFailure)
	}
	if unsupported {
		result.addError(MsgAlgorithmNotSupported, MsgAlgorithmNotSupportedTx)
		result.conclude(IndicationIndeterminate, SubIndicationCryptoConstraintsFail)
	}
}

func (v *Validator) checkSignatureValue(result *SignatureResult, sig *etree.Element, signer *x509.Certificate) {
	err := VerifySignatureValue(sig, signer)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedAlgorithm):
		result.addError(MsgAlgorithmNotSupported, MsgAlgorithmNotSupportedTx)
		result.conclude(IndicationIndeterminate, SubIndicationCryptoConstraintsFail)
	default:
		log.Debugf("Signature %s value: %v", result.ID, err)
		result.addError(MsgSignatureNotIntact, MsgSignatureNotIntactTx)
		result.conclude(IndicationTotalFailed, SubIndicationSigCryptoFailure)
	}
}

// checkTimestamps verifies the signature timestamps. The earliest valid one
// becomes the trusted signing time.
func (v *Validator) checkTimestamps(result *SignatureResult, sig *etree.Element, props *XAdESProperties) {
	valueEl := sig.SelectElement("SignatureValue")
	for _, tsEl := range props.SignatureTimeStamps {
		encapsulated := tsEl.SelectElement("EncapsulatedTimeStamp")
		if encapsulated == nil || valueEl == nil {
			result.addError(MsgTimestampNotIntact, MsgTimestampNotIntactTx)
			result.conclude(IndicationIndeterminate, SubIndicationFormatFailure)
			continue
		}
		der, err := decodeBase64(encapsulated.Text())
		if err != nil {
			result.addError(MsgTimestampNotIntact, MsgTimestampNotIntactTx)
			result.conclude(IndicationIndeterminate, SubIndicationFormatFailure)
			continue
		}
		ts, err := timestamp.Parse(der)
		if err != nil {
			log.Debugf("Signature %s timestamp: %v", result.ID, err)
			result.addError(MsgTimestampNotIntact, MsgTimestampNotIntactTx)
			result.conclude(IndicationIndeterminate, SubIndicationFormatFailure)
			continue
		}

		c, err := canonicalizerFor(tsEl)
		if err != nil {
			result.addError(MsgAlgorithmNotSupported, MsgAlgorithmNotSupportedTx)
			continue
		}
		canonical, err := Canonicalize(valueEl, c)
		if err != nil || !ts.HashAlgorithm.Available() {
			result.addError(MsgTimestampNotIntact, MsgTimestampNotIntactTx)
			continue
		}
		h := ts.HashAlgorithm.New()
		h.Write(canonical)
		if !equalBytes(h.Sum(nil), ts.HashedMessage) {
			result.addError(MsgTimestampImprint, MsgTimestampImprintTx)
			result.conclude(IndicationTotalFailed, SubIndicationHashFailure)
			continue
		}

		if !v.trustsTimestamp(ts) {
			result.addWarning(MsgTimestampNotTrusted, MsgTimestampNotTrustedTx)
			continue
		}
		if result.TrustedTime.IsZero() || ts.Time.Before(result.TrustedTime) {
			result.TrustedTime = ts.Time
		}
	}
}

func (v *Validator) trustsTimestamp(ts *timestamp.Timestamp) bool {
	if len(ts.Certificates) == 0 {
		return false
	}
	tsa := ts.Certificates[0]
	if v.conf.IsTrusted(tsa) {
		return true
	}
	intermediates := x509.NewCertPool()
	for _, c := range ts.Certificates[1:] {
		intermediates.AddCert(c)
	}
	_, err := tsa.Verify(x509.VerifyOptions{
		Roots:         v.conf.Roots(),
		Intermediates: intermediates,
		CurrentTime:   ts.Time,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

// checkChain builds the signer's chain to a trust anchor at the best known
// signing time and returns it, or nil when none exists.
func (v *Validator) checkChain(result *SignatureResult, signer *x509.Certificate, extra []*x509.Certificate) []*x509.Certificate {
	at := v.conf.Clock.Now()
	if !result.TrustedTime.IsZero() {
		at = result.TrustedTime
	}

	intermediates := x509.NewCertPool()
	for _, c := range extra {
		intermediates.AddCert(c)
	}
	chains, err := signer.Verify(x509.VerifyOptions{
		Roots:         v.conf.Roots(),
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err == nil && len(chains) > 0 {
		return chains[0]
	}

	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		result.addError(MsgCertificateExpired, MsgCertificateExpiredTx)
		result.conclude(IndicationIndeterminate, SubIndicationOutOfBoundsNoPOE)
		return nil
	}
	log.Debugf("Signature %s chain: %v", result.ID, err)
	result.addError(MsgChainNotTrusted, MsgChainNotTrustedTx)
	result.conclude(IndicationIndeterminate, SubIndicationNoCertificateChain)
	return nil
}

// checkRevocation looks for an OCSP response about the signer among the
// encapsulated revocation values.
func (v *Validator) checkRevocation(result *SignatureResult, signer *x509.Certificate, chain []*x509.Certificate, props *XAdESProperties) {
	issuer := signer
	if len(chain) > 1 {
		issuer = chain[1]
	}

	var found *ocsp.Response
	for _, der := range props.OCSPValues {
		resp, err := ocsp.ParseResponse(der, issuer)
		if err != nil {
			log.Debugf("Signature %s OCSP: %v", result.ID, err)
			continue
		}
		if resp.SerialNumber == nil || resp.SerialNumber.Cmp(signer.SerialNumber) != 0 {
			continue
		}
		found = resp
		break
	}

	if found == nil {
		if len(props.OCSPValues) > 0 {
			result.addError(MsgRevocationInvalid, MsgRevocationInvalidTx)
			result.conclude(IndicationIndeterminate, SubIndicationTryLater)
			return
		}
		if v.conf.RequireRevocation {
			result.addError(MsgNoRevocationData, MsgNoRevocationDataTx)
			result.conclude(IndicationIndeterminate, SubIndicationTryLater)
		} else {
			result.addWarning(MsgNoRevocationData, MsgNoRevocationDataTx)
		}
		return
	}

	switch found.Status {
	case ocsp.Good:
		if result.TrustedTime.IsZero() {
			result.TrustedTime = found.ProducedAt
		}
	case ocsp.Revoked:
		if !result.TrustedTime.IsZero() && found.RevokedAt.After(result.TrustedTime) {
			result.addWarning(MsgRevokedAfterSigning, MsgRevokedAfterSigningTx)
			return
		}
		result.addError(MsgCertificateRevoked, MsgCertificateRevokedTx)
		result.conclude(IndicationTotalFailed, SubIndicationRevoked)
	default:
		result.addError(MsgRevocationUnknown, MsgRevocationUnknownTx)
		result.conclude(IndicationIndeterminate, SubIndicationTryLater)
	}
}
