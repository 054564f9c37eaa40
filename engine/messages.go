package engine

// Message ids and texts reported by the engine. The ids follow the naming of
// the ETSI EN 319 102-1 building blocks used by the EU DSS library so that
// reports are comparable with other validators.
const (
	MsgFormatFailure   = "BBB_FC_IEFF_ANS"
	MsgFormatFailureTx = "The signature format is not conformant!"

	MsgSigningCertMissing   = "BBB_ICS_ISCI_ANS"
	MsgSigningCertMissingTx = "The signing certificate has not been identified!"

	MsgSigningCertDigest   = "BBB_ICS_ICDVV_ANS"
	MsgSigningCertDigestTx = "The signing certificate digest value does not match!"

	MsgReferenceNotFound   = "BBB_CV_IRDOF_ANS"
	MsgReferenceNotFoundTx = "The reference data object(s) is not found!"

	MsgReferenceNotIntact   = "BBB_CV_IRDOI_ANS"
	MsgReferenceNotIntactTx = "The reference data object(s) is not intact!"

	MsgSignatureNotIntact   = "BBB_CV_ISI_ANS"
	MsgSignatureNotIntactTx = "The signature is not intact!"

	MsgAlgorithmNotSupported   = "BBB_SAV_ASCCM_ANS"
	MsgAlgorithmNotSupportedTx = "The algorithm is not supported!"

	MsgChainNotTrusted   = "BBB_XCV_CCCBB_ANS"
	MsgChainNotTrustedTx = "The certificate chain for signature is not trusted, there is no trusted anchor."

	MsgCertificateExpired   = "BBB_XCV_ICTIVRSC_ANS"
	MsgCertificateExpiredTx = "The current time is not in the validity range of the signer's certificate."

	MsgNoRevocationData   = "BBB_XCV_IRDPFC_ANS"
	MsgNoRevocationDataTx = "No revocation data for the certificate"

	MsgCertificateRevoked   = "BBB_XCV_ISCR_ANS"
	MsgCertificateRevokedTx = "The certificate is revoked!"

	MsgRevocationUnknown   = "BBB_XCV_RFC_ANS"
	MsgRevocationUnknownTx = "The revocation status of the certificate is unknown!"

	MsgRevocationInvalid   = "BBB_XCV_IRIF_ANS"
	MsgRevocationInvalidTx = "The revocation data is not consistent!"

	MsgTimestampNotIntact   = "BBB_SAV_TSP_IMIVC_ANS"
	MsgTimestampNotIntactTx = "The time-stamp token is not intact!"

	MsgTimestampImprint   = "BBB_SAV_TSP_IMIDF_ANS"
	MsgTimestampImprintTx = "The time-stamp message imprint does not match the signature value!"

	MsgTimestampNotTrusted   = "BBB_XCV_TSP_CCCBB_ANS"
	MsgTimestampNotTrustedTx = "The certificate chain for the time-stamp is not trusted!"

	MsgNotQualified   = "QUAL_IS_ADESQC"
	MsgNotQualifiedTx = "The signature/seal is not a qualified electronic signature/seal!"

	MsgRevokedAfterSigning   = "BBB_XCV_ISCR_ANS_W"
	MsgRevokedAfterSigningTx = "The certificate was revoked after the best signature time."

	MsgSigningTimeMissing   = "BBB_SAV_ISQPSTP_ANS"
	MsgSigningTimeMissingTx = "The signing time is not present in the signed properties!"
)
