package asic_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/container/asic"
	"github.com/huyen-pk/SiVa/container/containertest"
	"github.com/huyen-pk/SiVa/engine"
)

func newPKI(t *testing.T, opts containertest.PKIOptions) *containertest.PKI {
	t.Helper()
	p, err := containertest.NewPKI(opts)
	if err != nil {
		t.Fatalf("Failed to create PKI: %v", err)
	}
	return p
}

func parseAndValidate(t *testing.T, p *containertest.PKI, opts containertest.Options) *asic.Container {
	t.Helper()
	data, err := p.BDOC(opts)
	if err != nil {
		t.Fatalf("Failed to build container: %v", err)
	}
	conf, err := p.Configuration()
	if err != nil {
		t.Fatalf("Failed to build configuration: %v", err)
	}
	c, err := asic.Parse(data, conf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return c
}

func TestParseAndValidate(t *testing.T) {
	p := newPKI(t, containertest.PKIOptions{})
	ecdsaPKI := newPKI(t, containertest.PKIOptions{ECDSA: true, Qualified: true})
	untrusted := newPKI(t, containertest.PKIOptions{Untrusted: true})

	tests := []struct {
		name          string
		pki           *containertest.PKI
		opts          containertest.Options
		profile       string
		indication    string
		subIndication string
		level         string
	}{
		{"LT", p, containertest.Options{}, asic.ProfileLT, engine.IndicationTotalPassed, "", engine.SignatureLevelAdES},
		{"LT_TM", p, containertest.Options{Profile: containertest.ProfileLTTM}, asic.ProfileLTTM, engine.IndicationTotalPassed, "", engine.SignatureLevelAdES},
		{"ECDSA qualified", ecdsaPKI, containertest.Options{}, asic.ProfileLT, engine.IndicationTotalPassed, "", engine.SignatureLevelQES},
		{"Tampered data file", p, containertest.Options{TamperData: true}, asic.ProfileLT, engine.IndicationTotalFailed, engine.SubIndicationHashFailure, engine.SignatureLevelNA},
		{"Revoked signer", p, containertest.Options{Revoked: true}, asic.ProfileLT, engine.IndicationTotalFailed, engine.SubIndicationRevoked, engine.SignatureLevelNA},
		{"Untrusted chain", untrusted, containertest.Options{}, asic.ProfileLT, engine.IndicationIndeterminate, engine.SubIndicationNoCertificateChain, engine.SignatureLevelNA},
		{"No revocation data", p, containertest.Options{Profile: containertest.ProfileBES}, asic.ProfileBES, engine.IndicationIndeterminate, engine.SubIndicationTryLater, engine.SignatureLevelNA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parseAndValidate(t, tt.pki, tt.opts)
			sigs := c.Signatures()
			if len(sigs) != 1 {
				t.Fatalf("Signatures() = %d, want 1", len(sigs))
			}
			sig := sigs[0]
			if sig.Profile() != tt.profile {
				t.Errorf("Profile() = %q, want %q", sig.Profile(), tt.profile)
			}
			report, err := sig.ValidationReport()
			if err != nil {
				t.Fatalf("ValidationReport() error = %v", err)
			}
			if got := report.Indication(sig.ID()); got != tt.indication {
				t.Errorf("Indication = %q, want %q (errors %v)", got, tt.indication, report.Errors(sig.ID()))
			}
			if got := report.SubIndication(sig.ID()); got != tt.subIndication {
				t.Errorf("SubIndication = %q, want %q", got, tt.subIndication)
			}
			if got := report.SignatureLevel(sig.ID()); got != tt.level {
				t.Errorf("SignatureLevel = %q, want %q", got, tt.level)
			}
		})
	}
}

func TestSignatureAccessors(t *testing.T) {
	p := newPKI(t, containertest.PKIOptions{SignerCN: "MÄNNIK,MARI-LIIS,47101010033"})
	files := []containertest.File{
		{Name: "dokument ä.txt", MimeType: "text/plain", Content: []byte("first")},
		{Name: "data.bin", MimeType: "application/octet-stream", Content: []byte{0, 1, 2}},
	}
	c := parseAndValidate(t, p, containertest.Options{Files: files})

	if c.Type() != container.TypeBDOC {
		t.Errorf("Type() = %q, want %q", c.Type(), container.TypeBDOC)
	}
	dataFiles := c.DataFiles()
	if len(dataFiles) != 2 {
		t.Fatalf("DataFiles() = %d, want 2", len(dataFiles))
	}
	if dataFiles[0].Name != "dokument ä.txt" || dataFiles[0].MimeType != "text/plain" {
		t.Errorf("DataFiles()[0] = %q %q", dataFiles[0].Name, dataFiles[0].MimeType)
	}
	if len(c.Manifest()) != 2 {
		t.Errorf("Manifest() = %d entries, want 2", len(c.Manifest()))
	}

	sig := c.Signatures()[0]
	if sig.ID() != "S0" {
		t.Errorf("ID() = %q, want S0", sig.ID())
	}
	if sig.SignerName() != "MÄNNIK,MARI-LIIS,47101010033" {
		t.Errorf("SignerName() = %q", sig.SignerName())
	}
	uris := sig.ReferenceURIs()
	if len(uris) != 3 || uris[0] != "dokument ä.txt" || uris[1] != "data.bin" {
		t.Errorf("ReferenceURIs() = %q", uris)
	}

	claimed, err := sig.ClaimedSigningTime()
	if err != nil {
		t.Fatalf("ClaimedSigningTime() error = %v", err)
	}
	trusted, err := sig.TrustedSigningTime()
	if err != nil {
		t.Fatalf("TrustedSigningTime() error = %v", err)
	}
	if trusted.Before(claimed) {
		t.Errorf("trusted time %v before claimed time %v", trusted, claimed)
	}

	result, err := sig.ValidateSignature()
	if err != nil {
		t.Fatalf("ValidateSignature() error = %v", err)
	}
	if !result.IsValid() {
		t.Errorf("ValidateSignature() errors = %v", result.Errors)
	}
}

func TestValidateSignature_ContainerChecks(t *testing.T) {
	p := newPKI(t, containertest.PKIOptions{})

	tests := []struct {
		name    string
		opts    containertest.Options
		message string
	}{
		{"Unsigned data file", containertest.Options{UnsignedFile: true}, "Container contains a file named unsigned.txt which is not found in the signature file"},
		{"Manifest entry not signed", containertest.Options{UnsignedFile: true}, "Manifest file has an entry for file unsigned.txt with mimetype text/plain but the signature file for signature S0 does not have an entry for this file"},
		{"B_BES profile", containertest.Options{Profile: containertest.ProfileBES}, "Signature profile B_BES is not supported for validation"},
		{"B_BES without OCSP", containertest.Options{Profile: containertest.ProfileBES}, "Signature has no OCSP confirmation"},
		{"Tampered data file", containertest.Options{TamperData: true}, engine.MsgReferenceNotIntactTx},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parseAndValidate(t, p, tt.opts)
			result, err := c.Signatures()[0].ValidateSignature()
			if err != nil {
				t.Fatalf("ValidateSignature() error = %v", err)
			}
			found := false
			for _, e := range result.Errors {
				if e.Error() == tt.message {
					found = true
				}
			}
			if !found {
				t.Errorf("ValidateSignature() errors = %v, want %q", result.Errors, tt.message)
			}
		})
	}
}

func TestMultipleSignatures(t *testing.T) {
	p := newPKI(t, containertest.PKIOptions{})
	c := parseAndValidate(t, p, containertest.Options{Signatures: 2})

	sigs := c.Signatures()
	if len(sigs) != 2 {
		t.Fatalf("Signatures() = %d, want 2", len(sigs))
	}
	report, err := sigs[1].ValidationReport()
	if err != nil {
		t.Fatalf("ValidationReport() error = %v", err)
	}
	if report.ValidSignaturesCount() != 2 {
		t.Errorf("ValidSignaturesCount() = %d, want 2", report.ValidSignaturesCount())
	}
	if ids := report.SignatureIDs(); len(ids) != 2 || ids[0] != "S0" || ids[1] != "S1" {
		t.Errorf("SignatureIDs() = %v", ids)
	}
}

func TestResultsBeforeValidate(t *testing.T) {
	p := newPKI(t, containertest.PKIOptions{})
	data, err := p.BDOC(containertest.Options{})
	if err != nil {
		t.Fatalf("Failed to build container: %v", err)
	}
	c, err := asic.Parse(data, nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sig := c.Signatures()[0]
	if _, err := sig.ValidationReport(); !errors.Is(err, container.ErrNotValidated) {
		t.Errorf("ValidationReport() error = %v, want ErrNotValidated", err)
	}
	if _, err := sig.TrustedSigningTime(); !errors.Is(err, container.ErrNotValidated) {
		t.Errorf("TrustedSigningTime() error = %v, want ErrNotValidated", err)
	}
	if err := c.Validate(); err == nil {
		t.Error("Validate() with nil configuration should fail")
	}
}

func TestMissingSigningTime(t *testing.T) {
	p := newPKI(t, containertest.PKIOptions{})
	c := parseAndValidate(t, p, containertest.Options{OmitSigningTime: true})
	if _, err := c.Signatures()[0].ClaimedSigningTime(); !errors.Is(err, container.ErrMissingTime) {
		t.Errorf("ClaimedSigningTime() error = %v, want ErrMissingTime", err)
	}
}

func zipOf(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
		msg     string
	}{
		{"Not a ZIP", []byte("plain text"), nil, "failed to open container"},
		{"Missing mimetype", zipOf(t, map[string]string{"test.txt": "x"}), asic.ErrMissingMimeType, ""},
		{"Wrong mimetype", zipOf(t, map[string]string{"mimetype": "application/zip"}), asic.ErrWrongMimeType, ""},
		{"Broken signature file", zipOf(t, map[string]string{"mimetype": asic.MimeType, "META-INF/signatures0.xml": "<a>"}), nil, "invalid signature file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := asic.Parse(tt.data, nil)
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if tt.msg != "" && !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.msg)
			}
		})
	}
}

func TestParse_Unsigned(t *testing.T) {
	c, err := asic.Parse(zipOf(t, map[string]string{"mimetype": asic.MimeType, "test.txt": "x"}), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Type() != container.TypeBDOC {
		t.Errorf("Type() = %q, want %q", c.Type(), container.TypeBDOC)
	}
	if n := len(c.Signatures()); n != 0 {
		t.Errorf("Signatures() = %d, want 0", n)
	}
	if df := c.DataFiles(); len(df) != 1 || df[0].Name != "test.txt" {
		t.Errorf("DataFiles() = %+v", df)
	}
}

func TestDecodeURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"test.txt", "test.txt"},
		{"dokument%20%C3%A4.txt", "dokument ä.txt"},
		{"ä.txt", "ä.txt"},
		{"bad%zz.txt", "bad%zz.txt"},
	}
	for _, tt := range tests {
		if got := asic.DecodeURI(tt.uri); got != tt.want {
			t.Errorf("DecodeURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
