package ddoc_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/container/containertest"
	"github.com/huyen-pk/SiVa/container/ddoc"
	"github.com/huyen-pk/SiVa/engine"
)

func build(t *testing.T, opts containertest.Options) (*ddoc.Container, *containertest.PKI) {
	t.Helper()
	p, err := containertest.NewPKI(containertest.PKIOptions{})
	if err != nil {
		t.Fatalf("Failed to create PKI: %v", err)
	}
	data, err := p.DDOC(opts)
	if err != nil {
		t.Fatalf("Failed to build DDOC: %v", err)
	}
	conf, err := p.Configuration()
	if err != nil {
		t.Fatalf("Failed to build configuration: %v", err)
	}
	c, err := ddoc.Parse(data, conf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return c, p
}

func TestParseAndValidate(t *testing.T) {
	tests := []struct {
		name          string
		opts          containertest.Options
		indication    string
		subIndication string
	}{
		{"Valid", containertest.Options{}, engine.IndicationTotalPassed, ""},
		{"Two signatures", containertest.Options{Signatures: 2}, engine.IndicationTotalPassed, ""},
		{"Tampered data file", containertest.Options{TamperData: true}, engine.IndicationTotalFailed, engine.SubIndicationHashFailure},
		{"Revoked signer", containertest.Options{Revoked: true}, engine.IndicationTotalFailed, engine.SubIndicationRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := build(t, tt.opts)
			if err := c.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			for _, sig := range c.Signatures() {
				report, err := sig.ValidationReport()
				if err != nil {
					t.Fatalf("ValidationReport() error = %v", err)
				}
				if got := report.Indication(sig.ID()); got != tt.indication {
					t.Errorf("%s: Indication = %q, want %q (errors %v)", sig.ID(), got, tt.indication, report.Errors(sig.ID()))
				}
				if got := report.SubIndication(sig.ID()); got != tt.subIndication {
					t.Errorf("%s: SubIndication = %q, want %q", sig.ID(), got, tt.subIndication)
				}
			}
		})
	}
}

func TestContainer(t *testing.T) {
	c, _ := build(t, containertest.Options{
		Files: []containertest.File{{Name: "leping.pdf", MimeType: "application/pdf", Content: []byte("%PDF-1.4")}},
	})
	if c.Type() != container.TypeDDOC {
		t.Errorf("Type() = %q, want %q", c.Type(), container.TypeDDOC)
	}
	if c.Version() != "1.3" {
		t.Errorf("Version() = %q, want 1.3", c.Version())
	}
	files := c.DataFiles()
	if len(files) != 1 || files[0].Name != "leping.pdf" || string(files[0].Bytes) != "%PDF-1.4" {
		t.Fatalf("DataFiles() = %+v", files)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	sig := c.Signatures()[0]
	if sig.Profile() != "1.3" {
		t.Errorf("Profile() = %q, want 1.3", sig.Profile())
	}
	uris := sig.ReferenceURIs()
	if len(uris) == 0 || uris[0] != "leping.pdf" {
		t.Errorf("ReferenceURIs() = %q", uris)
	}
	if _, err := sig.TrustedSigningTime(); err != nil {
		t.Errorf("TrustedSigningTime() error = %v", err)
	}
	result, err := sig.ValidateSignature()
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid() || len(result.Warnings) != 0 {
		t.Errorf("ValidateSignature() = errors %v, warnings %v", result.Errors, result.Warnings)
	}
}

func TestOldVersionWarning(t *testing.T) {
	c, _ := build(t, containertest.Options{Version: "1.2"})
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	result, err := c.Signatures()[0].ValidateSignature()
	if err != nil {
		t.Fatal(err)
	}
	want := "Old and unsupported format: SignedDoc version: 1.2"
	found := false
	for _, w := range result.Warnings {
		if w.Error() == want {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want %q", result.Warnings, want)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"Not XML", "PK\x03\x04", nil},
		{"Wrong root", `<Document/>`, ddoc.ErrNotSignedDoc},
		{"Wrong format", `<SignedDoc format="SK-XML" version="1.3"/>`, ddoc.ErrUnsupportedFormat},
		{"Wrong version", `<SignedDoc format="DIGIDOC-XML" version="2.0"/>`, ddoc.ErrUnsupportedVersion},
		{"Unsupported content type", `<SignedDoc format="DIGIDOC-XML" version="1.3"><DataFile ContentType="DETACHED" Filename="a.txt" Id="D0"/></SignedDoc>`, nil},
		{"Missing file name", `<SignedDoc format="DIGIDOC-XML" version="1.3"><DataFile Id="D0">YQ==</DataFile></SignedDoc>`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ddoc.Parse([]byte(tt.data), nil)
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_Hashcode(t *testing.T) {
	data := `<SignedDoc xmlns="http://www.sk.ee/DigiDoc/v1.3.0#" format="DIGIDOC-XML" version="1.3">` +
		`<DataFile ContentType="HASHCODE" Filename="big.iso" Id="D0" MimeType="application/octet-stream"/>` +
		`</SignedDoc>`
	c, err := ddoc.Parse([]byte(data), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	files := c.DataFiles()
	if len(files) != 1 || files[0].Name != "big.iso" || files[0].Bytes != nil {
		t.Errorf("DataFiles() = %+v", files)
	}
	if len(c.Signatures()) != 0 {
		t.Errorf("Signatures() = %d, want 0", len(c.Signatures()))
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "configuration") {
		t.Errorf("Validate() error = %v, want configuration error", err)
	}
}
