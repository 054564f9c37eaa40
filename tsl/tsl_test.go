package tsl

import (
	"crypto/x509"
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	ca := newCA(t, "ESTEID-SK 2015")
	tsa := newCA(t, "SK TIMESTAMPING AUTHORITY")
	lotlSigner := newCA(t, "LOTL signer")

	list := testList{
		Territory: "EE",
		Services: []testService{
			{Name: "ESTEID-SK 2015", Type: ServiceTypeCAQC, Status: StatusGranted, Certs: []*x509.Certificate{ca.Cert}},
			{Name: "SK TSA", Type: ServiceTypeQTST, Status: StatusGranted, Certs: []*x509.Certificate{tsa.Cert}},
			{Name: "Broken", Type: ServiceTypeCAQC, Status: StatusGranted, RawCert: "!!!"},
		},
		Pointers: []testPointer{
			{Location: "https://sr.riik.ee/tsl/estonian-tsl.xml", Territory: "EE", Signers: []*x509.Certificate{lotlSigner.Cert}},
			{Location: "https://sr.riik.ee/tsl/estonian-tsl.pdf", Territory: "EE", MimeType: "application/pdf"},
		},
	}

	tl, parseErrs, err := Parse([]byte(list.XML()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parseErrs) != 1 {
		t.Errorf("Expected 1 parse error for the broken service, got %d", len(parseErrs))
	}
	if tl.Territory != "EE" || tl.SequenceNumber != 42 {
		t.Errorf("Territory = %q, SequenceNumber = %d", tl.Territory, tl.SequenceNumber)
	}
	if tl.Operator != "Consumer Protection Authority" {
		t.Errorf("Operator = %q", tl.Operator)
	}
	if want := time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC); !tl.IssueDate.Equal(want) {
		t.Errorf("IssueDate = %v", tl.IssueDate)
	}
	if len(tl.Services) != 2 {
		t.Fatalf("Expected 2 services, got %d", len(tl.Services))
	}
	svc := tl.Services[0]
	if svc.Provider != "SK ID Solutions AS" || svc.Name != "ESTEID-SK 2015" || svc.Type != ServiceTypeCAQC {
		t.Errorf("Service = %+v", svc)
	}
	if len(svc.Certificates) != 1 || !svc.Certificates[0].Equal(ca.Cert) {
		t.Errorf("Service certificates not parsed")
	}
	if len(tl.Pointers) != 1 {
		t.Fatalf("Expected 1 XML pointer, got %d", len(tl.Pointers))
	}
	if p := tl.Pointers[0]; p.Territory != "EE" || len(p.SignerCertificates) != 1 {
		t.Errorf("Pointer = %+v", p)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"Not XML", "not xml", nil},
		{"Other root", `<SignedDoc/>`, nil},
		{"No scheme information", `<TrustServiceStatusList xmlns="http://uri.etsi.org/02231/v2#"/>`, nil},
		{"Empty list", testList{Territory: "EE"}.XML(), ErrNoServices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrustAnchors(t *testing.T) {
	granted := newCA(t, "granted")
	withdrawn := newCA(t, "withdrawn")
	accredited := newCA(t, "accredited")
	tsa := newCA(t, "tsa")
	other := newCA(t, "other")

	tl := &TrustedList{Services: []Service{
		{Type: ServiceTypeCAQC, Status: StatusGranted, Certificates: []*x509.Certificate{granted.Cert}},
		{Type: ServiceTypeCAQC, Status: StatusWithdrawn, Certificates: []*x509.Certificate{withdrawn.Cert}},
		{Type: ServiceTypeCAQC, Status: StatusAccredited, Certificates: []*x509.Certificate{accredited.Cert}},
		{Type: ServiceTypeQTST, Status: StatusGranted, Certificates: []*x509.Certificate{tsa.Cert}},
		{Type: TrstSvcURIBase + "/Svctype/EDS/Q", Status: StatusGranted, Certificates: []*x509.Certificate{other.Cert}},
	}}

	tests := []struct {
		name  string
		types []string
		want  []*x509.Certificate
	}{
		{"Default types", nil, []*x509.Certificate{granted.Cert, accredited.Cert, tsa.Cert}},
		{"CA only", []string{ServiceTypeCAQC}, []*x509.Certificate{granted.Cert, accredited.Cert}},
		{"Nothing", []string{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tl.TrustAnchors(tt.types)
			if len(got) != len(tt.want) {
				t.Fatalf("TrustAnchors() returned %d certs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("cert %d = %s, want %s", i, got[i].Subject.CommonName, tt.want[i].Subject.CommonName)
				}
			}
		})
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		nextUpdate time.Time
		want       bool
	}{
		{"Closed list", time.Time{}, false},
		{"Future update", now.Add(time.Hour), false},
		{"Past update", now.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := &TrustedList{NextUpdate: tt.nextUpdate}
			if got := tl.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractFromIntlString(t *testing.T) {
	tests := []struct {
		name  string
		names []multiLangString
		want  string
	}{
		{"Empty", nil, "unknown"},
		{"Preferred", []multiLangString{{Lang: "et", Value: "Eesti"}, {Lang: "EN", Value: " English "}}, "English"},
		{"Fallback", []multiLangString{{Lang: "et", Value: "Eesti"}}, "Eesti"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractFromIntlString(tt.names); got != tt.want {
				t.Errorf("extractFromIntlString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"2016-06-30T22:00:00Z", time.Date(2016, 6, 30, 22, 0, 0, 0, time.UTC), false},
		{"2016-06-30T22:00:00", time.Date(2016, 6, 30, 22, 0, 0, 0, time.UTC), false},
		{" 2016-06-30 ", time.Date(2016, 6, 30, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDateTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDateTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDateTime() = %v, want %v", got, tt.want)
			}
		})
	}
}
