package validation

import (
	"archive/zip"
	"bytes"
	"crypto/x509"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/container/asic"
	"github.com/huyen-pk/SiVa/container/builder"
	"github.com/huyen-pk/SiVa/container/containertest"
	"github.com/huyen-pk/SiVa/document"
	"github.com/huyen-pk/SiVa/engine"
	"github.com/huyen-pk/SiVa/exception"
	"github.com/huyen-pk/SiVa/report"
	"github.com/jonboulle/clockwork"
)

type fakeContainer struct {
	typ         string
	validations atomic.Int32
	validateErr error
}

func (c *fakeContainer) Type() string                      { return c.typ }
func (c *fakeContainer) Signatures() []container.Signature { return nil }
func (c *fakeContainer) DataFiles() []container.DataFile   { return nil }

func (c *fakeContainer) Validate() error {
	c.validations.Add(1)
	return c.validateErr
}

// countingBuilder returns the same container for every build.
type countingBuilder struct {
	container *fakeContainer
	err       error
	builds    atomic.Int32
}

func (b *countingBuilder) Build(data []byte, conf *engine.Configuration) (container.Container, error) {
	b.builds.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return b.container, nil
}

type staticProvider struct {
	conf *engine.Configuration
	err  error
}

func (p staticProvider) Configuration() (*engine.Configuration, error) {
	return p.conf, p.err
}

var testDoc = &document.ValidationDocument{
	Name:     "test.bdoc",
	Bytes:    []byte("<SignedDoc/>"),
	MimeType: document.MimeTypeBDOC,
}

func TestValidateDocument_SubtypeGuard(t *testing.T) {
	tests := []struct {
		name          string
		newService    func(ConfigurationProvider, container.Builder, clockwork.Clock) Service
		containerType string
		wantErr       bool
	}{
		{"BDOC accepts BDOC", bdocService, container.TypeBDOC, false},
		{"BDOC rejects DDOC", bdocService, container.TypeDDOC, true},
		{"BDOC rejects ddoc in lower case", bdocService, "ddoc", true},
		{"DDOC accepts DDOC", ddocService, container.TypeDDOC, false},
		{"DDOC rejects BDOC", ddocService, container.TypeBDOC, true},
		{"DDOC rejects unknown", ddocService, "ASICS", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeContainer{typ: tt.containerType}
			b := &countingBuilder{container: c}
			svc := tt.newService(staticProvider{conf: &engine.Configuration{}}, b, clockwork.NewFakeClock())

			_, err := svc.ValidateDocument(testDoc)
			if tt.wantErr {
				if !errors.Is(err, exception.ErrMalformedDocument) {
					t.Fatalf("ValidateDocument() error = %v, want MalformedDocument", err)
				}
				if n := c.validations.Load(); n != 0 {
					t.Errorf("engine invoked %d times, want 0", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateDocument() error = %v", err)
			}
			if n := c.validations.Load(); n != 1 {
				t.Errorf("engine invoked %d times, want 1", n)
			}
		})
	}
}

func bdocService(p ConfigurationProvider, b container.Builder, c clockwork.Clock) Service {
	return NewBDOCService(p, b, c)
}

func ddocService(p ConfigurationProvider, b container.Builder, c clockwork.Clock) Service {
	return NewDDOCService(p, b, c)
}

func TestValidateDocument_Errors(t *testing.T) {
	parseErr := errors.New("zip: not a valid zip file")
	validateErr := errors.New("engine exploded")
	confErr := errors.New("trust list unavailable")

	tests := []struct {
		name     string
		provider staticProvider
		builder  *countingBuilder
		kind     exception.Kind
		cause    error
	}{
		{"Build failure", staticProvider{conf: &engine.Configuration{}}, &countingBuilder{err: parseErr}, exception.KindMalformedDocument, parseErr},
		{"Validate failure", staticProvider{conf: &engine.Configuration{}}, &countingBuilder{container: &fakeContainer{typ: container.TypeBDOC, validateErr: validateErr}}, exception.KindValidationService, validateErr},
		{"Configuration failure", staticProvider{err: confErr}, &countingBuilder{}, exception.KindValidationService, confErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewBDOCService(tt.provider, tt.builder, nil)
			_, err := svc.ValidateDocument(testDoc)
			if exception.KindOf(err) != tt.kind {
				t.Fatalf("ValidateDocument() error = %v, want kind %v", err, tt.kind)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("ValidateDocument() error = %v, want cause %v", err, tt.cause)
			}
		})
	}

	t.Run("Service name", func(t *testing.T) {
		svc := NewBDOCService(staticProvider{conf: &engine.Configuration{}}, &countingBuilder{container: &fakeContainer{typ: container.TypeBDOC, validateErr: validateErr}}, nil)
		_, err := svc.ValidateDocument(testDoc)
		var ve *exception.ValidationError
		if !errors.As(err, &ve) || ve.Component != "BDOCValidationService" {
			t.Errorf("ValidateDocument() error = %v, want component BDOCValidationService", err)
		}
	})
}

func TestDDOCService_XMLGuard(t *testing.T) {
	b := &countingBuilder{container: &fakeContainer{typ: container.TypeDDOC}}
	svc := NewDDOCService(staticProvider{conf: &engine.Configuration{}}, b, nil)

	doc := &document.ValidationDocument{
		Name:  "attack.ddoc",
		Bytes: []byte(`<!DOCTYPE SignedDoc [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><SignedDoc>&xxe;</SignedDoc>`),
	}
	_, err := svc.ValidateDocument(doc)
	if !errors.Is(err, exception.ErrMalformedDocument) {
		t.Fatalf("ValidateDocument() error = %v, want MalformedDocument", err)
	}
	if n := b.builds.Load(); n != 0 {
		t.Errorf("container built %d times, want 0", n)
	}
}

type countingSource struct {
	certs []*x509.Certificate
	calls atomic.Int32
}

func (s *countingSource) Certificates() ([]*x509.Certificate, error) {
	s.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	return s.certs, nil
}

func TestValidateDocument_EndToEnd(t *testing.T) {
	p, err := containertest.NewPKI(containertest.PKIOptions{})
	if err != nil {
		t.Fatalf("Failed to create PKI: %v", err)
	}
	bdoc, err := p.BDOC(containertest.Options{Signatures: 2})
	if err != nil {
		t.Fatal(err)
	}
	ddoc, err := p.DDOC(containertest.Options{})
	if err != nil {
		t.Fatal(err)
	}

	source := &countingSource{certs: []*x509.Certificate{p.Root}}
	provider := engine.NewConfigurationProvider(source, engine.Options{RequireRevocation: true})
	clock := clockwork.NewFakeClockAt(time.Date(2016, 9, 23, 11, 20, 0, 0, time.UTC))
	bdocSvc := NewBDOCService(provider, builder.Default, clock)
	ddocSvc := NewDDOCService(provider, builder.Default, clock)

	var wg sync.WaitGroup
	reports := make([]*report.QualifiedReport, 16)
	errs := make([]error, len(reports))
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				reports[i], errs[i] = bdocSvc.ValidateDocument(&document.ValidationDocument{Name: "test.bdoc", Bytes: bdoc})
			} else {
				reports[i], errs[i] = ddocSvc.ValidateDocument(&document.ValidationDocument{Name: "test.ddoc", Bytes: ddoc})
			}
		}(i)
	}
	wg.Wait()

	if n := source.calls.Load(); n != 1 {
		t.Errorf("trust source called %d times, want 1", n)
	}
	for i, qr := range reports {
		if errs[i] != nil {
			t.Fatalf("ValidateDocument() error = %v", errs[i])
		}
		if qr.ValidationTime != "2016-09-23T11:20:00Z" {
			t.Errorf("ValidationTime = %q", qr.ValidationTime)
		}
		if qr.ValidSignaturesCount != qr.SignaturesCount {
			t.Errorf("%s: %d of %d signatures valid", qr.DocumentName, qr.ValidSignaturesCount, qr.SignaturesCount)
		}
	}

	if got := reports[0].Signatures[0].SignatureFormat; got != "XAdES_BASELINE_LT" {
		t.Errorf("BDOC SignatureFormat = %q", got)
	}
	if got := reports[1].Signatures[0].SignatureFormat; got != "DIGIDOC_XML_1.3" {
		t.Errorf("DDOC SignatureFormat = %q", got)
	}
	if scopes := reports[0].Signatures[0].SignatureScopes; len(scopes) != 1 || scopes[0].Name != "test.txt" {
		t.Errorf("SignatureScopes = %+v", scopes)
	}

	_, err = bdocSvc.ValidateDocument(&document.ValidationDocument{Name: "test.ddoc", Bytes: ddoc})
	if !errors.Is(err, exception.ErrMalformedDocument) {
		t.Errorf("BDOC service with DDOC input: error = %v, want MalformedDocument", err)
	}
}

func TestValidateDocument_UnsignedBDOC(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct{ name, content string }{
		{"mimetype", asic.MimeType},
		{"test.txt", "unsigned content"},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	p, err := containertest.NewPKI(containertest.PKIOptions{})
	if err != nil {
		t.Fatalf("Failed to create PKI: %v", err)
	}
	provider := engine.NewConfigurationProvider(&countingSource{certs: []*x509.Certificate{p.Root}}, engine.Options{})
	svc := NewBDOCService(provider, builder.Default, clockwork.NewFakeClock())

	qr, err := svc.ValidateDocument(&document.ValidationDocument{Name: "unsigned.bdoc", Bytes: buf.Bytes()})
	if err != nil {
		t.Fatalf("ValidateDocument() error = %v", err)
	}
	if qr.SignaturesCount != 0 || qr.ValidSignaturesCount != 0 {
		t.Errorf("signatures = %d, valid = %d, want 0 and 0", qr.SignaturesCount, qr.ValidSignaturesCount)
	}
	if qr.Signatures == nil || len(qr.Signatures) != 0 {
		t.Errorf("Signatures = %#v, want empty list", qr.Signatures)
	}
	data, err := qr.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"signatures":[]`)) {
		t.Errorf("JSON report = %s", data)
	}
}
