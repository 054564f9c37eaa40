package builder

import (
	"errors"
	"testing"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/container/containertest"
)

func TestBuild(t *testing.T) {
	p, err := containertest.NewPKI(containertest.PKIOptions{})
	if err != nil {
		t.Fatalf("Failed to create PKI: %v", err)
	}
	conf, err := p.Configuration()
	if err != nil {
		t.Fatal(err)
	}
	bdoc, err := p.BDOC(containertest.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ddoc, err := p.DDOC(containertest.Options{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"BDOC", bdoc, container.TypeBDOC},
		{"DDOC", ddoc, container.TypeDDOC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Default.Build(tt.data, conf)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if c.Type() != tt.want {
				t.Errorf("Type() = %q, want %q", c.Type(), tt.want)
			}
		})
	}
}

func TestBuild_UnknownFormat(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("%PDF-1.7"), []byte("   ")} {
		if _, err := Build(data, nil); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("Build(%q) error = %v, want ErrUnknownFormat", data, err)
		}
	}
}

func TestIsXML(t *testing.T) {
	tests := []struct {
		data string
		want bool
	}{
		{"<SignedDoc/>", true},
		{"\xef\xbb\xbf<?xml version=\"1.0\"?><a/>", true},
		{"\r\n  <a/>", true},
		{"PK\x03\x04", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isXML([]byte(tt.data)); got != tt.want {
			t.Errorf("isXML(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
}
