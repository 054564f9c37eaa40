// Package ddoc reads DigiDoc XML (DDOC) containers, the legacy Estonian
// signature format where data files and signatures share one XML document.
package ddoc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/engine"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// Format is the value of the SignedDoc format attribute.
const Format = "DIGIDOC-XML"

// Namespace is the DigiDoc 1.3 namespace.
const Namespace = "http://www.sk.ee/DigiDoc/v1.3.0#"

// Data file content types.
const (
	ContentEmbeddedBase64 = "EMBEDDED_BASE64"
	ContentHashcode       = "HASHCODE"
)

// SupportedVersions lists the SignedDoc versions accepted by Parse.
var SupportedVersions = []string{"1.0", "1.1", "1.2", "1.3"}

// Parse errors.
var (
	ErrNotSignedDoc       = errors.New("document root is not SignedDoc")
	ErrUnsupportedFormat  = errors.New("unsupported DigiDoc format")
	ErrUnsupportedVersion = errors.New("unsupported DigiDoc version")
)

// Container is a parsed DDOC container.
type Container struct {
	conf       *engine.Configuration
	format     string
	version    string
	dataFiles  []container.DataFile
	fileByID   map[string]string
	signatures []*Signature
	report     *engine.SimpleReport
}

// Parse reads a DDOC document. conf is used when the container is validated.
func Parse(data []byte, conf *engine.Configuration) (*Container, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("invalid DigiDoc XML: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "SignedDoc" {
		return nil, ErrNotSignedDoc
	}

	c := &Container{
		conf:     conf,
		format:   root.SelectAttrValue("format", ""),
		version:  root.SelectAttrValue("version", ""),
		fileByID: make(map[string]string),
	}
	if c.format != Format {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.format)
	}
	if !supportedVersion(c.version) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, c.version)
	}

	for _, el := range root.SelectElements("DataFile") {
		df, err := parseDataFile(el)
		if err != nil {
			return nil, err
		}
		c.fileByID[el.SelectAttrValue("Id", "")] = df.Name
		c.dataFiles = append(c.dataFiles, df)
	}

	for i, el := range root.SelectElements("Signature") {
		id := el.SelectAttrValue("Id", "")
		if id == "" {
			id = fmt.Sprintf("S%d", i)
		}
		base, err := container.NewXMLSignature(id, el, nil)
		if err != nil {
			return nil, err
		}
		c.signatures = append(c.signatures, &Signature{XMLSignature: base, container: c})
	}
	return c, nil
}

func supportedVersion(v string) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

func parseDataFile(el *etree.Element) (container.DataFile, error) {
	df := container.DataFile{
		Name:     el.SelectAttrValue("Filename", ""),
		MimeType: el.SelectAttrValue("MimeType", ""),
	}
	if df.Name == "" {
		return df, errors.New("DataFile has no Filename")
	}
	switch contentType := el.SelectAttrValue("ContentType", ContentEmbeddedBase64); contentType {
	case ContentEmbeddedBase64:
		content, err := decodeBase64(el.Text())
		if err != nil {
			return df, fmt.Errorf("DataFile %s: invalid content: %w", df.Name, err)
		}
		df.Bytes = content
	case ContentHashcode:
	default:
		return df, fmt.Errorf("DataFile %s: unsupported content type %q", df.Name, contentType)
	}
	return df, nil
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
}

func (c *Container) Type() string {
	return container.TypeDDOC
}

// Version returns the SignedDoc version.
func (c *Container) Version() string {
	return c.version
}

func (c *Container) Signatures() []container.Signature {
	sigs := make([]container.Signature, len(c.signatures))
	for i, s := range c.signatures {
		sigs[i] = s
	}
	return sigs
}

func (c *Container) DataFiles() []container.DataFile {
	return c.dataFiles
}

// Validate validates every signature with the engine.
func (c *Container) Validate() error {
	if c.conf == nil {
		return errors.New("engine configuration is nil")
	}
	c.report = engine.NewSimpleReport(c.conf.Clock.Now())
	v := engine.NewValidator(c.conf)
	for _, s := range c.signatures {
		s.Validate(v, c.report)
	}
	log.WithField("signatures", c.report.SignatureIDs()).Debugf("Validated DDOC %s container", c.Version())
	return nil
}

// Signature is a signature of a DDOC container.
type Signature struct {
	*container.XMLSignature
	container *Container
}

// Profile returns the SignedDoc version the signature belongs to.
func (s *Signature) Profile() string {
	return s.container.Version()
}

// ReferenceURIs maps data file references ("#D0") to data file names.
func (s *Signature) ReferenceURIs() []string {
	uris := s.XMLSignature.ReferenceURIs()
	for i, uri := range uris {
		if name, ok := s.container.fileByID[strings.TrimPrefix(uri, "#")]; ok {
			uris[i] = name
		}
	}
	return uris
}

// ValidateSignature returns the engine findings together with DDOC specific
// warnings.
func (s *Signature) ValidateSignature() (*container.ValidationResult, error) {
	result, err := s.XMLSignature.ValidateSignature()
	if err != nil {
		return nil, err
	}
	if s.container.version != "1.3" {
		result.Warnings = append(result.Warnings,
			container.NewSignatureError("Old and unsupported format: SignedDoc version: %s", s.container.version))
	}
	return result, nil
}
