// Package asic reads BDOC (ASiC-E) signature containers: a ZIP archive with a
// mimetype entry, the signed data files and XAdES signatures in META-INF.
package asic

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/beevik/etree"
	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/engine"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// MimeType is the content of the mimetype entry of a BDOC container.
const MimeType = "application/vnd.etsi.asic-e+zip"

// Well known entry names.
const (
	MimeTypeEntry = "mimetype"
	ManifestEntry = "META-INF/manifest.xml"
	metaInfPrefix = "META-INF/"
)

// NamespaceManifest is the OpenDocument manifest namespace.
const NamespaceManifest = "urn:oasis:names:tc:opendocument:xmlns:manifest:1.0"

// MaxEntrySize limits the uncompressed size of a single ZIP entry.
var MaxEntrySize int64 = 64 << 20

// Parse errors.
var (
	ErrMissingMimeType = errors.New("container has no mimetype entry")
	ErrWrongMimeType   = errors.New("container mimetype is not " + MimeType)
	ErrEntryTooLarge   = errors.New("container entry exceeds size limit")
)

// ManifestFile is a file entry of META-INF/manifest.xml.
type ManifestFile struct {
	FullPath  string
	MediaType string
}

// Container is a parsed BDOC container.
type Container struct {
	conf       *engine.Configuration
	dataFiles  []container.DataFile
	byName     map[string]int
	manifest   []ManifestFile
	signatures []*Signature
	report     *engine.SimpleReport
}

// Parse reads a BDOC container. conf is used when the container is validated.
func Parse(data []byte, conf *engine.Configuration) (*Container, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}

	c := &Container{conf: conf, byName: make(map[string]int)}
	var sigFiles []string
	entries := make(map[string][]byte)
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		name := norm.NFC.String(f.Name)
		entries[name] = content

		switch {
		case name == MimeTypeEntry:
		case strings.HasPrefix(name, metaInfPrefix):
			if isSignatureFile(name) {
				sigFiles = append(sigFiles, name)
			}
		default:
			c.byName[name] = len(c.dataFiles)
			c.dataFiles = append(c.dataFiles, container.DataFile{Name: name, Bytes: content})
		}
	}

	mt, ok := entries[MimeTypeEntry]
	if !ok {
		return nil, ErrMissingMimeType
	}
	if strings.TrimSpace(string(mt)) != MimeType {
		return nil, fmt.Errorf("%w: %q", ErrWrongMimeType, strings.TrimSpace(string(mt)))
	}

	if m, ok := entries[ManifestEntry]; ok {
		c.manifest, err = parseManifest(m)
		if err != nil {
			return nil, err
		}
		for _, entry := range c.manifest {
			if i, ok := c.byName[entry.FullPath]; ok {
				c.dataFiles[i].MimeType = entry.MediaType
			}
		}
	}

	for _, name := range sigFiles {
		sigs, err := c.parseSignatureFile(name, entries[name])
		if err != nil {
			return nil, err
		}
		c.signatures = append(c.signatures, sigs...)
	}
	return c, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if int64(f.UncompressedSize64) > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", f.Name, err)
	}
	if int64(len(content)) > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return content, nil
}

func isSignatureFile(name string) bool {
	base := path.Base(name)
	return path.Dir(name)+"/" == metaInfPrefix &&
		strings.Contains(strings.ToLower(base), "signatures") &&
		strings.HasSuffix(strings.ToLower(base), ".xml")
}

func parseManifest(data []byte) ([]ManifestFile, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "manifest" {
		return nil, errors.New("invalid manifest: missing manifest element")
	}
	var files []ManifestFile
	for _, el := range root.SelectElements("file-entry") {
		fullPath := attrValue(el, "full-path")
		if fullPath == "/" {
			continue
		}
		files = append(files, ManifestFile{
			FullPath:  norm.NFC.String(fullPath),
			MediaType: attrValue(el, "media-type"),
		})
	}
	return files, nil
}

// attrValue returns the value of an attribute regardless of its prefix.
func attrValue(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func (c *Container) parseSignatureFile(name string, data []byte) ([]*Signature, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("invalid signature file %s: %w", name, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("invalid signature file %s: empty document", name)
	}

	var elements []*etree.Element
	if root.Tag == "Signature" {
		elements = []*etree.Element{root}
	} else {
		elements = root.SelectElements("Signature")
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("signature file %s contains no signatures", name)
	}

	sigs := make([]*Signature, 0, len(elements))
	for _, el := range elements {
		id := el.SelectAttrValue("Id", "")
		if id == "" {
			id = fmt.Sprintf("S%d", len(c.signatures)+len(sigs))
		}
		base, err := container.NewXMLSignature(id, el, c.resolve)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, &Signature{XMLSignature: base, container: c})
	}
	return sigs, nil
}

// resolve returns the content of the data file a reference URI points to.
func (c *Container) resolve(uri string) ([]byte, error) {
	i, ok := c.byName[DecodeURI(uri)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrReferenceNotFound, uri)
	}
	return c.dataFiles[i].Bytes, nil
}

// DecodeURI turns a reference URI into a container entry name.
func DecodeURI(uri string) string {
	if decoded, err := url.PathUnescape(uri); err == nil {
		uri = decoded
	}
	return norm.NFC.String(uri)
}

func (c *Container) Type() string {
	return container.TypeBDOC
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

// Manifest returns the manifest file entries.
func (c *Container) Manifest() []ManifestFile {
	return c.manifest
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
	log.WithField("signatures", c.report.SignatureIDs()).Debugf("Validated BDOC container, %d valid", c.report.ValidSignaturesCount())
	return nil
}
