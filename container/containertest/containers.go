package containertest

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/huyen-pk/SiVa/engine"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	asicMimeType      = "application/vnd.etsi.asic-e+zip"
	manifestNamespace = "urn:oasis:names:tc:opendocument:xmlns:manifest:1.0"
	ddocNamespace     = "http://www.sk.ee/DigiDoc/v1.3.0#"
)

var tampered = []byte("tampered\n")

// BDOC returns a signed ASiC-E container.
func (p *PKI) BDOC(opts Options) ([]byte, error) {
	opts.defaults()
	style := xadesStyle{
		ds:            "ds:",
		xades:         "xades:",
		c14n:          dsig.CanonicalXML11AlgorithmId,
		transformC14N: true,
	}

	refs := make([]reference, len(opts.Files))
	for i, f := range opts.Files {
		refs[i] = reference{uri: escapeURI(f.Name), content: f.Content}
	}

	signatureFiles := make([][]byte, opts.Signatures)
	for i := range signatureFiles {
		doc := etree.NewDocument()
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="no"`)
		root := doc.CreateElement("asic:XAdESSignatures")
		root.CreateAttr("xmlns:asic", engine.NamespaceASiC)
		root.CreateAttr("xmlns:ds", engine.NamespaceDSig)
		root.CreateAttr("xmlns:xades", engine.NamespaceXAdES)
		if err := p.sign(root, fmt.Sprintf("S%d", i), style, refs, opts); err != nil {
			return nil, err
		}
		data, err := doc.WriteToBytes()
		if err != nil {
			return nil, err
		}
		signatureFiles[i] = data
	}

	files := append([]File(nil), opts.Files...)
	if opts.TamperData {
		files[0].Content = append(append([]byte(nil), files[0].Content...), tampered...)
	}
	if opts.UnsignedFile {
		files = append(files, File{Name: "unsigned.txt", MimeType: "text/plain", Content: []byte("not signed\n")})
	}
	return writeZip(files, signatureFiles)
}

func writeZip(files []File, signatureFiles [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(asicMimeType)); err != nil {
		return nil, err
	}

	manifest, err := manifestXML(files)
	if err != nil {
		return nil, err
	}
	entries := []File{{Name: "META-INF/manifest.xml", Content: manifest}}
	for i, data := range signatureFiles {
		entries = append(entries, File{Name: fmt.Sprintf("META-INF/signatures%d.xml", i), Content: data})
	}
	entries = append(entries, files...)

	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.Content); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func manifestXML(files []File) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("manifest:manifest")
	root.CreateAttr("xmlns:manifest", manifestNamespace)
	root.CreateAttr("manifest:version", "1.2")
	entry := func(path, mediaType string) {
		el := root.CreateElement("manifest:file-entry")
		el.CreateAttr("manifest:full-path", path)
		el.CreateAttr("manifest:media-type", mediaType)
	}
	entry("/", asicMimeType)
	for _, f := range files {
		entry(f.Name, f.MimeType)
	}
	doc.Indent(2)
	return doc.WriteToBytes()
}

// DDOC returns a signed DigiDoc XML document. Signatures use OCSP time-marks
// instead of timestamps.
func (p *PKI) DDOC(opts Options) ([]byte, error) {
	opts.defaults()
	if opts.Profile == ProfileLT {
		opts.Profile = ProfileLTTM
	}
	style := xadesStyle{
		declareDS:    true,
		declareXAdES: engine.NamespaceXAdES,
		c14n:         dsig.CanonicalXML10RecAlgorithmId,
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("SignedDoc")
	root.CreateAttr("xmlns", ddocNamespace)
	root.CreateAttr("format", "DIGIDOC-XML")
	root.CreateAttr("version", opts.Version)

	c, err := engine.Canonicalizer(string(dsig.CanonicalXML10RecAlgorithmId), "")
	if err != nil {
		return nil, err
	}
	var dataFiles []*etree.Element
	var refs []reference
	for i, f := range opts.Files {
		id := fmt.Sprintf("D%d", i)
		df := root.CreateElement("DataFile")
		df.CreateAttr("ContentType", "EMBEDDED_BASE64")
		df.CreateAttr("Filename", f.Name)
		df.CreateAttr("Id", id)
		df.CreateAttr("MimeType", f.MimeType)
		df.CreateAttr("Size", strconv.Itoa(len(f.Content)))
		df.SetText(base64.StdEncoding.EncodeToString(f.Content))
		canonical, err := engine.Canonicalize(df, c)
		if err != nil {
			return nil, err
		}
		dataFiles = append(dataFiles, df)
		refs = append(refs, reference{uri: "#" + id, content: canonical})
	}

	for i := 0; i < opts.Signatures; i++ {
		if err := p.sign(root, fmt.Sprintf("S%d", i), style, refs, opts); err != nil {
			return nil, err
		}
	}

	if opts.TamperData {
		content := append(append([]byte(nil), opts.Files[0].Content...), tampered...)
		dataFiles[0].SetText(base64.StdEncoding.EncodeToString(content))
	}
	return doc.WriteToBytes()
}
