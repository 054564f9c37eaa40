// Package keys loads trust anchor certificates from PEM and DER files,
// certificate directories and PKCS#12 trust stores.
package keys

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"software.sslmate.com/src/go-pkcs12"
)

// Common errors
var (
	ErrNoCertFound       = errors.New("no certificate found in data")
	ErrMultipleCerts     = errors.New("expected exactly one certificate")
	ErrUnsupportedFormat = errors.New("unsupported trust store format")
)

// CertificateExtensions are the file extensions picked up by LoadCertsFromDir.
var CertificateExtensions = []string{".pem", ".crt", ".cer", ".der"}

// LoadCertFromPemDer loads a single certificate from a PEM or DER encoded file.
func LoadCertFromPemDer(filename string) (*x509.Certificate, error) {
	certs, err := LoadCertsFromPemDer(filename)
	if err != nil {
		return nil, err
	}
	if len(certs) != 1 {
		return nil, fmt.Errorf("%w: found %d certificates in %s", ErrMultipleCerts, len(certs), filename)
	}
	return certs[0], nil
}

// LoadCertsFromPemDer loads certificates from a PEM or DER encoded file.
func LoadCertsFromPemDer(filename string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return LoadCertsFromPemDerData(data)
}

// LoadCertsFromPemDerData loads certificates from PEM or DER encoded data.
// Non-certificate PEM blocks are skipped.
func LoadCertsFromPemDerData(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	if isPEM(data) {
		rest := data
		for len(rest) > 0 {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
	} else {
		// A single DER certificate or a concatenation of them.
		parsed, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DER certificate: %w", err)
		}
		certs = parsed
	}

	if len(certs) == 0 {
		return nil, ErrNoCertFound
	}
	return certs, nil
}

// LoadCertsFromPemDerFiles loads certificates from multiple files.
func LoadCertsFromPemDerFiles(filenames []string) ([]*x509.Certificate, error) {
	var allCerts []*x509.Certificate
	for _, filename := range filenames {
		certs, err := LoadCertsFromPemDer(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to load certs from %s: %w", filename, err)
		}
		allCerts = append(allCerts, certs...)
	}
	return allCerts, nil
}

// LoadCertsFromDir loads every certificate file of dir, in name order.
// Subdirectories are not searched.
func LoadCertsFromDir(dir string) ([]*x509.Certificate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !hasCertificateExtension(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return LoadCertsFromPemDerFiles(files)
}

func hasCertificateExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range CertificateExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadTrustStore loads the certificates of a PKCS#12 file. Both Java style
// trust stores and key stores holding a certificate chain are accepted.
func LoadTrustStore(filename, password string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return LoadTrustStoreData(data, password)
}

// LoadTrustStoreData loads the certificates of PKCS#12 data.
func LoadTrustStoreData(data []byte, password string) ([]*x509.Certificate, error) {
	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err == nil && len(certs) > 0 {
		return certs, nil
	}
	_, cert, caCerts, chainErr := pkcs12.DecodeChain(data, password)
	if chainErr != nil {
		if err == nil {
			err = chainErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return append([]*x509.Certificate{cert}, caCerts...), nil
}

// TrustStore is a PKCS#12 file with its password.
type TrustStore struct {
	Path     string
	Password string
}

// FileSource supplies trust anchors from local files. It satisfies
// engine.TrustedListsCertificateSource.
type FileSource struct {
	Files       []string
	Dirs        []string
	TrustStores []TrustStore
}

// Certificates loads all configured certificates. Duplicates are dropped.
func (s *FileSource) Certificates() ([]*x509.Certificate, error) {
	var all []*x509.Certificate
	certs, err := LoadCertsFromPemDerFiles(s.Files)
	if err != nil {
		return nil, err
	}
	all = append(all, certs...)

	for _, dir := range s.Dirs {
		certs, err := LoadCertsFromDir(dir)
		if err != nil {
			return nil, err
		}
		all = append(all, certs...)
	}

	for _, ts := range s.TrustStores {
		certs, err := LoadTrustStore(ts.Path, ts.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to load trust store %s: %w", ts.Path, err)
		}
		all = append(all, certs...)
	}

	all = Deduplicate(all)
	log.Debugf("Loaded %d trusted certificates from files", len(all))
	return all, nil
}

// Deduplicate removes repeated certificates, keeping the first occurrence.
func Deduplicate(certs []*x509.Certificate) []*x509.Certificate {
	seen := make(map[string]bool, len(certs))
	out := certs[:0:0]
	for _, c := range certs {
		if seen[string(c.Raw)] {
			continue
		}
		seen[string(c.Raw)] = true
		out = append(out, c)
	}
	return out
}

// isPEM checks if the data appears to be PEM encoded.
func isPEM(data []byte) bool {
	return len(data) > 10 && string(data[:5]) == "-----"
}
