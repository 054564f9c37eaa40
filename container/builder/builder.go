// Package builder opens a signature container of any supported format by
// looking at its leading bytes.
package builder

import (
	"bytes"
	"errors"

	"github.com/huyen-pk/SiVa/container"
	"github.com/huyen-pk/SiVa/container/asic"
	"github.com/huyen-pk/SiVa/container/ddoc"
	"github.com/huyen-pk/SiVa/engine"
)

// ErrUnknownFormat is returned for data that is neither a ZIP nor an XML
// document.
var ErrUnknownFormat = errors.New("unknown container format")

var zipMagic = []byte("PK\x03\x04")

// Build parses data as a BDOC or DDOC container.
func Build(data []byte, conf *engine.Configuration) (container.Container, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return asic.Parse(data, conf)
	case isXML(data):
		return ddoc.Parse(data, conf)
	default:
		return nil, ErrUnknownFormat
	}
}

// Default builds containers of every supported format.
var Default container.Builder = container.BuilderFunc(Build)

func isXML(data []byte) bool {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.TrimLeft(data, " \t\r\n")
	return len(data) > 0 && data[0] == '<'
}
