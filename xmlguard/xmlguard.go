// Package xmlguard rejects XML documents that declare a DTD or entities
// before they reach a parser that would act on them.
package xmlguard

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Guard failures.
var (
	ErrDoctype = errors.New("DOCTYPE declaration is not allowed")
	ErrEntity  = errors.New("ENTITY declaration is not allowed")
)

// Error is returned for documents that fail the guard. Err is ErrDoctype,
// ErrEntity or the tokenizer error.
type Error struct {
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("xml guard: offset %d: %v", e.Offset, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validate tokenizes the whole document and fails on the first DOCTYPE or
// ENTITY directive or on malformed XML.
func Validate(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = true
	d.CharsetReader = charset.NewReaderLabel

	for {
		offset := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &Error{Offset: offset, Err: err}
		}
		dir, ok := tok.(xml.Directive)
		if !ok {
			continue
		}
		s := strings.ToUpper(strings.TrimSpace(string(dir)))
		switch {
		case strings.HasPrefix(s, "DOCTYPE"):
			return &Error{Offset: offset, Err: ErrDoctype}
		case strings.HasPrefix(s, "ENTITY"):
			return &Error{Offset: offset, Err: ErrEntity}
		}
	}
}
