// Package client is a small client for the validation service. It uploads
// files with the document type derived from their extension.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huyen-pk/SiVa/document"
	log "github.com/sirupsen/logrus"
	"gopkg.in/resty.v1"
)

// GenericErrorCode is reported when the service could not be reached.
const GenericErrorCode = 101

// ConnectionFailedMsg is the message of the GenericErrorCode payload.
const ConnectionFailedMsg = "Connection to web service failed. Make sure You have configured SiVa web service correctly"

// ErrUnknownDocumentType is returned for files whose extension does not name
// a document type.
var ErrUnknownDocumentType = errors.New("unknown document type")

// ServiceError is the payload returned in place of a report when the service
// is unreachable.
type ServiceError struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Response is the answer of the validation service.
type Response struct {
	StatusCode int
	// Body is the report, the service error payload, or the ServiceError
	// payload when the service was not reached.
	Body string
}

// OK reports whether the service returned a report.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

type validationRequest struct {
	Document     string `json:"document"`
	Filename     string `json:"filename"`
	DocumentType string `json:"documentType"`
	ReportType   string `json:"reportType,omitempty"`
}

var extensions = map[string]document.DocumentType{
	"pdf":   document.PDF,
	"bdoc":  document.BDOC,
	"asice": document.BDOC,
	"sce":   document.BDOC,
	"ddoc":  document.DDOC,
}

// DocumentTypeFor derives the document type from the extension of filename,
// ignoring case.
func DocumentTypeFor(filename string) (document.DocumentType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if t, ok := extensions[ext]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDocumentType, filename)
}

// Client posts documents to the /validate endpoint of a service.
type Client struct {
	serviceURL string
	reportType document.RequestProtocol
	client     *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithReportType selects the report format requested from the service.
func WithReportType(protocol document.RequestProtocol) Option {
	return func(c *Client) {
		c.reportType = protocol
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.SetTimeout(timeout)
	}
}

// New creates a client for the validation endpoint at serviceURL.
func New(serviceURL string, opts ...Option) *Client {
	c := &Client{
		serviceURL: serviceURL,
		reportType: document.JSON,
		client:     resty.NewWithClient(&http.Client{Timeout: 60 * time.Second}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateFile reads path and validates it.
func (c *Client) ValidateFile(ctx context.Context, path string) (*Response, error) {
	if path == "" {
		return nil, errors.New("invalid file given")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.Validate(ctx, filepath.Base(path), content)
}

// Validate uploads content under filename. A service that cannot be reached
// yields the GenericErrorCode payload rather than an error.
func (c *Client) Validate(ctx context.Context, filename string, content []byte) (*Response, error) {
	docType, err := DocumentTypeFor(filename)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(validationRequest{
		Document:     base64.StdEncoding.EncodeToString(content),
		Filename:     filename,
		DocumentType: docType.String(),
		ReportType:   string(c.reportType),
	})
	if err != nil {
		return nil, err
	}

	req := c.client.R()
	req.SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	req.SetBody(body)

	resp, err := req.Post(c.serviceURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warnf("Validation service %s unreachable: %v", c.serviceURL, err)
		payload, _ := json.Marshal(ServiceError{ErrorCode: GenericErrorCode, ErrorMessage: ConnectionFailedMsg})
		return &Response{Body: string(payload)}, nil
	}
	return &Response{StatusCode: resp.StatusCode(), Body: string(resp.Body())}, nil
}
