// Package config loads the service configuration from YAML and the
// environment and builds the trust source and engine options from it.
package config

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/huyen-pk/SiVa/engine"
	"github.com/huyen-pk/SiVa/keys"
	"github.com/huyen-pk/SiVa/tsl"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file configuration.
const (
	LISTEN_ADDRESS = "LISTEN_ADDRESS"
	ORIGIN_ALLOWED = "ORIGIN_ALLOWED"
	LOG_LEVEL      = "LOG_LEVEL"
)

// Revocation modes.
const (
	RevocationRequire  = "require"
	RevocationSoftFail = "soft-fail"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigurationError
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func missingField(field string) *ConfigError {
	return &ConfigError{Field: field, Message: "required field is missing", Err: ErrMissingRequiredField}
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the server binds to.
	ListenAddress string `yaml:"listen-address" json:"listen_address,omitempty"`

	// OriginAllowed is the single CORS origin allowed. Empty allows any.
	OriginAllowed string `yaml:"origin-allowed" json:"origin_allowed,omitempty"`

	// ReadTimeout is the request read timeout in seconds.
	ReadTimeout int `yaml:"read-timeout" json:"read_timeout,omitempty"`

	// WriteTimeout is the response write timeout in seconds.
	WriteTimeout int `yaml:"write-timeout" json:"write_timeout,omitempty"`

	// MaxRequestBytes limits the size of a validation request body.
	MaxRequestBytes int64 `yaml:"max-request-bytes" json:"max_request_bytes,omitempty"`
}

// SetDefaults sets default values for the server configuration.
func (c *ServerConfig) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 600
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = 30 << 20
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.ListenAddress == "" {
		return missingField("server.listen-address")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return NewConfigError("server", "timeouts must not be negative")
	}
	if c.MaxRequestBytes < 0 {
		return NewConfigError("server.max-request-bytes", "must not be negative")
	}
	return nil
}

// TrustStoreConfig is a PKCS#12 trust store.
type TrustStoreConfig struct {
	Path     string `yaml:"path" json:"path"`
	Password string `yaml:"password" json:"password,omitempty"`
}

// TSLConfig contains trusted list settings.
type TSLConfig struct {
	// URL is the trusted list or list of the lists location. A file path is
	// also accepted.
	URL string `yaml:"url" json:"url"`

	// SignerCerts are certificate files that verify the list at URL.
	SignerCerts []string `yaml:"signer-certs" json:"signer_certs,omitempty"`

	// Territories restricts the national lists followed from a list of the
	// lists.
	Territories []string `yaml:"territories" json:"territories,omitempty"`

	// ServiceTypes overrides the service types accepted as trust anchors.
	ServiceTypes []string `yaml:"service-types" json:"service_types,omitempty"`

	// CacheDir enables the file system cache of downloaded lists.
	CacheDir string `yaml:"cache-dir" json:"cache_dir,omitempty"`

	// CacheExpiry is the cache entry lifetime in hours.
	CacheExpiry int `yaml:"cache-expiry" json:"cache_expiry,omitempty"`

	// Timeout is the request timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout,omitempty"`

	// Retries is the number of download attempts per list.
	Retries int `yaml:"retries" json:"retries,omitempty"`
}

// SetDefaults sets default values for the trusted list configuration.
func (c *TSLConfig) SetDefaults() {
	if c.CacheExpiry == 0 {
		c.CacheExpiry = 24
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.Retries == 0 {
		c.Retries = 3
	}
}

// Validate validates the trusted list configuration.
func (c *TSLConfig) Validate() error {
	if c.URL == "" {
		return missingField("trust.tsl.url")
	}
	if c.CacheExpiry < 0 || c.Timeout < 0 || c.Retries < 0 {
		return NewConfigError("trust.tsl", "numeric settings must not be negative")
	}
	return nil
}

// TrustConfig lists the sources of trust anchors. All configured sources are
// combined.
type TrustConfig struct {
	// TrustAnchors are PEM or DER certificate files.
	TrustAnchors []string `yaml:"trust-anchors" json:"trust_anchors,omitempty"`

	// TrustAnchorDirs are directories of certificate files.
	TrustAnchorDirs []string `yaml:"trust-anchor-dirs" json:"trust_anchor_dirs,omitempty"`

	// TrustStores are PKCS#12 trust stores.
	TrustStores []TrustStoreConfig `yaml:"trust-stores" json:"trust_stores,omitempty"`

	// TSL is the trusted list source.
	TSL *TSLConfig `yaml:"tsl" json:"tsl,omitempty"`
}

func (c *TrustConfig) hasFiles() bool {
	return len(c.TrustAnchors) > 0 || len(c.TrustAnchorDirs) > 0 || len(c.TrustStores) > 0
}

// Validate validates the trust configuration.
func (c *TrustConfig) Validate() error {
	if !c.hasFiles() && c.TSL == nil {
		return NewConfigError("trust", "at least one trust anchor source must be configured")
	}
	for i, ts := range c.TrustStores {
		if ts.Path == "" {
			return missingField(fmt.Sprintf("trust.trust-stores[%d].path", i))
		}
	}
	if c.TSL != nil {
		return c.TSL.Validate()
	}
	return nil
}

// Source builds the trust source described by the configuration.
func (c *TrustConfig) Source() (engine.TrustedListsCertificateSource, error) {
	var sources tsl.MultiSource
	if c.hasFiles() {
		fs := &keys.FileSource{
			Files: c.TrustAnchors,
			Dirs:  c.TrustAnchorDirs,
		}
		for _, ts := range c.TrustStores {
			fs.TrustStores = append(fs.TrustStores, keys.TrustStore{Path: ts.Path, Password: ts.Password})
		}
		sources = append(sources, fs)
	}
	if c.TSL != nil {
		src, err := c.TSL.source()
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return sources, nil
}

func (c *TSLConfig) source() (*tsl.Source, error) {
	var signers []*x509.Certificate
	if len(c.SignerCerts) > 0 {
		certs, err := keys.LoadCertsFromPemDerFiles(c.SignerCerts)
		if err != nil {
			return nil, &ConfigError{Field: "trust.tsl.signer-certs", Message: err.Error(), Err: err}
		}
		signers = certs
	}

	opts := []tsl.FetcherOption{
		tsl.WithTimeout(time.Duration(c.Timeout) * time.Second),
		tsl.WithMaxRetries(c.Retries),
	}
	if c.CacheDir != "" {
		cache, err := tsl.NewFileSystemCache(c.CacheDir, time.Duration(c.CacheExpiry)*time.Hour, nil)
		if err != nil {
			return nil, &ConfigError{Field: "trust.tsl.cache-dir", Message: err.Error(), Err: err}
		}
		opts = append(opts, tsl.WithCache(cache))
	}

	return &tsl.Source{
		Location:           c.URL,
		SignerCertificates: signers,
		Territories:        c.Territories,
		ServiceTypes:       c.ServiceTypes,
		Fetcher:            tsl.NewFetcher(opts...),
	}, nil
}

// ValidationConfig contains engine settings.
type ValidationConfig struct {
	// RevocationMode is "require" (missing OCSP data is INDETERMINATE) or
	// "soft-fail".
	RevocationMode string `yaml:"revocation-mode" json:"revocation_mode,omitempty"`

	// RequireQualified warns about signer certificates without a QC
	// compliance statement.
	RequireQualified bool `yaml:"require-qualified" json:"require_qualified"`
}

// SetDefaults sets default values for the validation configuration.
func (c *ValidationConfig) SetDefaults() {
	if c.RevocationMode == "" {
		c.RevocationMode = RevocationRequire
	}
}

// Validate validates the validation configuration.
func (c *ValidationConfig) Validate() error {
	switch c.RevocationMode {
	case RevocationRequire, RevocationSoftFail:
		return nil
	default:
		return NewConfigError("validation.revocation-mode",
			fmt.Sprintf("'%s' is not one of %s, %s", c.RevocationMode, RevocationRequire, RevocationSoftFail))
	}
}

// EngineOptions converts the configuration into engine options.
func (c *ValidationConfig) EngineOptions() engine.Options {
	return engine.Options{
		RequireRevocation: c.RevocationMode != RevocationSoftFail,
		RequireQualified:  c.RequireQualified,
	}
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return &ConfigError{Field: "logging.level", Message: err.Error(), Err: err}
	}
	if c.Format != "text" && c.Format != "json" {
		return NewConfigError("logging.format", fmt.Sprintf("'%s' is not one of text, json", c.Format))
	}
	return nil
}

// Apply configures the standard logger. The returned closer releases the
// log file, if any.
func (c *LoggingConfig) Apply() (io.Closer, error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, &ConfigError{Field: "logging.level", Message: err.Error(), Err: err}
	}
	log.SetLevel(level)

	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	switch c.Output {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.SetOutput(f)
		return f, nil
	}
	return io.NopCloser(nil), nil
}

// Config contains the complete service configuration.
type Config struct {
	Server     *ServerConfig     `yaml:"server" json:"server,omitempty"`
	Trust      *TrustConfig      `yaml:"trust" json:"trust,omitempty"`
	Validation *ValidationConfig `yaml:"validation" json:"validation,omitempty"`
	Logging    *LoggingConfig    `yaml:"logging" json:"logging,omitempty"`
}

// SetDefaults fills missing sections and values.
func (c *Config) SetDefaults() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	c.Server.SetDefaults()
	if c.Trust == nil {
		c.Trust = &TrustConfig{}
	}
	if c.Trust.TSL != nil {
		c.Trust.TSL.SetDefaults()
	}
	if c.Validation == nil {
		c.Validation = &ValidationConfig{}
	}
	c.Validation.SetDefaults()
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.SetDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Trust.Validate(); err != nil {
		return err
	}
	if err := c.Validation.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// ApplyEnv overrides settings from the environment as read by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(LISTEN_ADDRESS); v != "" {
		c.Server.ListenAddress = v
	}
	if v := getenv(ORIGIN_ALLOWED); v != "" {
		c.Server.OriginAllowed = v
	}
	if v := getenv(LOG_LEVEL); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// LoadConfig loads a configuration file, applies the environment and
// validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(os.Getenv)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseConfig parses configuration from YAML data and sets defaults.
// Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.SetDefaults()
	return &config, nil
}
