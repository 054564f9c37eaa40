package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/huyen-pk/SiVa/client"
	"github.com/huyen-pk/SiVa/document"
	"golang.org/x/text/unicode/norm"
)

// ValidateOptions contains options for the validate command.
type ValidateOptions struct {
	ConfigFile      string
	TrustAnchors    stringList
	TrustAnchorDirs stringList
	DocumentType    string
	ReportType      string
}

// ValidateCommand implements the 'validate' command.
func ValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)

	var opts ValidateOptions

	validateFlags.StringVar(&opts.ConfigFile, "config", "", "Configuration file (YAML)")
	validateFlags.Var(&opts.TrustAnchors, "trust-anchor", "Trusted CA certificate file, PEM or DER (repeatable)")
	validateFlags.Var(&opts.TrustAnchorDirs, "trust-anchor-dir", "Directory of trusted CA certificates (repeatable)")
	validateFlags.StringVar(&opts.DocumentType, "type", "", "Document type (BDOC, DDOC, PDF); derived from the file extension by default")
	validateFlags.StringVar(&opts.ReportType, "report", "JSON", "Report format (JSON, XML)")

	validateFlags.Usage = func() {
		fmt.Printf("Usage: %s validate [options] <container>\n\n", os.Args[0])
		fmt.Println("Validate the signatures of a container and print the report.")
		fmt.Println("")
		fmt.Println("Options:")
		validateFlags.PrintDefaults()
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Printf("  %s validate -trust-anchor ca.pem contract.bdoc\n", os.Args[0])
		fmt.Printf("  %s validate -config siva.yaml -report xml old.ddoc\n", os.Args[0])
	}

	if err := validateFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	if len(validateFlags.Args()) < 1 {
		validateFlags.Usage()
		osExit(1)
	}

	if err := runValidate(validateFlags.Arg(0), &opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func runValidate(path string, opts *ValidateOptions, out io.Writer) error {
	conf, err := loadConfig(opts.ConfigFile, opts.TrustAnchors, opts.TrustAnchorDirs)
	if err != nil {
		return err
	}
	logFile, err := conf.Logging.Apply()
	if err != nil {
		return err
	}
	defer logFile.Close()

	protocol, err := document.ParseRequestProtocol(opts.ReportType)
	if err != nil {
		return err
	}
	var docType document.DocumentType
	if opts.DocumentType != "" {
		docType, err = document.ParseDocumentType(opts.DocumentType)
	} else {
		docType, err = client.DocumentTypeFor(path)
	}
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	validator, _, err := newValidationProxy(conf)
	if err != nil {
		return err
	}
	result, err := validator.Validate(&document.ProxyDocument{
		Name:            norm.NFC.String(filepath.Base(path)),
		Bytes:           content,
		DocumentType:    docType,
		RequestProtocol: protocol,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, result)
	return err
}
