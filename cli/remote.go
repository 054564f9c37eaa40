package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/huyen-pk/SiVa/client"
	"github.com/huyen-pk/SiVa/document"
)

// RemoteOptions contains options for the remote command.
type RemoteOptions struct {
	URL        string
	ReportType string
	Timeout    time.Duration
}

// errValidationRejected is returned when the service answered with an error.
var errValidationRejected = errors.New("validation request was not successful")

// RemoteCommand implements the 'remote' command.
func RemoteCommand(args []string) {
	remoteFlags := flag.NewFlagSet("remote", flag.ExitOnError)

	var opts RemoteOptions

	remoteFlags.StringVar(&opts.URL, "url", "http://localhost:8080/validate", "Validation endpoint")
	remoteFlags.StringVar(&opts.ReportType, "report", "JSON", "Report format (JSON, XML)")
	remoteFlags.DurationVar(&opts.Timeout, "timeout", 60*time.Second, "HTTP timeout")

	remoteFlags.Usage = func() {
		fmt.Printf("Usage: %s remote [options] <container>\n\n", os.Args[0])
		fmt.Println("Upload a container to a running validation service and print the answer.")
		fmt.Println("The document type is derived from the file extension.")
		fmt.Println("")
		fmt.Println("Options:")
		remoteFlags.PrintDefaults()
	}

	if err := remoteFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	if len(remoteFlags.Args()) < 1 {
		remoteFlags.Usage()
		osExit(1)
	}

	if err := runRemote(context.Background(), remoteFlags.Arg(0), &opts, os.Stdout); err != nil {
		if !errors.Is(err, errValidationRejected) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		osExit(1)
	}
}

// runRemote prints the service answer to out, also when the service rejected
// the request.
func runRemote(ctx context.Context, path string, opts *RemoteOptions, out io.Writer) error {
	protocol, err := document.ParseRequestProtocol(opts.ReportType)
	if err != nil {
		return err
	}
	c := client.New(opts.URL, client.WithReportType(protocol), client.WithTimeout(opts.Timeout))
	resp, err := c.ValidateFile(ctx, path)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, resp.Body); err != nil {
		return err
	}
	if !resp.OK() {
		return errValidationRejected
	}
	return nil
}
