// Command siva validates signed BDOC and DDOC containers, either locally or
// as a web service.
//
// Usage:
//
//	siva <command> [options] <args>
//
// Commands:
//
//	validate  Validate a container locally
//	remote    Validate a container through a running service
//	serve     Run the validation web service
//	version   Show version information
//	help      Show help message
//
// Examples:
//
//	# Validate a container against a CA certificate
//	siva validate -trust-anchor ca.pem contract.bdoc
//
//	# Run the service
//	siva serve -config siva.yaml
package main

import (
	"os"

	"github.com/huyen-pk/SiVa/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/siva
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
