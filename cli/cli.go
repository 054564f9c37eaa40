// Package cli provides the command-line interface of the validation service.
package cli

import (
	"fmt"
	"os"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	command := args[1]

	switch command {
	case "validate":
		ValidateCommand(args)
	case "remote":
		RemoteCommand(args)
	case "serve":
		ServeCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(2)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Printf("siva - signature validation service\n\n")
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  validate  Validate a BDOC or DDOC container locally")
	fmt.Println("  remote    Validate a container through a running service")
	fmt.Println("  serve     Run the validation web service")
	fmt.Println("  version   Show version information")
	fmt.Println("  help      Show this help message")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Printf("  %s validate -trust-anchor ca.pem contract.bdoc\n", os.Args[0])
	fmt.Printf("  %s remote -url http://localhost:8080/validate contract.asice\n", os.Args[0])
	fmt.Printf("  %s serve -config siva.yaml\n", os.Args[0])
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Printf("siva version %s\n", Version)
	fmt.Printf("Build time: %s\n", BuildTime)
}
