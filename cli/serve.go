package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huyen-pk/SiVa/config"
	"github.com/huyen-pk/SiVa/server"
	log "github.com/sirupsen/logrus"
)

// ServeOptions contains options for the serve command.
type ServeOptions struct {
	ConfigFile      string
	TrustAnchors    stringList
	TrustAnchorDirs stringList
	ShutdownTimeout time.Duration
}

// ServeCommand implements the 'serve' command.
func ServeCommand(args []string) {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)

	var opts ServeOptions

	serveFlags.StringVar(&opts.ConfigFile, "config", "", "Configuration file (YAML)")
	serveFlags.Var(&opts.TrustAnchors, "trust-anchor", "Trusted CA certificate file, PEM or DER (repeatable)")
	serveFlags.Var(&opts.TrustAnchorDirs, "trust-anchor-dir", "Directory of trusted CA certificates (repeatable)")
	serveFlags.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "Time allowed for in-flight requests on shutdown")

	serveFlags.Usage = func() {
		fmt.Printf("Usage: %s serve [options]\n\n", os.Args[0])
		fmt.Println("Run the validation web service.")
		fmt.Println("")
		fmt.Println("Environment:")
		fmt.Printf("  %-15s listen address, overrides server.listen-address\n", config.LISTEN_ADDRESS)
		fmt.Printf("  %-15s allowed CORS origin, overrides server.origin-allowed\n", config.ORIGIN_ALLOWED)
		fmt.Printf("  %-15s log level, overrides logging.level\n", config.LOG_LEVEL)
		fmt.Println("")
		fmt.Println("Options:")
		serveFlags.PrintDefaults()
	}

	if err := serveFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServe(ctx, &opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	conf, err := loadConfig(opts.ConfigFile, opts.TrustAnchors, opts.TrustAnchorDirs)
	if err != nil {
		return err
	}
	logFile, err := conf.Logging.Apply()
	if err != nil {
		return err
	}
	defer logFile.Close()

	validator, provider, err := newValidationProxy(conf)
	if err != nil {
		return err
	}

	srv := server.New(validator, server.Options{
		MaxRequestBytes: conf.Server.MaxRequestBytes,
		OriginAllowed:   conf.Server.OriginAllowed,
	})

	// Trusted lists may take a while to download; /ready reports DOWN until
	// the engine configuration is built.
	go func() {
		if _, err := provider.Configuration(); err != nil {
			log.Errorf("Service stays not ready: %v", err)
			return
		}
		srv.SetReady(true)
		log.Info("Service is ready")
	}()

	httpServer := server.NewHTTPServer(conf.Server, srv)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
