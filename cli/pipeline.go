package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/huyen-pk/SiVa/config"
	"github.com/huyen-pk/SiVa/container/builder"
	"github.com/huyen-pk/SiVa/document"
	"github.com/huyen-pk/SiVa/engine"
	"github.com/huyen-pk/SiVa/proxy"
	"github.com/huyen-pk/SiVa/validation"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// loadConfig reads the configuration file at path, or starts from the
// defaults when path is empty. Trust anchor files given on the command line
// are added to the configured ones.
func loadConfig(path string, anchors []string, anchorDirs []string) (*config.Config, error) {
	var conf *config.Config
	var err error
	if path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
		conf, err = config.ParseConfig(data)
	} else {
		conf, err = config.ParseConfig(nil)
	}
	if err != nil {
		return nil, err
	}
	conf.Trust.TrustAnchors = append(conf.Trust.TrustAnchors, anchors...)
	conf.Trust.TrustAnchorDirs = append(conf.Trust.TrustAnchorDirs, anchorDirs...)
	conf.ApplyEnv(os.Getenv)
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// newValidationProxy wires the trust source, the shared engine configuration
// and the BDOC and DDOC services behind a proxy. PDF has no service.
func newValidationProxy(conf *config.Config) (*proxy.ValidationProxy, *engine.ConfigurationProvider, error) {
	source, err := conf.Trust.Source()
	if err != nil {
		return nil, nil, err
	}
	provider := engine.NewConfigurationProvider(source, conf.Validation.EngineOptions())
	registry := proxy.Registry{
		document.BDOC: validation.NewBDOCService(provider, builder.Default, nil),
		document.DDOC: validation.NewDDOCService(provider, builder.Default, nil),
	}
	return proxy.NewValidationProxy(registry), provider, nil
}
