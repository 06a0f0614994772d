// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/providers/multiplex"
	"github.com/mwiater/docchat/internal/providers/ollama"
	"github.com/mwiater/docchat/internal/providers/openai"
)

// NewChatProvider selects and configures the chat provider for the configured hosts.
// Azure and OpenAI hosts share one go-openai backed provider; Ollama hosts use the
// native /api/chat provider. Mixed configurations are routed through a multiplexer.
func NewChatProvider(cfg *appconfig.Config) (providers.ChatProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	types, err := collectHostTypes(cfg)
	if err != nil {
		return nil, err
	}

	built := make(map[string]providers.ChatProvider, len(types))
	var oa *openai.Provider
	for hostType := range types {
		switch hostType {
		case "ollama":
			built[hostType] = ollama.New(cfg)
		case "azure", "openai":
			if oa == nil {
				oa = openai.New(cfg)
			}
			built[hostType] = oa
		}
	}

	if len(built) == 1 {
		for hostType, provider := range built {
			logging.LogEvent("chat provider ready: type=%s", hostType)
			return provider, nil
		}
	}
	logging.LogEvent("chat provider ready: multiplexing %d host types", len(built))
	return multiplex.New(built), nil
}

func collectHostTypes(cfg *appconfig.Config) (map[string]bool, error) {
	types := make(map[string]bool)
	for _, host := range cfg.Hosts {
		kind := host.Kind()
		switch kind {
		case "ollama", "azure", "openai":
			types[kind] = true
		default:
			return nil, fmt.Errorf("unsupported host type %q for host %q", host.Type, host.Name)
		}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no hosts configured")
	}
	return types, nil
}
