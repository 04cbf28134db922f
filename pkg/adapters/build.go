package adapters

import (
	"fmt"
	"log/slog"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

// Build constructs one adapter per catalog entry and returns the registry.
// Models with Tools set get a ToolAdapter over reg. Every model's provider
// must be present in backends.
func Build(catalog models.Catalog, backends map[string]Backend, reg *tools.Registry, logger *slog.Logger) (*chat.Registry, error) {
	adapters := make([]chat.Adapter, 0, len(catalog))
	for _, info := range catalog {
		backend, ok := backends[info.Provider]
		if !ok || backend.Provider == nil {
			return nil, fmt.Errorf("adapters: model %q: provider %q is not configured", info.ID, info.Provider)
		}
		if info.Tools {
			adapters = append(adapters, NewToolAdapter(info, backend, reg, logger))
			continue
		}
		adapters = append(adapters, NewVendorAdapter(info, backend, logger))
	}
	return chat.NewRegistry(adapters...)
}
