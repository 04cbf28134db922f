package main

import (
	"fmt"
	"sort"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/adapters"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/anthropic"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/azure"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/bedrock"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/google"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/openai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/relay"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/config"
)

// compatibleURLs are OpenAI chat-completions endpoints selectable by type.
var compatibleURLs = map[string]string{
	"groq":        "https://api.groq.com/openai/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"together":    "https://api.together.xyz/v1",
	"mistral":     "https://api.mistral.ai/v1",
	"cerebras":    "https://api.cerebras.ai/v1",
	"deepseek":    "https://api.deepseek.com/v1",
	"xai":         "https://api.x.ai/v1",
	"huggingface": "https://router.huggingface.co/v1",
	"ollama":      "http://localhost:11434/v1",
}

func buildProvider(name string, pc config.ProviderConfig) (ai.Provider, error) {
	switch pc.Type {
	case "anthropic":
		return anthropic.New(pc.BaseURL), nil

	case "google", "gemini":
		return google.New(pc.BaseURL), nil

	case "openai", "openai-compatible":
		p := openai.New(pc.BaseURL)
		p.Label = name
		return p, nil

	case "azure", "azure-openai":
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires base_url (deployment endpoint)", name)
		}
		return azure.New(pc.BaseURL, pc.APIVersion), nil

	case "bedrock", "amazon-bedrock":
		return bedrock.New(pc.Region, pc.Profile), nil

	case "relay":
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires base_url", name)
		}
		return relay.New(pc.BaseURL), nil
	}

	if url, ok := compatibleURLs[pc.Type]; ok {
		if pc.BaseURL != "" {
			url = pc.BaseURL
		}
		p := openai.New(url)
		p.Label = name
		return p, nil
	}
	return nil, fmt.Errorf("provider %q: unknown type %q", name, pc.Type)
}

// buildBackends constructs every configured provider, in name order so
// errors are deterministic.
func buildBackends(cfg *config.Config) (map[string]adapters.Backend, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]adapters.Backend, len(names))
	for _, name := range names {
		pc := cfg.Providers[name]
		p, err := buildProvider(name, pc)
		if err != nil {
			return nil, err
		}
		out[name] = adapters.Backend{Provider: p, APIKey: pc.APIKey}
	}
	return out, nil
}
