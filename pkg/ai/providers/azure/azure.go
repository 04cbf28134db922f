// Package azure implements ai.Provider for Azure OpenAI deployments.
//
// Azure speaks the chat-completions wire format with two differences:
//   - URL:  {endpoint}/openai/deployments/{deployment}/chat/completions?api-version={v}
//   - Auth: "api-key: {key}" instead of "Authorization: Bearer {key}"
//
// The model argument of Stream is the deployment name.
package azure

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai/providers/openai"
)

const defaultAPIVersion = "2024-12-01-preview"

type Provider struct {
	// Endpoint is the resource root, e.g. https://myresource.openai.azure.com
	Endpoint   string
	APIVersion string
	HTTPClient *http.Client
}

// New creates an Azure provider. Pass "" for apiVersion to use the default.
func New(endpoint, apiVersion string) *Provider {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Provider{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		APIVersion: apiVersion,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string { return "azure" }

func (p *Provider) Stream(
	ctx context.Context,
	deployment string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
) (<-chan ai.StreamEvent, func() (*ai.AssistantMessage, error)) {
	return p.inner(deployment).Stream(ctx, deployment, llmCtx, opts)
}

func (p *Provider) inner(deployment string) *openai.Provider {
	o := openai.New(p.Endpoint + "/openai/deployments/" + url.PathEscape(deployment))
	o.HTTPClient = p.HTTPClient
	o.Label = "azure"
	o.Path = "/chat/completions?api-version=" + url.QueryEscape(p.APIVersion)
	o.Authorize = func(h http.Header, apiKey string) {
		if apiKey != "" {
			h.Set("api-key", apiKey)
		}
	}
	return o
}
