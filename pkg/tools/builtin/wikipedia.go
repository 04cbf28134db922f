package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

const defaultWikipediaURL = "https://en.wikipedia.org/api/rest_v1"

type wikipediaTool struct {
	opts Options
}

// NewWikipediaTool returns the wikipedia summary tool.
func NewWikipediaTool(opts Options) tools.Tool {
	if opts.WikipediaURL == "" {
		opts.WikipediaURL = defaultWikipediaURL
	}
	opts.WikipediaURL = strings.TrimRight(opts.WikipediaURL, "/")
	return &wikipediaTool{opts: opts}
}

func (t *wikipediaTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        NameWikipedia,
		Description: "Look up the summary of a Wikipedia article by title.",
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"title": {Type: "string", Description: "Article title, e.g. \"Alan Turing\""},
			},
			Required: []string{"title"},
		}),
	}
}

type wikiSummary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (t *wikipediaTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	title := strings.TrimSpace(tools.String(params, "title"))
	if title == "" {
		return tools.Result{}, errors.New("title is required")
	}
	endpoint := t.opts.WikipediaURL + "/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))

	var s wikiSummary
	if err := getJSON(ctx, t.opts.client(), t.opts.userAgent(), endpoint, &s); err != nil {
		if isNotFound(err) {
			return tools.Result{}, fmt.Errorf("no Wikipedia article titled %q", title)
		}
		return tools.Result{}, fmt.Errorf("wikipedia: %w", err)
	}
	if s.Extract == "" {
		return tools.Result{}, fmt.Errorf("article %q has no summary", title)
	}

	var b strings.Builder
	b.WriteString(s.Title)
	if s.Description != "" {
		b.WriteString(" (" + s.Description + ")")
	}
	if s.Type == "disambiguation" {
		b.WriteString(" [disambiguation page]")
	}
	b.WriteString("\n\n" + s.Extract)
	if s.ContentURLs.Desktop.Page != "" {
		b.WriteString("\n\nSource: " + s.ContentURLs.Desktop.Page)
	}
	return tools.OK(b.String()), nil
}
