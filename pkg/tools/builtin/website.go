package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

const (
	websiteMaxBody   = 2 << 20
	websiteMaxOutput = 24 * 1024
)

type websiteTool struct {
	opts Options
}

// NewWebsiteTool returns the read_website tool.
func NewWebsiteTool(opts Options) tools.Tool {
	return &websiteTool{opts: opts}
}

func (t *websiteTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name: NameWebsite,
		Description: "Fetch a web page and return its title and content as Markdown. " +
			"Output is truncated to " + FormatSize(websiteMaxOutput) + ".",
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"url": {Type: "string", Description: "Page URL. A missing scheme defaults to https."},
			},
			Required: []string{"url"},
		}),
	}
}

func (t *websiteTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	target, err := normalizeURL(tools.String(params, "url"))
	if err != nil {
		return tools.Result{}, err
	}
	page, err := t.fetch(ctx, target)
	if err != nil {
		return tools.Result{}, fmt.Errorf("fetch %s: %w", target, err)
	}

	var b strings.Builder
	if page.title != "" {
		fmt.Fprintf(&b, "# %s\n\n", page.title)
	}
	if page.finalURL != target {
		fmt.Fprintf(&b, "[Redirected to: %s]\n\n", page.finalURL)
	}
	b.WriteString(page.content)
	return tools.OK(truncateWithNote(b.String(), websiteMaxOutput)), nil
}

type fetchedPage struct {
	finalURL string
	title    string
	content  string
}

func (t *websiteTool) fetch(ctx context.Context, target string) (*fetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.opts.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	client := *t.opts.client()
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("too many redirects")
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, websiteMaxBody))
	if err != nil {
		return nil, err
	}

	page := &fetchedPage{finalURL: resp.Request.URL.String()}
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "html") {
		page.content = cleanWhitespace(string(body))
		return page, nil
	}

	page.title = pageTitle(body)
	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil || strings.TrimSpace(md) == "" {
		page.content = cleanWhitespace(stripTags(string(body)))
		return page, nil
	}
	page.content = cleanWhitespace(md)
	return page, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("url has no host")
	}
	return u.String(), nil
}

// pageTitle returns the text of the first <title> element.
func pageTitle(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) != "title" {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.Join(strings.Fields(html.UnescapeString(string(z.Text()))), " ")
			}
			return ""
		}
	}
}

// cleanWhitespace trims each line and collapses runs of blank lines.
func cleanWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			line = ""
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags removes anything between < and >.
func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}
