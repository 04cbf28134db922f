package builtin

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

const (
	defaultTranscriptURL = "https://www.youtube.com/api/timedtext"
	transcriptMaxOutput  = 32 * 1024
)

type transcriptTool struct {
	opts Options
}

// NewTranscriptTool returns the video_transcript tool.
func NewTranscriptTool(opts Options) tools.Tool {
	if opts.TranscriptURL == "" {
		opts.TranscriptURL = defaultTranscriptURL
	}
	return &transcriptTool{opts: opts}
}

func (t *transcriptTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        NameTranscript,
		Description: "Fetch the English transcript of a YouTube video.",
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"url":      {Type: "string", Description: "YouTube video URL or 11 character video ID"},
				"language": {Type: "string", Description: "Caption language code, default en"},
			},
			Required: []string{"url"},
		}),
	}
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

func (t *transcriptTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	id, err := VideoID(tools.String(params, "url"))
	if err != nil {
		return tools.Result{}, err
	}
	lang := tools.String(params, "language")
	if lang == "" {
		lang = "en"
	}

	q := url.Values{"v": {id}, "lang": {lang}}
	body, err := get(ctx, t.opts.client(), t.opts.userAgent(), t.opts.TranscriptURL+"?"+q.Encode(), 4<<20)
	if err != nil {
		return tools.Result{}, fmt.Errorf("transcript %s: %w", id, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return tools.Result{}, fmt.Errorf("video %s has no %s captions", id, lang)
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return tools.Result{}, fmt.Errorf("decode transcript: %w", err)
	}
	parts := make([]string, 0, len(tt.Texts))
	for _, line := range tt.Texts {
		// Caption text is HTML-escaped inside the XML escaping.
		s := strings.Join(strings.Fields(html.UnescapeString(line.Text)), " ")
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return tools.Result{}, fmt.Errorf("video %s has no %s captions", id, lang)
	}
	return tools.OK(truncateWithNote(strings.Join(parts, " "), transcriptMaxOutput)), nil
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the video ID from a YouTube URL or returns a bare ID.
// Supported forms: watch?v=, youtu.be/, /shorts/, /embed/, /live/ and /v/.
func VideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}
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
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = firstSegment(u.Path)
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segs) >= 2 {
			switch segs[0] {
			case "shorts", "embed", "live", "v":
				id = segs[1]
			}
		}
	default:
		return "", fmt.Errorf("not a YouTube url: %s", raw)
	}
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id in %s", raw)
	}
	return id, nil
}

func firstSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
