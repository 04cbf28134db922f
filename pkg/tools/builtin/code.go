package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

// SandboxOptions configures run_code.
type SandboxOptions struct {
	Executor  Executor
	Timeout   time.Duration // default 10s
	MaxOutput int           // bytes of output returned, default 16KB
	// Interpreters maps a language to the interpreter argv prefix. The
	// source file path is appended.
	Interpreters map[string][]string
}

var defaultInterpreters = map[string][]string{
	"python":     {"python3", "-I"},
	"javascript": {"node"},
	"bash":       {"bash", "--noprofile", "--norc"},
}

var sourceFiles = map[string]string{
	"python":     "main.py",
	"javascript": "main.js",
	"bash":       "main.sh",
}

type runCodeTool struct {
	opts SandboxOptions
}

// NewRunCodeTool returns the run_code tool.
func NewRunCodeTool(opts SandboxOptions) tools.Tool {
	if opts.Executor == nil {
		opts.Executor = &LocalExecutor{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = 16 * 1024
	}
	if opts.Interpreters == nil {
		opts.Interpreters = defaultInterpreters
	}
	return &runCodeTool{opts: opts}
}

func (t *runCodeTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name: NameRunCode,
		Description: fmt.Sprintf("Run a short python, javascript or bash program and return its output. "+
			"Execution is limited to %s and %s of output. There is no network or persistent storage.",
			t.opts.Timeout, FormatSize(t.opts.MaxOutput)),
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"language": {Type: "string", Description: "Program language", Enum: []any{"python", "javascript", "bash"}},
				"code":     {Type: "string", Description: "Complete program source. Print results to stdout."},
			},
			Required: []string{"language", "code"},
		}),
	}
}

func (t *runCodeTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	lang := tools.String(params, "language")
	code := tools.String(params, "code")
	if strings.TrimSpace(code) == "" {
		return tools.Result{}, errors.New("code is required")
	}
	interp, ok := t.opts.Interpreters[lang]
	if !ok {
		return tools.Result{}, fmt.Errorf("unsupported language %q", lang)
	}

	dir, err := os.MkdirTemp("", "rapidchat-run-")
	if err != nil {
		return tools.Result{}, fmt.Errorf("create sandbox: %w", err)
	}
	defer os.RemoveAll(dir)

	file := sourceFiles[lang]
	if file == "" {
		file = "main"
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(code), 0o600); err != nil {
		return tools.Result{}, fmt.Errorf("write source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	out := &boundedBuffer{max: t.opts.MaxOutput}
	argv := append(append([]string{}, interp...), file)
	start := time.Now()
	code0, err := t.opts.Executor.Exec(runCtx, argv, dir, out.write)
	elapsed := time.Since(start).Round(time.Millisecond)

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return tools.Result{}, fmt.Errorf("timed out after %s", t.opts.Timeout)
	}
	if err != nil {
		return tools.Result{}, fmt.Errorf("run %s: %w", lang, err)
	}

	var b strings.Builder
	text := strings.TrimRight(out.b.String(), "\n")
	if text == "" {
		text = "(no output)"
	}
	b.WriteString(text)
	if out.dropped > 0 {
		fmt.Fprintf(&b, "\n\n[output truncated, %s omitted]", FormatSize(out.dropped))
	}
	fmt.Fprintf(&b, "\n\nexit code: %d (%s)", code0, elapsed)
	if code0 != 0 {
		return tools.Result{Status: false, Content: b.String()}, nil
	}
	return tools.OK(b.String()), nil
}
