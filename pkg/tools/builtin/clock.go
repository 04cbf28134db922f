package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

type clockTool struct {
	now func() time.Time
}

// NewClockTool returns the clock tool. now defaults to time.Now.
func NewClockTool(now func() time.Time) tools.Tool {
	if now == nil {
		now = time.Now
	}
	return &clockTool{now: now}
}

func (t *clockTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        NameClock,
		Description: "Get the current date and time in an IANA time zone such as Europe/Berlin. Defaults to UTC.",
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"timezone": {Type: "string", Description: "IANA time zone name"},
			},
		}),
	}
}

func (t *clockTool) Execute(_ context.Context, params map[string]any) (tools.Result, error) {
	zone := strings.TrimSpace(tools.String(params, "timezone"))
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return tools.Result{}, fmt.Errorf("unknown time zone %q", zone)
	}
	now := t.now().In(loc)
	return tools.OK(fmt.Sprintf("%s, %s (%s, UTC%s)",
		now.Weekday(), now.Format("2006-01-02 15:04:05"), zone, now.Format("-07:00"))), nil
}
