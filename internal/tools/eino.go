package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Compile-time checks that the adapters implement tool.InvokableTool.
var (
	_ tool.InvokableTool = (*readEmailsTool)(nil)
	_ tool.InvokableTool = (*readCalendarTool)(nil)
	_ tool.InvokableTool = (*recallContextTool)(nil)
)

// AgentTools returns the tool set exposed to the chat model.
func (t *Tools) AgentTools() []tool.InvokableTool {
	return []tool.InvokableTool{
		&readEmailsTool{svc: t},
		&readCalendarTool{svc: t},
		&recallContextTool{svc: t},
	}
}

type readEmailsTool struct {
	svc *Tools
}

func (rt *readEmailsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "read_emails",
		Desc: "Fetch and read the user's actual emails from their inbox. " +
			"Must be called whenever the user asks about their emails; never invent email content.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"count": {
				Type: schema.Integer,
				Desc: "Number of emails to retrieve (1-20)",
			},
			"filter": {
				Type: schema.String,
				Desc: "Filter type: unread, all, or important",
			},
		}),
	}, nil
}

func (rt *readEmailsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Count  int    `json:"count"`
		Filter string `json:"filter"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("read_emails: parse args: %w", err)
	}
	return rt.svc.ReadEmails(ctx, args.Count, args.Filter)
}

type readCalendarTool struct {
	svc *Tools
}

func (rt *readCalendarTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "read_calendar",
		Desc: "Fetch the user's upcoming calendar events. " +
			"Must be called whenever the user asks about their schedule; never invent events.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"days": {
				Type: schema.Integer,
				Desc: "Number of days ahead to check for events (1-30, default 7)",
			},
		}),
	}, nil
}

func (rt *readCalendarTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Days int `json:"days"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("read_calendar: parse args: %w", err)
	}
	return rt.svc.ReadCalendar(ctx, args.Days)
}

type recallContextTool struct {
	svc *Tools
}

func (rt *recallContextTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "recall_context",
		Desc: "Retrieve previously fetched data from memory to answer follow-up questions. " +
			"Also re-displays the data in the artifact panel.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"context_type": {
				Type:     schema.String,
				Desc:     "Type of data to recall: emails, calendar, ...",
				Required: true,
			},
		}),
	}, nil
}

func (rt *recallContextTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		ContextType string `json:"context_type"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("recall_context: parse args: %w", err)
	}
	if args.ContextType == "" {
		return "", fmt.Errorf("recall_context: context_type is required")
	}
	return rt.svc.RecallContext(ctx, args.ContextType)
}
