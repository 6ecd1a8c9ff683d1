// Package agent provides the Vesper agent bridge using Eino ADK.
package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/vesper-agent/vesper/internal/config"
)

// DefaultPersona is the Vesper personality. Overridable via SOUL.md in
// VESPER_PATH.
const DefaultPersona = `You are Vesper, a personal voice assistant.

You are helpful, conversational, and efficient. You speak naturally and concisely, as if you're having a real conversation with someone. Your responses are spoken aloud, so keep them short and skip anything that only works on a screen: no markdown, no bullet lists, no URLs read out character by character.`

// AgentInstructions are the functional operating instructions for the agent.
// They are always appended to the persona and are not overridable: they
// define how Vesper works, not who it is.
const AgentInstructions = `## Tool Usage

- When the user asks about their emails, you MUST call the read_emails tool.
- When the user asks about their schedule, calendar, or events, you MUST call the read_calendar tool.
- NEVER make up or hallucinate email or calendar content. Always fetch real data.

## Context Memory

- When you fetch data (emails, calendar), it is automatically saved to memory.
- For follow-up questions, call recall_context(context_type) to retrieve stored data instead of re-fetching.
- recall_context returns JSON with all the data; you can extract specific items and understand references like "the 3rd email" or "first meeting".
- Available context types: 'emails' (from read_emails), 'calendar' (from read_calendar).

## Refreshing Data

- If the user says "refresh", "update", "check for new", or "get fresh" data, call the original fetch tool again. The new data automatically replaces the cached copy.

## Responding

1. Acknowledge what you're doing (e.g. "Let me check your emails...").
2. Call the appropriate tool.
3. Summarize the results naturally.

The user sees visual details appear on their screen, so give them the highlights rather than reading every field.`

// GreetingInstruction is spoken once when a session starts.
const GreetingInstruction = `Greet the user warmly. Introduce yourself as Vesper, their personal voice assistant. Mention that you can help them check emails and their calendar. Ask how you can help them today. Keep it brief and friendly.`

// LoadPersona reads SOUL.md from VESPER_PATH if it exists, otherwise
// returns DefaultPersona.
func LoadPersona() string {
	path := filepath.Join(config.VesperPath(), "SOUL.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPersona
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return DefaultPersona
	}
	return content
}

// Instruction combines the persona with the operating instructions.
func Instruction(persona string) string {
	if persona == "" {
		persona = DefaultPersona
	}
	return persona + "\n\n" + AgentInstructions
}

// AgentOptions configures optional agent behavior.
type AgentOptions struct {
	Name          string // spoken name, default "vesper"
	MaxIterations int    // 0 = ADK default
}

// NewAgent creates a ChatModelAgent with the given tools and streaming
// enabled. The persona sets the base instruction; the operating
// instructions are always appended.
func NewAgent(ctx context.Context, chatModel model.ToolCallingChatModel, persona string, tools []tool.InvokableTool, opts ...AgentOptions) (*adk.Runner, error) {
	var opt AgentOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	name := opt.Name
	if name == "" {
		name = "vesper"
	}

	cfg := &adk.ChatModelAgentConfig{
		Name:          name,
		Description:   "Vesper, a personal voice assistant for email, calendar, and follow-up questions",
		Instruction:   Instruction(persona),
		Model:         chatModel,
		MaxIterations: opt.MaxIterations,
	}

	// Register tools with the agent (enables ReAct loop in ADK)
	if len(tools) > 0 {
		baseTools := make([]tool.BaseTool, len(tools))
		for i, t := range tools {
			baseTools[i] = t
		}
		cfg.ToolsConfig.Tools = baseTools
	}

	a, err := adk.NewChatModelAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return adk.NewRunner(ctx, adk.RunnerConfig{
		Agent:           a,
		EnableStreaming: true,
	}), nil
}
