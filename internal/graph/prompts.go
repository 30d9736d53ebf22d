package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/utils"
)

type toolOutput struct {
	Name    string
	Content string
}

func formatSingle(ctx context.Context, tpl *schema.Message, vars map[string]any) (*schema.Message, error) {
	msgs, err := prompt.FromMessages(schema.GoTemplate, tpl).Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	if len(msgs) != 1 {
		return nil, fmt.Errorf("format prompt: expected one message, got %d", len(msgs))
	}
	return msgs[0], nil
}

func (o *Orchestrator) analystPrompt(ctx context.Context, ticker string) (string, error) {
	msg, err := formatSingle(ctx, schema.SystemMessage(o.cfg.SystemPrompt), map[string]any{
		"Ticker":   ticker,
		"Language": o.cfg.Language,
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// collectToolOutputs pairs each Tool message with the name of the call it answers.
func collectToolOutputs(state *models.ConversationState) []toolOutput {
	names := make(map[string]string)
	var outputs []toolOutput
	for _, msg := range state.Messages {
		switch msg.Role {
		case schema.Assistant:
			for _, call := range msg.ToolCalls {
				names[call.ID] = call.Function.Name
			}
		case schema.Tool:
			name := names[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			outputs = append(outputs, toolOutput{Name: name, Content: msg.Content})
		}
	}
	return outputs
}

func synthesisMessages(ctx context.Context, state *models.ConversationState, analyst string) ([]*schema.Message, error) {
	msg, err := formatSingle(ctx, schema.UserMessage(utils.MustLoadPrompt(utils.PromptSynthesis)), map[string]any{
		"Ticker":   state.Ticker,
		"Question": state.Question,
		"Results":  collectToolOutputs(state),
		"Analyst":  analyst,
	})
	if err != nil {
		return nil, err
	}
	return []*schema.Message{msg}, nil
}

func finishMessage(ctx context.Context, ticker string) (*schema.Message, error) {
	return formatSingle(ctx, schema.UserMessage(utils.MustLoadPrompt(utils.PromptFinish)), map[string]any{
		"Ticker": ticker,
	})
}
