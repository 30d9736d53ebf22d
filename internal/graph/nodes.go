package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/tools"
)

// toolConcurrency bounds the calls of one TOOLS step running at once.
const toolConcurrency = 4

func errorMessage(err error) *schema.Message {
	return schema.AssistantMessage(consts.AnalysisErrorPrefix+err.Error(), nil)
}

// nextStep routes to TOOLS while the newest AI message asks for tools.
func nextStep(_ context.Context, state *models.ConversationState) (string, error) {
	if last := state.LastMessage(); last != nil && last.Role == schema.Assistant && len(last.ToolCalls) > 0 {
		return consts.NodeTools, nil
	}
	return compose.END, nil
}

func (o *Orchestrator) analyze(ctx context.Context, state *models.ConversationState) (out *models.ConversationState, err error) {
	if last := state.LastMessage(); last != nil && last.Role == schema.Assistant {
		return state, nil
	}

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic in analysis: %v", r)
			logger.ErrorWithErr(ctx, "analyze node panicked", perr, "ticker", state.Ticker)
			state.Append(errorMessage(perr))
			out, err = state, nil
		}
	}()

	var msg *schema.Message
	var stepErr error
	switch o.cfg.Mode {
	case ModeIterative:
		msg, stepErr = o.iterate(ctx, state)
	default:
		msg, stepErr = o.singlePass(ctx, state)
	}
	if stepErr != nil {
		logger.ErrorWithErr(ctx, "analysis step failed", stepErr, "ticker", state.Ticker)
		msg = errorMessage(stepErr)
	}
	state.Append(msg)
	return state, nil
}

func (o *Orchestrator) singlePass(ctx context.Context, state *models.ConversationState) (*schema.Message, error) {
	if !state.HasToolResults() {
		if calls := o.forcedToolCalls(state.Ticker); len(calls) > 0 {
			logger.Debug(ctx, "forcing data tools", "ticker", state.Ticker, "tools", len(calls))
			return schema.AssistantMessage("", calls), nil
		}
	}
	return o.synthesize(ctx, state)
}

// forcedToolCalls requests every registered data tool for ticker.
func (o *Orchestrator) forcedToolCalls(ticker string) []schema.ToolCall {
	args, _ := json.Marshal(tools.TickerInput{Ticker: ticker})
	var calls []schema.ToolCall
	for _, name := range tools.DataTools {
		if !o.cfg.Registry.Has(name) {
			continue
		}
		calls = append(calls, schema.ToolCall{
			ID:   "call_" + name,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      name,
				Arguments: string(args),
			},
		})
	}
	return calls
}

func (o *Orchestrator) synthesize(ctx context.Context, state *models.ConversationState) (*schema.Message, error) {
	analyst, err := o.analystPrompt(ctx, state.Ticker)
	if err != nil {
		return nil, err
	}
	msgs, err := synthesisMessages(ctx, state, analyst)
	if err != nil {
		return nil, err
	}
	resp, err := o.cfg.Model.Generate(ctx, msgs)
	return checkModelResponse(resp, err)
}

func (o *Orchestrator) iterate(ctx context.Context, state *models.ConversationState) (*schema.Message, error) {
	system, err := o.analystPrompt(ctx, state.Ticker)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(state.Messages)+2)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, state.Messages...)

	if state.ToolRounds() >= o.cfg.MaxToolRounds {
		finish, err := finishMessage(ctx, state.Ticker)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "tool budget exhausted, finishing", "ticker", state.Ticker, "rounds", o.cfg.MaxToolRounds)
		resp, err := checkModelResponse(o.cfg.Model.Generate(ctx, append(msgs, finish)))
		if err != nil {
			return nil, err
		}
		resp.ToolCalls = nil
		return resp, nil
	}

	return checkModelResponse(o.bound.Generate(ctx, msgs))
}

func checkModelResponse(resp *schema.Message, err error) (*schema.Message, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrModel)
	}
	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, fmt.Errorf("%w: response has neither content nor tool calls", ErrModel)
	}
	resp.Role = schema.Assistant
	return resp, nil
}

// runTools executes the calls of the newest AI message concurrently and
// appends the Tool messages in call order.
func (o *Orchestrator) runTools(ctx context.Context, state *models.ConversationState) (*models.ConversationState, error) {
	last := state.LastMessage()
	if last == nil || last.Role != schema.Assistant || len(last.ToolCalls) == 0 {
		return state, nil
	}

	calls := last.ToolCalls
	results := make([]*schema.Message, len(calls))

	var g errgroup.Group
	g.SetLimit(toolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			res := o.cfg.Registry.Invoke(ctx, call.Function.Name, call.Function.Arguments)
			if !res.IsOk() {
				logger.Warn(ctx, "tool returned error", "tool", call.Function.Name, "error", res.Message())
			}
			results[i] = schema.ToolMessage(res.Content(), call.ID)
			return nil
		})
	}
	_ = g.Wait()

	state.Append(results...)
	return state, nil
}
