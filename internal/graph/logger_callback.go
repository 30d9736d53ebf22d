package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
)

// LoggerCallback logs graph node activity and, when Out is set, sends short
// progress lines to it. Sends never block; lines are dropped if Out is full.
type LoggerCallback struct {
	callbacks.HandlerBuilder

	Out chan string
}

func NewLoggerCallback(out chan string) *LoggerCallback {
	return &LoggerCallback{Out: out}
}

func (cb *LoggerCallback) push(format string, args ...any) {
	if cb.Out == nil {
		return
	}
	select {
	case cb.Out <- fmt.Sprintf(format, args...):
	default:
	}
}

func toolNames(msg *schema.Message) string {
	names := make([]string, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		names = append(names, call.Function.Name)
	}
	return strings.Join(names, ", ")
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if info == nil {
		return ctx
	}
	logger.Debug(ctx, "node start", "node", info.Name, "component", string(info.Component))

	if state, ok := input.(*models.ConversationState); ok && info.Name == consts.NodeTools {
		if last := state.LastMessage(); last != nil && len(last.ToolCalls) > 0 {
			cb.push("fetching %s for %s", toolNames(last), state.Ticker)
		}
	}
	return ctx
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if info == nil {
		return ctx
	}
	logger.Debug(ctx, "node end", "node", info.Name, "component", string(info.Component))

	state, ok := output.(*models.ConversationState)
	if !ok {
		return ctx
	}
	switch info.Name {
	case consts.NodeTools:
		failed := 0
		for _, msg := range state.Messages {
			if msg.Role == schema.Tool && strings.HasPrefix(msg.Content, `{"error"`) {
				failed++
			}
		}
		if failed > 0 {
			cb.push("%d tool result(s) reported errors so far", failed)
		}
	case consts.NodeAnalyze:
		last := state.LastMessage()
		switch {
		case last == nil:
		case len(last.ToolCalls) > 0:
			cb.push("model requested %s", toolNames(last))
		case strings.HasPrefix(last.Content, consts.AnalysisErrorPrefix):
			cb.push("analysis failed")
		default:
			cb.push("report ready")
		}
	}
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	logger.ErrorWithErr(ctx, "node error", err, "node", name)
	cb.push("error in %s: %v", name, err)
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()
		defer func() {
			if err := recover(); err != nil {
				logger.Error(ctx, "stream callback panic", "panic", fmt.Sprint(err))
			}
		}()
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				logger.Warn(ctx, "stream callback recv failed", "error", err)
				return
			}
			switch v := frame.(type) {
			case *schema.Message:
				cb.push("%s", v.Content)
			case *ecmodel.CallbackOutput:
				if v.Message != nil {
					cb.push("%s", v.Message.Content)
				}
			}
		}
	}()
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}
