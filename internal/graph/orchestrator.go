package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/tools"
	"github.com/dyike/StockPilot/internal/utils"
)

// ErrModel marks a failed or unusable language model call.
var ErrModel = dataflows.ErrModel

// Mode selects how ANALYZE drives the tools.
type Mode string

const (
	// ModeSinglePass forces every data tool on the first turn and then
	// synthesises the answer with one model call.
	ModeSinglePass Mode = "single"
	// ModeIterative lets the model choose tools turn by turn.
	ModeIterative Mode = "iterative"
)

const (
	defaultMaxToolRounds = 5
	defaultLanguage      = "English"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSinglePass:
		return ModeSinglePass, nil
	case ModeIterative:
		return ModeIterative, nil
	default:
		return "", fmt.Errorf("unknown agent mode %q", s)
	}
}

// AgentConfig carries everything one orchestrator needs.
type AgentConfig struct {
	Model         model.ToolCallingChatModel
	Registry      *tools.Registry
	Mode          Mode
	MaxToolRounds int
	// SystemPrompt may use {{.Ticker}} and {{.Language}}. Empty means the
	// embedded fundamental analyst prompt.
	SystemPrompt string
	Language     string
}

type Orchestrator struct {
	cfg      AgentConfig
	bound    model.ToolCallingChatModel
	runnable compose.Runnable[*models.ConversationState, *models.ConversationState]
}

func NewOrchestrator(ctx context.Context, cfg AgentConfig) (*Orchestrator, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent config: model is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent config: tool registry is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSinglePass
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = utils.MustLoadPrompt(utils.PromptFundamentalAnalyst)
	}

	o := &Orchestrator{cfg: cfg}
	if cfg.Mode == ModeIterative {
		bound, err := cfg.Model.WithTools(cfg.Registry.Infos(ctx))
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		o.bound = bound
	}

	runnable, err := o.compile(ctx)
	if err != nil {
		return nil, err
	}
	o.runnable = runnable
	return o, nil
}

func (o *Orchestrator) compile(ctx context.Context) (compose.Runnable[*models.ConversationState, *models.ConversationState], error) {
	g := compose.NewGraph[*models.ConversationState, *models.ConversationState]()

	_ = g.AddLambdaNode(consts.NodeAnalyze, compose.InvokableLambda(o.analyze), compose.WithNodeName(consts.NodeAnalyze))
	_ = g.AddLambdaNode(consts.NodeTools, compose.InvokableLambda(o.runTools), compose.WithNodeName(consts.NodeTools))

	_ = g.AddEdge(compose.START, consts.NodeAnalyze)
	_ = g.AddBranch(consts.NodeAnalyze, compose.NewGraphBranch(nextStep, map[string]bool{
		consts.NodeTools: true,
		compose.END:      true,
	}))
	_ = g.AddEdge(consts.NodeTools, consts.NodeAnalyze)

	// Each round is analyze + tools; the last analyze and END need two more.
	maxSteps := 2*(o.cfg.MaxToolRounds+1) + 4

	r, err := g.Compile(ctx,
		compose.WithGraphName(consts.GraphStockAnalysis),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile analysis graph: %w", err)
	}
	return r, nil
}

func (o *Orchestrator) Mode() Mode { return o.cfg.Mode }

// Run analyses one ticker. An empty question becomes the default buy
// question. The returned state always ends in an AI message; graph failures
// are folded into that message instead of being returned.
func (o *Orchestrator) Run(ctx context.Context, ticker, question string, handlers ...callbacks.Handler) (*models.ConversationState, error) {
	if err := dataflows.ValidateSymbol(ticker); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		question = consts.DefaultQuestion
	}
	return o.Resume(ctx, models.NewConversationState(ticker, question), handlers...)
}

// Resume drives an existing conversation to completion. A conversation that
// already ends in an answer is returned unchanged.
func (o *Orchestrator) Resume(ctx context.Context, state *models.ConversationState, handlers ...callbacks.Handler) (*models.ConversationState, error) {
	if state == nil {
		return nil, fmt.Errorf("nil conversation state")
	}
	op := logger.StartOperation(ctx, "stock_analysis", "ticker", state.Ticker, "mode", string(o.cfg.Mode))

	var opts []compose.Option
	if len(handlers) > 0 {
		opts = append(opts, compose.WithCallbacks(handlers...))
	}

	out, err := o.runnable.Invoke(op.Context(), state, opts...)
	if err != nil {
		op.EndWithError(err)
		state.Append(errorMessage(err))
		return state, nil
	}
	op.End("messages", len(out.Messages), "tool_rounds", out.ToolRounds())
	return out, nil
}

// Analyze is Run reduced to the final answer text.
func (o *Orchestrator) Analyze(ctx context.Context, ticker, question string, handlers ...callbacks.Handler) (string, error) {
	state, err := o.Run(ctx, ticker, question, handlers...)
	if err != nil {
		return "", err
	}
	return state.Answer(), nil
}
