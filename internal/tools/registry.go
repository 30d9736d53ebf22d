package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/logger"
)

// DataTools are the tools the single-pass agent calls eagerly on its first turn.
var DataTools = []string{
	consts.ToolGetStockPrices,
	consts.ToolGetFinancialMetrics,
	consts.ToolGetFinancialNews,
}

// ToolResult is either Ok with a JSON payload or Error with a message.
type ToolResult struct {
	ok      bool
	payload json.RawMessage
	message string
}

func Ok(payload json.RawMessage) ToolResult {
	return ToolResult{ok: true, payload: payload}
}

func Error(msg string) ToolResult {
	return ToolResult{message: msg}
}

func (r ToolResult) IsOk() bool               { return r.ok }
func (r ToolResult) Payload() json.RawMessage { return r.payload }
func (r ToolResult) Message() string          { return r.message }

// Content renders the result as the body of a tool message. Errors become
// {"error": "..."} so the model always receives valid JSON.
func (r ToolResult) Content() string {
	if r.ok {
		return string(r.payload)
	}
	data, _ := json.Marshal(map[string]string{"error": r.message})
	return string(data)
}

// Registry maps tool names to eino invokable tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.InvokableTool
	infos map[string]*schema.ToolInfo
}

func NewRegistry(ctx context.Context, tools ...tool.InvokableTool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]tool.InvokableTool),
		infos: make(map[string]*schema.ToolInfo),
	}
	for _, t := range tools {
		if err := r.Register(ctx, t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(ctx context.Context, t tool.InvokableTool) error {
	info, err := t.Info(ctx)
	if err != nil {
		return fmt.Errorf("tool info: %w", err)
	}
	if info.Name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool %q already registered", info.Name)
	}
	r.tools[info.Name] = t
	r.infos[info.Name] = info
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Infos returns the tool descriptions for model binding, sorted by name.
func (r *Registry) Infos(_ context.Context) []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]*schema.ToolInfo, 0, len(r.infos))
	for _, info := range r.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Invoke runs one tool. It never panics and never returns the zero ToolResult:
// unknown names, bad arguments, tool errors and panics all become Error.
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) (result ToolResult) {
	op := logger.StartOperation(ctx, "tool_invoke", "tool", name)
	defer func() {
		if rec := recover(); rec != nil {
			result = Error(fmt.Sprintf("tool %s panicked: %v", name, rec))
		}
		if result.ok {
			op.End()
		} else {
			op.EndWithError(fmt.Errorf("%s", result.message))
		}
	}()

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Error(fmt.Sprintf("unknown tool: %s", name))
	}

	if argsJSON == "" {
		argsJSON = "{}"
	}
	if !json.Valid([]byte(argsJSON)) {
		return Error(fmt.Sprintf("invalid arguments for %s: not valid JSON", name))
	}

	out, err := t.InvokableRun(op.Context(), argsJSON)
	if err != nil {
		return Error(toolReason(err))
	}
	if !json.Valid([]byte(out)) {
		data, _ := json.Marshal(out)
		return Ok(data)
	}
	return Ok(json.RawMessage(out))
}

// toolReason drops the "[LocalFunc] ... err=" wrapper the function tool adapter
// puts around errors, leaving the tool's own message.
func toolReason(err error) string {
	if inner := errors.Unwrap(err); inner != nil && strings.HasPrefix(err.Error(), "[LocalFunc]") {
		return inner.Error()
	}
	return err.Error()
}
