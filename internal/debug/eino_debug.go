package debug

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino-ext/devops"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/logger"
)

// EinoDebugger starts the eino devops server so compiled graphs can be
// inspected from the visual debugger.
type EinoDebugger struct {
	config *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{config: cfg}
}

// Initialize must run before any graph is compiled, otherwise those graphs
// are not registered with the debug server.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	logger.Info(ctx, "starting eino debug server", "port", d.config.EinoDebugPort)
	err := devops.Init(ctx, devops.WithDevServerPort(strconv.Itoa(d.config.EinoDebugPort)))
	if err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	logger.Info(ctx, "eino debug server ready", "url", d.GetDebugURL())
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
