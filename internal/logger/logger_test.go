package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWithoutInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info(context.Background(), "no init yet", "ticker", "TSLA")
		StartOperation(context.Background(), "noop").End()
	})
}

func TestInitWithConfigJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithConfig(LogConfig{Level: "INFO", Format: "json", Output: &buf}))
	t.Cleanup(func() { _ = InitWithConfig(LogConfig{Level: "ERROR", Output: &bytes.Buffer{}}) })

	ctx := context.Background()
	Debug(ctx, "hidden")
	Info(ctx, "tool invoked", "tool", "get_stock_prices")
	ErrorWithErr(ctx, "tool failed", errors.New("boom"), "tool", "get_financial_news")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"tool invoked"`)
	assert.Contains(t, out, `"tool":"get_stock_prices"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestOperationTimerEndWithError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithConfig(LogConfig{Level: "DEBUG", Format: "text", Output: &buf}))
	t.Cleanup(func() { _ = InitWithConfig(LogConfig{Level: "ERROR", Output: &bytes.Buffer{}}) })

	op := StartOperation(context.Background(), "fetch_news", "ticker", "ZZZZ")
	op.EndWithError(errors.New("upstream down"))

	out := buf.String()
	assert.Contains(t, out, "operation failed")
	assert.Contains(t, out, "operation=fetch_news")
	assert.Contains(t, out, "ticker=ZZZZ")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("WARN").String())
	assert.Equal(t, "INFO", parseLogLevel("verbose").String())
}
