package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

func testProcess(buf *bytes.Buffer) *Process {
	return &Process{
		Kind:   "cron-worker",
		Config: &config.Config{App: config.AppConfig{Env: "test"}},
		Logger: logger.New(logger.Options{ServiceName: "cron-worker", Output: buf}),
	}
}

func TestCloseRunsInReverseAndCollectsErrors(t *testing.T) {
	p := testProcess(&bytes.Buffer{})
	var order []string
	p.Defer("database", func() error { order = append(order, "database"); return nil })
	p.Defer("redis", func() error { order = append(order, "redis"); return errors.New("conn reset") })
	p.Defer("pubsub", func() error { order = append(order, "pubsub"); return errors.New("grpc closing") })

	err := p.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"pubsub", "redis", "database"}, order)
	assert.Contains(t, err.Error(), "close redis")
	assert.Contains(t, err.Error(), "close pubsub")

	assert.NoError(t, p.Close(), "closers run once")
}

func TestMustClosesAndExits(t *testing.T) {
	var buf bytes.Buffer
	p := testProcess(&buf)
	closed := false
	p.Defer("database", func() error { closed = true; return nil })
	code := -1
	p.exit = func(c int) { code = c }

	p.Must("scheduler", nil)
	assert.Equal(t, -1, code)
	assert.False(t, closed)

	p.Must("scheduler", errors.New("bad interval"))
	assert.Equal(t, 1, code)
	assert.True(t, closed)
	assert.True(t, strings.Contains(buf.String(), "failed to initialize scheduler"))
}

func TestSignalContextCarriesProcessFields(t *testing.T) {
	var buf bytes.Buffer
	p := testProcess(&buf)
	t.Setenv("RAFFLEPOT_WORKER_ID", "worker.1")

	ctx, stop := p.SignalContext(map[string]any{"addr": ":8080"})
	defer stop()
	p.Logger.Info(ctx, "hello")

	out := buf.String()
	for _, want := range []string{`"env":"test"`, `"serviceKind":"cron-worker"`, `"instance":"worker.1"`, `"addr":":8080"`} {
		assert.Contains(t, out, want)
	}
	assert.NoError(t, context.Cause(ctx))
}
