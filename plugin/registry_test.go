package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plugin"
)

type counting struct {
	name     string
	deducted atomic.Int64
	logins   atomic.Int64
	err      error
}

func (c *counting) Name() string { return c.name }

func (c *counting) OnCreditsDeducted(context.Context, *meter.Deduction) error {
	c.deducted.Add(1)
	return c.err
}

func (c *counting) OnLogin(context.Context, string, bool) error {
	c.logins.Add(1)
	return c.err
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnLogout(ctx context.Context, _ string) error {
	time.Sleep(time.Second)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&counting{name: "a"}))
	require.Error(t, r.Register(&counting{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("b"))
}

func TestEmitDispatchesByHook(t *testing.T) {
	r := plugin.NewRegistry()
	a := &counting{name: "a"}
	b := &counting{name: "b", err: errors.New("boom")}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	ctx := context.Background()
	r.EmitCreditsDeducted(ctx, &meter.Deduction{Amount: 3})
	r.EmitLogin(ctx, "ada@example.com", true)
	r.EmitLogout(ctx, "ada@example.com") // nobody listens

	assert.Equal(t, int64(1), a.deducted.Load())
	assert.Equal(t, int64(1), b.deducted.Load(), "a failing hook still ran")
	assert.Equal(t, int64(1), a.logins.Load())
	assert.Len(t, r.List(), 2)
}

func TestEmitTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slow{}))

	start := time.Now()
	r.EmitLogout(context.Background(), "ada@example.com")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
