package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store/memory"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func TestTrailOfASession(t *testing.T) {
	ctx := context.Background()
	rec := &sink{}
	l, err := credits.New(memory.New(), credits.WithPlugin(audithook.New(rec)))
	require.NoError(t, err)

	sess, err := l.Login(ctx, "ada@example.com")
	require.NoError(t, err)
	_, err = sess.PurchasePlan(ctx, "pro", credits.WithIdempotencyKey("chk_9"))
	require.NoError(t, err)
	_, err = sess.PurchasePlan(ctx, "pro", credits.WithIdempotencyKey("chk_9"))
	require.ErrorIs(t, err, credits.ErrDuplicatePurchase)
	_, err = sess.DeductCredits(ctx, 50, plan.PoolImagen)
	require.NoError(t, err)
	_, err = sess.DeductCredits(ctx, 5000, plan.PoolImagen)
	require.NoError(t, err)
	require.NoError(t, sess.Logout(ctx))

	assert.Equal(t, []string{
		audithook.ActionAccountCreated,
		audithook.ActionLogin,
		audithook.ActionPurchaseApplied,
		audithook.ActionPurchaseDuplicate,
		audithook.ActionCreditsDeducted,
		audithook.ActionDeductionSkipped,
		audithook.ActionLogout,
	}, rec.actions())

	applied := rec.events[2]
	assert.Equal(t, "ada@example.com", applied.Actor)
	assert.Equal(t, "chk_9", applied.Metadata["checkout_id"])
	assert.Equal(t, int64(1500), applied.Metadata["added_imagen"])
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &sink{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionLogin))

	require.NoError(t, ext.OnLogin(ctx, "ada@example.com", true))
	require.NoError(t, ext.OnLogout(ctx, "ada@example.com"))
	assert.Equal(t, []string{audithook.ActionLogout}, rec.actions())
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &sink{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionPersistFailed))

	require.NoError(t, ext.OnLogout(ctx, "ada@example.com"))
	require.NoError(t, ext.OnPersistFailed(ctx, "account/ada@example.com", errors.New("down")))

	require.Len(t, rec.events, 1)
	assert.Equal(t, "down", rec.events[0].Reason)
	assert.Equal(t, audithook.SeverityError, rec.events[0].Severity)
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ext := audithook.New(audithook.LogRecorder(logger))

	require.NoError(t, ext.OnLogin(context.Background(), "ada@example.com", false))
	assert.Contains(t, buf.String(), `"action":"account.login"`)
	assert.Contains(t, buf.String(), `"actor":"ada@example.com"`)
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("trail offline")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.DiscardHandler)))
	assert.NoError(t, ext.OnLogout(context.Background(), "ada@example.com"))
}
