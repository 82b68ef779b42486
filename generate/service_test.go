package generate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/generate"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store/memory"
)

// stubProvider answers with a fixed output or error and can block until
// its context ends.
type stubProvider struct {
	name  pricing.Provider
	out   *generate.Output
	err   error
	block bool
	calls int
}

func (p *stubProvider) Name() pricing.Provider { return p.name }

func (p *stubProvider) Generate(ctx context.Context, _ generate.Request) (*generate.Output, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.out, p.err
}

func setup(t *testing.T, opts ...generate.Option) (*credits.Ledger, *credits.Session, *generate.Service) {
	t.Helper()
	l, err := credits.New(memory.New())
	require.NoError(t, err)
	sess, err := l.Login(context.Background(), "ada@example.com")
	require.NoError(t, err)
	return l, sess, generate.NewService(l, opts...)
}

func balance(t *testing.T, sess *credits.Session, pool plan.Pool) int64 {
	t.Helper()
	sum, err := sess.Summary(context.Background())
	require.NoError(t, err)
	return sum.Balance(pool)
}

func TestPollinationsURL(t *testing.T) {
	p := &generate.Pollinations{}
	out, err := p.Generate(context.Background(), generate.Request{
		Prompt: "a red fox & moon",
		Width:  512,
		Height: 768,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"https://image.pollinations.ai/prompt/a%20red%20fox%20&%20moon?height=768&nologo=true&width=512",
		out.URL)
	assert.Equal(t, pricing.MediaImage, out.Media)
}

func TestGenerateChargesOnSuccess(t *testing.T) {
	ctx := context.Background()
	_, sess, svc := setup(t)

	res, err := svc.Generate(ctx, sess, generate.Request{Prompt: "  lighthouse at dusk "})
	require.NoError(t, err)
	assert.True(t, res.Charged)
	assert.Equal(t, int64(20), res.Credits)
	assert.Contains(t, res.URL, "lighthouse%20at%20dusk?height=1024")
	assert.Equal(t, int64(0), balance(t, sess, plan.PoolPollinations))

	// The trial is spent now.
	_, err = svc.Generate(ctx, sess, generate.Request{Prompt: "again"})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)
	var denied *generate.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, entitlement.ReasonInsufficientCredits, denied.Result.Reason)
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	stub := &stubProvider{name: pricing.ProviderPollinations}
	_, sess, svc := setup(t, generate.WithProvider(stub))

	_, err := svc.Generate(context.Background(), sess, generate.Request{Prompt: "   "})
	require.Error(t, err)
	assert.True(t, credits.IsValidation(err))
	assert.Zero(t, stub.calls)
}

func TestProviderFailureIsFree(t *testing.T) {
	stub := &stubProvider{name: pricing.ProviderPollinations, err: errors.New("upstream 503")}
	_, sess, svc := setup(t, generate.WithProvider(stub))

	_, err := svc.Generate(context.Background(), sess, generate.Request{Prompt: "fox"})
	require.ErrorIs(t, err, credits.ErrProviderFailed)
	assert.Contains(t, err.Error(), "upstream 503")
	assert.Equal(t, int64(20), balance(t, sess, plan.PoolPollinations))
}

func TestCancelledGenerationIsFree(t *testing.T) {
	stub := &stubProvider{name: pricing.ProviderPollinations, block: true}
	_, sess, svc := setup(t, generate.WithProvider(stub))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, sess, generate.Request{Prompt: "fox"})
		done <- err
	}()
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(20), balance(t, sess, plan.PoolPollinations))
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	l, sess, svc := setup(t)

	res, err := svc.Authorize(ctx, sess, generate.Request{Prompt: "x", Provider: pricing.ProviderImagen, Quality: pricing.QualityHD})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, entitlement.ReasonInsufficientCredits, res.Reason)
	assert.Equal(t, int64(50), res.Cost)
	assert.Equal(t, plan.PoolImagen, res.Pool)

	_, err = sess.PurchasePlan(ctx, "booster")
	require.NoError(t, err)
	res, err = svc.Authorize(ctx, sess, generate.Request{Prompt: "x", Provider: pricing.ProviderImagen, Quality: pricing.QualityHD})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(450), res.Remaining)

	res, err = svc.Authorize(ctx, nil, generate.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, entitlement.ReasonNotLoggedIn, res.Reason)

	require.NoError(t, l.Logout(ctx))
	res, err = svc.Authorize(ctx, sess, generate.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, entitlement.ReasonNotLoggedIn, res.Reason)

	_, err = svc.Authorize(ctx, nil, generate.Request{Prompt: "x", Provider: "dalle"})
	assert.ErrorIs(t, err, credits.ErrUnknownProvider)
}

func TestLockedAccountCannotGenerate(t *testing.T) {
	l, err := credits.New(memory.New(), credits.WithLoginLimit(0))
	require.NoError(t, err)
	sess, err := l.Login(context.Background(), "ada@example.com")
	require.NoError(t, err)

	_, err = generate.NewService(l).Generate(context.Background(), sess, generate.Request{Prompt: "fox"})
	require.ErrorIs(t, err, credits.ErrLoginLocked)
	assert.True(t, credits.IsCreditError(err))
}

func TestUnconfiguredProvider(t *testing.T) {
	_, sess, svc := setup(t)
	_, err := svc.Generate(context.Background(), sess, generate.Request{Prompt: "fox", Provider: pricing.ProviderImagen})
	require.ErrorIs(t, err, credits.ErrUnknownProvider)
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req generate.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if strings.Contains(req.Prompt, "forbidden") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"prompt rejected"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.test/" + req.Model + ".mp4", "media": "video"})
	}))
	defer srv.Close()

	p := generate.NewHTTPProvider(pricing.ProviderReplicate, srv.URL, generate.WithHeader("Authorization", "Bearer k"))
	_, sess, svc := setup(t, generate.WithProvider(p))

	res, err := svc.Generate(context.Background(), sess, generate.Request{
		Prompt:   "waves",
		Provider: pricing.ProviderReplicate,
		Model:    "clip",
		Media:    pricing.MediaVideo,
	})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits, "a video costs 50, the trial holds 20")
	assert.Nil(t, res)

	_, err = sess.PurchasePlan(context.Background(), "booster")
	require.NoError(t, err)
	res, err = svc.Generate(context.Background(), sess, generate.Request{
		Prompt:   "waves",
		Provider: pricing.ProviderReplicate,
		Model:    "clip",
		Media:    pricing.MediaVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/clip.mp4", res.URL)
	assert.Equal(t, pricing.MediaVideo, res.Media)
	assert.Equal(t, int64(50), res.Credits)
	assert.Equal(t, int64(470), balance(t, sess, plan.PoolPollinations))

	_, err = svc.Generate(context.Background(), sess, generate.Request{Prompt: "forbidden", Provider: pricing.ProviderReplicate})
	require.ErrorIs(t, err, credits.ErrProviderFailed)
	assert.Contains(t, err.Error(), "prompt rejected")
}

func TestGateways(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.test/imagen.png", "media": "image"})
	}))
	defer srv.Close()

	_, sess, svc := setup(t, generate.WithGateways(
		generate.Gateway{Provider: pricing.ProviderImagen, Endpoint: srv.URL, Token: "secret"},
		generate.Gateway{Provider: pricing.ProviderReplicate},
	))
	ctx := context.Background()
	_, err := sess.PurchasePlan(ctx, "booster")
	require.NoError(t, err)

	res, err := svc.Generate(ctx, sess, generate.Request{Prompt: "fox", Provider: pricing.ProviderImagen})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/imagen.png", res.URL)
	assert.Equal(t, 1, hits)

	res, err = svc.Generate(ctx, sess, generate.Request{Prompt: "fox"})
	require.NoError(t, err)
	assert.Equal(t, pricing.ProviderPollinations, res.Provider, "pollinations stays the fallback")
	assert.True(t, strings.HasPrefix(res.URL, generate.DefaultPollinationsURL))
	assert.Equal(t, 1, hits)

	_, err = svc.Generate(ctx, sess, generate.Request{Prompt: "fox", Provider: pricing.ProviderReplicate})
	require.ErrorIs(t, err, credits.ErrUnknownProvider, "a gateway without an endpoint is not registered")
}
