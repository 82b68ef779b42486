package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xraph/credits/pricing"
)

// Provider turns a prompt into media. Implementations must honour ctx.
type Provider interface {
	Name() pricing.Provider
	Generate(ctx context.Context, req Request) (*Output, error)
}

// Output is what a provider returns for one request.
type Output struct {
	URL   string        `json:"url"`
	Media pricing.Media `json:"media"`
}

// ──────────────────────────────────────────────────
// Pollinations
// ──────────────────────────────────────────────────

// DefaultPollinationsURL is the public Pollinations image endpoint.
const DefaultPollinationsURL = "https://image.pollinations.ai/prompt/"

// Pollinations renders on request: the image URL is the result, so no call
// is made here.
type Pollinations struct {
	BaseURL string
}

func (p *Pollinations) Name() pricing.Provider { return pricing.ProviderPollinations }

// Generate builds <base><escaped prompt>?width=&height=&nologo=true.
func (p *Pollinations) Generate(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := p.BaseURL
	if base == "" {
		base = DefaultPollinationsURL
	}

	q := url.Values{}
	q.Set("width", strconv.Itoa(req.Width))
	q.Set("height", strconv.Itoa(req.Height))
	if req.Model != "" {
		q.Set("model", req.Model)
	}
	q.Set("nologo", "true")

	return &Output{
		URL:   base + url.PathEscape(req.Prompt) + "?" + q.Encode(),
		Media: pricing.MediaImage,
	}, nil
}

// ──────────────────────────────────────────────────
// HTTP gateway
// ──────────────────────────────────────────────────

// HTTPProvider posts the request as JSON to a generation gateway and expects
// {"url": ..., "media": ...} back. It fronts providers with an async API,
// such as Imagen or Replicate, behind one endpoint each.
type HTTPProvider struct {
	provider pricing.Provider
	endpoint string
	client   *http.Client
	header   http.Header
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client, which times out after 2 minutes.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithHeader adds a header to every call, typically Authorization.
func WithHeader(key, value string) HTTPOption {
	return func(p *HTTPProvider) { p.header.Add(key, value) }
}

func NewHTTPProvider(name pricing.Provider, endpoint string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		provider: name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
		header:   http.Header{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) Name() pricing.Provider { return p.provider }

// Gateway names the endpoint of one provider served through HTTPProvider.
type Gateway struct {
	Provider pricing.Provider
	Endpoint string
	Token    string // sent as a bearer token when set
}

func (g Gateway) provider() *HTTPProvider {
	var opts []HTTPOption
	if g.Token != "" {
		opts = append(opts, WithHeader("Authorization", "Bearer "+g.Token))
	}
	return NewHTTPProvider(g.Provider, g.Endpoint, opts...)
}

type gatewayError struct {
	Error string `json:"error"`
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (*Output, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range p.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var ge gatewayError
		if json.Unmarshal(data, &ge) == nil && ge.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, ge.Error)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.URL == "" {
		return nil, errors.New("response without url")
	}
	if out.Media == "" {
		out.Media = req.Media
	}
	return &out, nil
}
