// Package pricing maps a generation request to its credit cost.
//
// The table is static configuration. A rate belongs to one provider and
// debits one pool; within a rate the cost is resolved in this order: video
// surcharge, per-quality price, flat price.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/credits/plan"
)

var (
	ErrUnknownProvider = errors.New("pricing: unknown provider")
	ErrUnknownQuality  = errors.New("pricing: no rate for quality")
)

// Provider identifies a generation backend.
type Provider string

const (
	ProviderPollinations Provider = "pollinations"
	ProviderImagen       Provider = "imagen"
	ProviderReplicate    Provider = "replicate"
)

// Quality is the requested output resolution tier.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
	QualityUHD      Quality = "uhd"
)

// Media is the kind of output.
type Media string

const (
	MediaImage Media = "image"
	MediaVideo Media = "video"
)

type Rate struct {
	Pool      plan.Pool         `json:"pool"`
	Flat      int64             `json:"flat,omitempty"`
	ByQuality map[Quality]int64 `json:"by_quality,omitempty"`
	Video     int64             `json:"video,omitempty"`
}

// Quote is the resolved cost of one generation.
type Quote struct {
	Provider Provider  `json:"provider"`
	Pool     plan.Pool `json:"pool"`
	Credits  int64     `json:"credits"`
}

// Table holds one rate per provider.
type Table struct {
	rates map[Provider]Rate
}

// NewTable copies rates into a table.
func NewTable(rates map[Provider]Rate) *Table {
	t := &Table{rates: make(map[Provider]Rate, len(rates))}
	for p, r := range rates {
		t.rates[p] = r
	}
	return t
}

// DefaultTable prices the dual-pool catalog: Pollinations is a flat 20
// per generation, Google Imagen is tiered by quality and Replicate models
// charge by media type against the Pollinations pool.
func DefaultTable() *Table {
	return NewTable(map[Provider]Rate{
		ProviderPollinations: {Pool: plan.PoolPollinations, Flat: 20},
		ProviderImagen: {Pool: plan.PoolImagen, ByQuality: map[Quality]int64{
			QualityStandard: 10,
			QualityHD:       50,
			QualityUHD:      90,
		}},
		ProviderReplicate: {Pool: plan.PoolPollinations, Flat: 20, Video: 50},
	})
}

// SinglePoolTable prices every provider by quality against plan.PoolCredits.
func SinglePoolTable() *Table {
	tiered := Rate{Pool: plan.PoolCredits, ByQuality: map[Quality]int64{
		QualityStandard: 2,
		QualityHD:       10,
		QualityUHD:      20,
	}}
	return NewTable(map[Provider]Rate{
		ProviderPollinations: tiered,
		ProviderImagen:       tiered,
		ProviderReplicate:    tiered,
	})
}

// Cost resolves the credit price of a generation. An empty quality means
// standard, an empty media means image.
func (t *Table) Cost(provider Provider, quality Quality, media Media) (Quote, error) {
	provider = Provider(strings.ToLower(strings.TrimSpace(string(provider))))
	r, ok := t.rates[provider]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if quality == "" {
		quality = QualityStandard
	}

	q := Quote{Provider: provider, Pool: r.Pool}
	switch {
	case media == MediaVideo && r.Video > 0:
		q.Credits = r.Video
	case r.ByQuality[quality] > 0:
		q.Credits = r.ByQuality[quality]
	case r.Flat > 0:
		q.Credits = r.Flat
	default:
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrUnknownQuality, provider, quality)
	}
	return q, nil
}

// Providers lists the priced providers.
func (t *Table) Providers() []Provider {
	out := make([]Provider, 0, len(t.rates))
	for p := range t.rates {
		out = append(out, p)
	}
	return out
}

// Pools lists the pools debited by any rate, without duplicates.
func (t *Table) Pools() []plan.Pool {
	seen := make(map[plan.Pool]bool, len(t.rates))
	out := make([]plan.Pool, 0, len(t.rates))
	for _, r := range t.rates {
		if !seen[r.Pool] {
			seen[r.Pool] = true
			out = append(out, r.Pool)
		}
	}
	return out
}
