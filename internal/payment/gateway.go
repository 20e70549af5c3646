package payment

import (
	"context"
	"net/http"
	"sort"
)

// Gateway is a payment provider integration.
type Gateway interface {
	Provider() Provider
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// VerifyWebhook authenticates a raw webhook delivery.
	VerifyWebhook(ctx context.Context, header http.Header, body []byte) error
	ParseEvent(body []byte) (*Event, error)
}

// Registry resolves gateways by provider.
type Registry struct {
	gateways map[Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Provider]Gateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			r.gateways[g.Provider()] = g
		}
	}
	return r
}

func (r *Registry) Get(p Provider) (Gateway, error) {
	if _, err := ParseProvider(string(p)); err != nil {
		return nil, err
	}
	g, ok := r.gateways[p]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return g, nil
}

func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
