package llm

import (
	"context"

	"github.com/munin-ai/munin/pkg/models"
)

// UsageObserver sees every buffered completion round trip: the provider
// and model names, the token usage of the response (zero on failure),
// and the transport error, if any.
type UsageObserver func(provider, model string, usage models.Usage, err error)

// Instrument wraps a provider so that observe fires after every
// Complete call. Stream and the rest of the interface pass through.
func Instrument(p Provider, observe UsageObserver) Provider {
	if observe == nil {
		return p
	}
	return &instrumented{Provider: p, observe: observe}
}

type instrumented struct {
	Provider
	observe UsageObserver
}

func (i *instrumented) Complete(ctx context.Context, req *Request) (*models.Response, error) {
	resp, err := i.Provider.Complete(ctx, req)
	var usage models.Usage
	if resp != nil {
		usage = resp.Usage
	}
	i.observe(i.Provider.Name(), i.Provider.Model(), usage, err)
	return resp, err
}
