package settlement

import (
	"context"
	"fmt"
	"sync"
)

// StubProvider is an in-memory settlement provider for tests and local runs.
// It records every intent and hands back a deterministic redirect URL.
type StubProvider struct {
	mu      sync.Mutex
	intents []IntentRequest

	// FailNext makes the next CreateIntent call fail, to exercise error paths.
	FailNext error
}

func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

func (p *StubProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailNext != nil {
		err := p.FailNext
		p.FailNext = nil
		return nil, err
	}

	p.intents = append(p.intents, req)
	return &Intent{
		Reference:   req.Reference,
		RedirectURL: fmt.Sprintf("https://settlement.test/pay/%s", req.Reference),
	}, nil
}

// Intents returns a copy of every recorded intent, in creation order.
func (p *StubProvider) Intents() []IntentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]IntentRequest, len(p.intents))
	copy(out, p.intents)
	return out
}
