package settlement

import (
	"context"

	"github.com/shopspring/decimal"
)

// IntentRequest describes one online payment hand-off to the settlement
// provider. The reference is the idempotent settlement reference the webhook
// later confirms against.
type IntentRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Description   string
	PayerID       string
	ObligationIDs []string
}

// Intent is the provider-side handle for an initiated payment.
type Intent struct {
	Reference   string
	RedirectURL string
}

// Provider is the opaque online settlement provider. The billing core never
// blocks on it inside a ledger transition; confirmation arrives later through
// the webhook surface.
type Provider interface {
	// CreateIntent registers the payment with the provider and returns the
	// redirect URL the student completes the payment at.
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}
