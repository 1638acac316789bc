package settlement

import (
	"context"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/tutorbill/tutorbill/internal/config"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
)

// midtransProvider settles payments through the Midtrans Snap API.
type midtransProvider struct {
	client snap.Client
	log    *logger.Logger
}

// NewMidtransProvider creates a settlement provider backed by Midtrans Snap.
func NewMidtransProvider(cfg config.SettlementConfig, log *logger.Logger) Provider {
	env := midtrans.Sandbox
	if cfg.Environment == "production" {
		env = midtrans.Production
	}

	var client snap.Client
	client.New(cfg.ServerKey, env)

	return &midtransProvider{
		client: client,
		log:    log,
	}
}

func (p *midtransProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.Reference == "" {
		return nil, ierr.NewError("missing settlement reference").
			WithHint("Settlement reference is required").
			Mark(ierr.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, ierr.NewError("invalid settlement amount").
			WithHint("Settlement amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: req.Amount.IntPart(),
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.Reference,
				Price: req.Amount.IntPart(),
				Qty:   1,
				Name:  req.Description,
			},
		},
	}

	resp, err := p.client.CreateTransaction(snapReq)
	if err != nil {
		p.log.Errorw("failed to create settlement transaction",
			"reference", req.Reference,
			"error", err)
		return nil, ierr.WithError(err).
			WithHint("Could not reach the payment provider").
			Mark(ierr.ErrSystem)
	}

	return &Intent{
		Reference:   req.Reference,
		RedirectURL: resp.RedirectURL,
	}, nil
}
