package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/idempotency"
	"github.com/tutorbill/tutorbill/internal/settlement"
	"github.com/tutorbill/tutorbill/internal/types"
)

// PaymentIntentService guards online payment initiation: a student can have
// at most one unsettled online attempt per batch at a time, so opening the
// payment flow twice cannot double-charge.
type PaymentIntentService interface {
	InitiateOnlinePayment(ctx context.Context, req dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error)

	// HandleSettlementWebhook applies the provider's confirmation callback.
	// Idempotent under replayed deliveries.
	HandleSettlementWebhook(ctx context.Context, req dto.SettlementWebhookRequest) (*dto.SettlementWebhookResponse, error)
}

type paymentIntentService struct {
	ServiceParams
	dues     DueAggregatorService
	ledger   LedgerService
	idempGen *idempotency.Generator
}

// NewPaymentIntentService creates a new payment intent service
func NewPaymentIntentService(params ServiceParams) PaymentIntentService {
	return &paymentIntentService{
		ServiceParams: params,
		dues:          NewDueAggregatorService(params),
		ledger:        NewLedgerService(params),
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *paymentIntentService) InitiateOnlinePayment(ctx context.Context, req dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	// Intent guard: reject while an earlier attempt is still in flight. The
	// storage layer's conditional transitions close the window between this
	// check and the moves below: a Pending row under a different settlement
	// reference makes the transition lose.
	pending, err := s.ObligationRepo.CountPending(ctx, req.StudentID, req.BatchID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ierr.NewError("payment already in flight").
			WithHint("An online payment for this batch is already awaiting settlement").
			WithReportableDetails(map[string]any{
				"student_id": req.StudentID,
				"batch_id":   req.BatchID,
			}).
			Mark(ierr.ErrPaymentAlreadyPending)
	}

	var set []*obligation.Obligation
	if req.Amount != nil {
		set, err = s.dues.ResolveBulkSet(ctx, req.StudentID, req.BatchID, *req.Amount)
	} else {
		set, err = s.dues.ResolveOldest(ctx, req.StudentID, req.BatchID, req.Months)
	}
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, o := range set {
		total = total.Add(o.Amount)
	}

	ref := s.idempGen.GenerateKey(idempotency.ScopeObligationPayment, map[string]interface{}{
		"student_id": req.StudentID,
		"batch_id":   req.BatchID,
		"first":      set[0].ID,
		"months":     len(set),
	})

	// Move the whole set to Pending before touching the provider. If any
	// transition loses a race, roll the rest back and report the conflict.
	moved := make([]*obligation.Obligation, 0, len(set))
	for _, o := range set {
		won, err := s.ObligationRepo.UpdateStatusIf(ctx, o.ID, o.ObligationStatus, obligation.StatusUpdate{
			ToStatus:      types.ObligationStatusPending,
			PaymentMode:   lo.ToPtr(types.PaymentModeOnline),
			SettlementRef: &ref,
		})
		if err == nil && !won {
			err = ierr.NewError("obligation changed concurrently").
				WithHint("An online payment for this batch is already awaiting settlement").
				Mark(ierr.ErrPaymentAlreadyPending)
		}
		if err != nil {
			for _, m := range moved {
				_ = s.ledger.ReleaseOnline(ctx, m.ID, ref)
			}
			return nil, err
		}
		moved = append(moved, o)
	}

	intent, err := s.Settlement.CreateIntent(ctx, settlement.IntentRequest{
		Reference:   ref,
		Amount:      total,
		Description: fmt.Sprintf("Batch fees, %d month(s)", len(set)),
		PayerID:     req.StudentID,
		ObligationIDs: lo.Map(set, func(o *obligation.Obligation, _ int) string {
			return o.ID
		}),
	})
	if err != nil {
		// Provider refused; release the set so the student can retry.
		for _, m := range moved {
			_ = s.ledger.ReleaseOnline(ctx, m.ID, ref)
		}
		return nil, err
	}

	s.Logger.Infow("initiated online payment",
		"student_id", req.StudentID,
		"batch_id", req.BatchID,
		"months", len(set),
		"amount", total,
		"settlement_ref", ref)

	return &dto.InitiatePaymentResponse{
		SettlementRef: ref,
		RedirectURL:   intent.RedirectURL,
		Amount:        total,
		ObligationIDs: lo.Map(set, func(o *obligation.Obligation, _ int) string {
			return o.ID
		}),
	}, nil
}

func (s *paymentIntentService) HandleSettlementWebhook(ctx context.Context, req dto.SettlementWebhookRequest) (*dto.SettlementWebhookResponse, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	resp := &dto.SettlementWebhookResponse{}

	if req.Event != "settled" {
		for _, id := range req.ObligationIDs {
			if err := s.ledger.ReleaseOnline(ctx, id, req.SettlementRef); err != nil {
				return nil, err
			}
			resp.Released = append(resp.Released, id)
		}
		s.Logger.Infow("released obligations after failed settlement",
			"settlement_ref", req.SettlementRef,
			"count", len(resp.Released))
		return resp, nil
	}

	// Settle the whole set atomically: a delivery that dies halfway must not
	// leave a bulk payment half applied.
	months := len(req.ObligationIDs)
	err := s.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range req.ObligationIDs {
			_, replayed, err := s.ledger.SettleOnline(ctx, id, req.SettlementRef, months)
			if err != nil {
				return err
			}
			if replayed {
				resp.Replayed = append(resp.Replayed, id)
			} else {
				resp.Settled = append(resp.Settled, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}
