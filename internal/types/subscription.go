package types

import (
	"fmt"

	"github.com/samber/lo"
)

// SubscriptionStatus represents the status of a teacher subscription account
type SubscriptionStatus string

const (
	SubscriptionStatusNotCreated  SubscriptionStatus = "NOT_CREATED"
	SubscriptionStatusActive      SubscriptionStatus = "ACTIVE"
	SubscriptionStatusGracePeriod SubscriptionStatus = "GRACE_PERIOD"
	SubscriptionStatusSuspended   SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusExpired     SubscriptionStatus = "EXPIRED"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusNotCreated,
		SubscriptionStatusActive,
		SubscriptionStatusGracePeriod,
		SubscriptionStatusSuspended,
		SubscriptionStatusExpired,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid subscription status: %s", s)
	}
	return nil
}

// SubscriptionPaymentStatus represents the status of one billing cycle's payment
type SubscriptionPaymentStatus string

const (
	SubscriptionPaymentStatusDue  SubscriptionPaymentStatus = "DUE"
	SubscriptionPaymentStatusPaid SubscriptionPaymentStatus = "PAID"
)

func (s SubscriptionPaymentStatus) String() string {
	return string(s)
}

func (s SubscriptionPaymentStatus) Validate() error {
	allowed := []SubscriptionPaymentStatus{
		SubscriptionPaymentStatusDue,
		SubscriptionPaymentStatusPaid,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid subscription payment status: %s", s)
	}
	return nil
}

// LockReasonSubscriptionOverdue is the only lock reason the state machine sets.
const LockReasonSubscriptionOverdue = "subscription overdue"
