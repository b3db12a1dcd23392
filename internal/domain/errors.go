package domain

import (
	"errors"
	"fmt"
)

// Classification sentinels. Structured errors below wrap one of these so
// callers can branch with errors.Is regardless of the concrete type.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNetwork           = errors.New("network failure")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWallet            = errors.New("wallet failure")
	ErrTimeout           = errors.New("confirmation timed out")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrRemoteJob         = errors.New("generation job failed")
)

// InsufficientFundsError reports a spend blocked by the freshly fetched
// balance, carrying the shortfall so the UI can route to top-up.
type InsufficientFundsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d coins, have %d (short %d)",
		e.Required, e.Balance, e.Shortfall())
}

func (e *InsufficientFundsError) Shortfall() int64 { return e.Required - e.Balance }

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// TimeoutError reports a payment confirmation that exceeded its wait
// budget. TxHash lets the user retry the claim step later by hand.
type TimeoutError struct {
	TxHash string
	Wait   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed within %s", e.TxHash, e.Wait)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// PaymentFailedError reports a transaction that was mined but reverted.
// The same hash must not be retried.
type PaymentFailedError struct {
	TxHash string
	Status string
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed with status %s", e.TxHash, e.Status)
}

func (e *PaymentFailedError) Unwrap() error { return ErrPaymentFailed }

// RemoteJobError carries the remote-supplied failure text after friendly
// translation of known upstream phrases.
type RemoteJobError struct {
	JobID   string
	Message string
}

func (e *RemoteJobError) Error() string {
	if e.Message == "" {
		return "generation failed"
	}
	return e.Message
}

func (e *RemoteJobError) Unwrap() error { return ErrRemoteJob }
