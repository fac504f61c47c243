// Package validation implements the pre-mutation check pipeline of the diboas
// ledger. The pipeline never mutates ledger state; it only inspects the
// request and the existing history.
package validation

import (
	"github.com/shopspring/decimal"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
)

// historyReader is the read-only view of transaction history the pipeline
// needs for replay and double-submission checks.
type historyReader interface {
	HasID(id string) bool
	HasNonce(nonce string) bool
}

// Limits are the configured ceilings applied by the pipeline.
type Limits struct {
	// MaxAmount is the absolute magnitude ceiling for any amount field.
	MaxAmount decimal.Decimal
	// MaxTransaction is the single-transaction ceiling.
	MaxTransaction decimal.Decimal
}

// Pipeline runs the ordered request checks, short-circuiting on the first
// failure.
type Pipeline struct {
	limits  Limits
	history historyReader
	limiter *RateLimiter
}

// NewPipeline wires the pipeline with its history view and rate limiter.
func NewPipeline(limits Limits, history historyReader, limiter *RateLimiter) *Pipeline {
	return &Pipeline{limits: limits, history: history, limiter: limiter}
}

// Validate returns nil when the request may proceed to the ledger, or a
// structured *Error describing the first failed check.
func (p *Pipeline) Validate(req *domain.TransactionRequest) *Error {
	if verr := p.checkAmount(req); verr != nil {
		return verr
	}
	if verr := p.checkInjection(req); verr != nil {
		return verr
	}
	if req.Amount.GreaterThan(p.limits.MaxTransaction) {
		return reject(CodeLimitExceeded, "amount %s exceeds the per-transaction limit %s",
			req.Amount, p.limits.MaxTransaction)
	}
	if req.Nonce != "" && p.history.HasNonce(req.Nonce) {
		return rejectSecurity(CodeReplay, "nonce %q was already processed", req.Nonce)
	}
	if req.ID != "" && p.history.HasID(req.ID) {
		return rejectSecurity(CodeDuplicate, "transaction %q was already processed", req.ID)
	}
	if verr := p.checkAddress(req); verr != nil {
		return verr
	}
	return nil
}

// ReserveRate claims a rate-limit slot for the request's identity. It is the
// last check of the pipeline and runs at the serialization point, not in
// Validate: checking the cap before the lock would let concurrent submissions
// race past it. A failed operation must give the slot back via ReleaseRate.
func (p *Pipeline) ReserveRate(req *domain.TransactionRequest) *Error {
	ok, retryAfter := p.limiter.Reserve(identityOf(req))
	if ok {
		return nil
	}
	return &Error{
		Code:       CodeRateLimited,
		Reason:     "too many transactions",
		Security:   true,
		RetryAfter: retryAfter,
	}
}

// ReleaseRate returns the slot claimed by ReserveRate.
func (p *Pipeline) ReleaseRate(req *domain.TransactionRequest) {
	p.limiter.Release(identityOf(req))
}

func (p *Pipeline) checkAmount(req *domain.TransactionRequest) *Error {
	if !req.Type.IsValid() {
		return reject(CodeBadRequest, "unsupported transaction type %q", req.Type)
	}
	if !req.Amount.IsPositive() {
		return reject(CodeInvalidAmount, "amount must be positive, got %s", req.Amount)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return reject(CodeInvalidAmount, "amount %s has more than 2 decimal places", req.Amount)
	}
	if req.Amount.GreaterThan(p.limits.MaxAmount) {
		return reject(CodeInvalidAmount, "amount %s exceeds the maximum %s", req.Amount, p.limits.MaxAmount)
	}
	if req.FeeTotal.IsNegative() {
		return reject(CodeInvalidAmount, "fee must not be negative, got %s", req.FeeTotal)
	}
	if req.FeeTotal.GreaterThan(req.Amount) {
		return reject(CodeInvalidAmount, "fee %s exceeds amount %s", req.FeeTotal, req.Amount)
	}
	return nil
}

func (p *Pipeline) checkInjection(req *domain.TransactionRequest) *Error {
	for _, field := range []string{
		req.ID, req.Nonce, req.Asset, req.PaymentMethod,
		req.StrategyID, req.StrategyName, req.Recipient, req.Identity,
	} {
		if containsInjection(field) {
			return rejectSecurity(CodeInjection, "request contains a forbidden pattern")
		}
	}
	return nil
}

func (p *Pipeline) checkAddress(req *domain.TransactionRequest) *Error {
	if req.Type != domain.TransactionSend && req.Type != domain.TransactionWithdraw {
		return nil
	}
	if req.Recipient == "" || isInternalRecipient(req.Recipient) {
		return nil
	}
	if !validAddress(req.Recipient) {
		return reject(CodeBadAddress, "destination %q does not match any supported chain format", req.Recipient)
	}
	return nil
}

func identityOf(req *domain.TransactionRequest) string {
	if req.Identity != "" {
		return req.Identity
	}
	return "default"
}
