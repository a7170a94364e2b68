package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/baharkarakas/mpesa-backend/internal/metrics"
	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
)

type Outcome string

const (
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped only occurs with the pending guard enabled.
	OutcomeSkipped Outcome = "skipped"
)

const tracerName = "github.com/baharkarakas/mpesa-backend/internal/services"

const (
	kindSTK = "stk"
	kindB2C = "b2c"
)

// EventSink receives settlements after they are committed.
type EventSink interface {
	Dispatch(ev models.SettlementEvent)
}

type ReconcileService struct {
	trx            repo.Transactions
	log            repo.AuditLogs
	events         EventSink
	requirePending bool
	now            func() time.Time
	tracer         trace.Tracer
}

type ReconcileOption func(*ReconcileService)

// WithRequirePending only settles transactions that are still pending, so a
// replayed callback cannot apply its balance effect twice.
func WithRequirePending(on bool) ReconcileOption {
	return func(s *ReconcileService) { s.requirePending = on }
}

func WithReconcileClock(now func() time.Time) ReconcileOption {
	return func(s *ReconcileService) { s.now = now }
}

func NewReconcileService(t repo.Transactions, l repo.AuditLogs, ev EventSink, opts ...ReconcileOption) *ReconcileService {
	s := &ReconcileService{
		trx:    t,
		log:    l,
		events: ev,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleSTKCallback reconciles a payment-in result. Success completes the
// transaction and credits the owner in one atomic settlement; failure only
// marks the transaction failed since no funds were captured.
func (s *ReconcileService) HandleSTKCallback(ctx context.Context, cb mpesa.STKCallback) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.stk_callback", trace.WithAttributes(
		attribute.String("mpesa.checkout_request_id", cb.CheckoutRequestID),
		attribute.Int("mpesa.result_code", cb.ResultCode),
	))
	defer span.End()

	txn, err := s.trx.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, repo.ErrNotFound) {
		return s.noMatch(ctx, kindSTK, cb.CheckoutRequestID, cb.ResultCode), nil
	}
	if err != nil {
		return s.fail(span, kindSTK, fmt.Errorf("find transaction by checkout request id %s: %w", cb.CheckoutRequestID, err))
	}

	st := models.Settlement{
		TransactionID:  txn.ID,
		ProviderResult: cb.Raw,
		At:             s.now().UTC(),
		OnlyIfPending:  s.requirePending,
	}
	if cb.Succeeded() {
		st.Status = models.TxnCompleted
		st.Credit = &models.BalanceCredit{UserID: txn.UserID, Amount: txn.Amount}
	} else {
		st.Status = models.TxnFailed
		st.FailureReason = cb.ResultDesc
	}
	return s.settle(ctx, span, kindSTK, txn, st, cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc)
}

// HandleB2CResult reconciles a payment-out result. The amount was debited
// when the payout was initiated, so success changes no balance and failure
// refunds it atomically with the status update.
func (s *ReconcileService) HandleB2CResult(ctx context.Context, res mpesa.B2CResult) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.b2c_result", trace.WithAttributes(
		attribute.String("mpesa.conversation_id", res.ConversationID),
		attribute.Int("mpesa.result_code", res.ResultCode),
	))
	defer span.End()

	txn, err := s.trx.FindByConversationID(ctx, res.ConversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return s.noMatch(ctx, kindB2C, res.ConversationID, res.ResultCode), nil
	}
	if err != nil {
		return s.fail(span, kindB2C, fmt.Errorf("find transaction by conversation id %s: %w", res.ConversationID, err))
	}

	st := models.Settlement{
		TransactionID:  txn.ID,
		ProviderResult: res.Raw,
		At:             s.now().UTC(),
		OnlyIfPending:  s.requirePending,
	}
	if res.Succeeded() {
		st.Status = models.TxnCompleted
	} else {
		st.Status = models.TxnFailed
		st.FailureReason = res.ResultDesc
		st.Credit = &models.BalanceCredit{UserID: txn.UserID, Amount: txn.Amount}
	}
	return s.settle(ctx, span, kindB2C, txn, st, res.ConversationID, res.ResultCode, res.ResultDesc)
}

func (s *ReconcileService) settle(ctx context.Context, span trace.Span, kind string, txn models.Transaction, st models.Settlement, correlationID string, code int, desc string) (Outcome, error) {
	applied, err := s.trx.Settle(ctx, st)
	if err != nil {
		return s.fail(span, kind, fmt.Errorf("settle transaction %s as %s: %w", txn.ID, st.Status, err))
	}
	if !applied {
		slog.WarnContext(ctx, "callback for settled transaction ignored",
			"kind", kind, "txn_id", txn.ID, "status", txn.Status, "correlation_id", correlationID)
		metrics.CallbacksTotal.WithLabelValues(kind, string(OutcomeSkipped)).Inc()
		s.audit(ctx, txn.ID, kind+"_skipped", correlationID, code, desc)
		span.SetAttributes(attribute.String("reconcile.outcome", string(OutcomeSkipped)))
		return OutcomeSkipped, nil
	}

	outcome := OutcomeFailed
	if st.Status == models.TxnCompleted {
		outcome = OutcomeCompleted
	}
	delta := decimal.Zero
	if st.Credit != nil {
		delta = st.Credit.Amount
		reason := "deposit"
		if kind == kindB2C {
			reason = "refund"
		}
		metrics.BalanceCreditsTotal.WithLabelValues(reason).Inc()
	}
	metrics.CallbacksTotal.WithLabelValues(kind, string(outcome)).Inc()
	span.SetAttributes(
		attribute.String("reconcile.outcome", string(outcome)),
		attribute.String("txn.id", txn.ID),
	)
	slog.InfoContext(ctx, "transaction settled",
		"kind", kind, "txn_id", txn.ID, "user_id", txn.UserID, "status", st.Status,
		"balance_delta", delta.String(), "correlation_id", correlationID)
	s.audit(ctx, txn.ID, kind+"_"+string(outcome), correlationID, code, desc)

	if s.events != nil {
		s.events.Dispatch(models.SettlementEvent{
			TransactionID: txn.ID,
			UserID:        txn.UserID,
			Type:          txn.Type,
			Status:        st.Status,
			Amount:        txn.Amount,
			BalanceDelta:  delta,
			CorrelationID: correlationID,
			ResultCode:    code,
			ResultDesc:    desc,
			SettledAt:     st.At,
		})
	}
	return outcome, nil
}

func (s *ReconcileService) noMatch(ctx context.Context, kind, correlationID string, code int) Outcome {
	slog.WarnContext(ctx, "callback matched no transaction", "kind", kind, "correlation_id", correlationID, "result_code", code)
	metrics.CallbacksTotal.WithLabelValues(kind, string(OutcomeNoMatch)).Inc()
	s.audit(ctx, "", kind+"_no_match", correlationID, code, "")
	return OutcomeNoMatch
}

func (s *ReconcileService) fail(span trace.Span, kind string, err error) (Outcome, error) {
	metrics.CallbacksTotal.WithLabelValues(kind, "error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "reconcile failed")
	return "", err
}

// audit is best effort and sits outside the settlement write.
func (s *ReconcileService) audit(ctx context.Context, txnID, action, correlationID string, code int, desc string) {
	if s.log == nil {
		return
	}
	var entityID *string
	if txnID != "" {
		entityID = &txnID
	}
	err := s.log.Create(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   entityID,
		Action:     action,
		Details: map[string]any{
			"correlation_id": correlationID,
			"result_code":    code,
			"result_desc":    desc,
		},
	})
	if err != nil {
		slog.WarnContext(ctx, "audit log write failed", "action", action, "err", err)
	}
}
