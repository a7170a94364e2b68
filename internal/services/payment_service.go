package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/baharkarakas/mpesa-backend/internal/metrics"
	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
)

const ackAccepted = "0"

// Provider initiates payments with the mobile-money operator.
type Provider interface {
	InitiatePayment(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

type PaymentService struct {
	provider Provider
	users    repo.Users
	trx      repo.Transactions
}

func NewPaymentService(p Provider, u repo.Users, t repo.Transactions) *PaymentService {
	return &PaymentService{provider: p, users: u, trx: t}
}

type DepositRequest struct {
	UserID           string          `json:"user_id"`
	PhoneNumber      string          `json:"phone_number"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"account_reference"`
}

type DepositResult struct {
	Transaction models.Transaction     `json:"transaction"`
	Provider    *mpesa.STKPushResponse `json:"provider"`
}

// InitiateDeposit sends an STK push and records the pending deposit under
// the checkout request id the provider assigned. The balance is untouched
// until the matching callback settles the transaction.
func (s *PaymentService) InitiateDeposit(ctx context.Context, req DepositRequest) (res DepositResult, err error) {
	ctx, span := otel.Tracer(tracerName).
		Start(ctx, "payment.initiate_deposit")
	span.SetAttributes(attribute.String("user.id", req.UserID), attribute.String("amount", req.Amount.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "initiate deposit failed")
		} else {
			span.SetAttributes(attribute.String("mpesa.checkout_request_id", res.Transaction.CheckoutRequestID))
		}
		span.End()
	}()

	if strings.TrimSpace(req.UserID) == "" {
		return DepositResult{}, fmt.Errorf("%w: user id required", mpesa.ErrInvalidRequest)
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return DepositResult{}, err
	}

	ack, err := s.provider.InitiatePayment(ctx, mpesa.STKPushRequest{
		PhoneNumber:      req.PhoneNumber,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
	})
	if err != nil {
		metrics.STKPushTotal.WithLabelValues(stkResult(err)).Inc()
		return DepositResult{}, err
	}
	if ack.ResponseCode != ackAccepted || ack.CheckoutRequestID == "" {
		metrics.STKPushTotal.WithLabelValues("rejected").Inc()
		return DepositResult{}, &mpesa.UpstreamRequestError{
			StatusCode:      200,
			ProviderCode:    ack.ResponseCode,
			ProviderMessage: ack.ResponseDescription,
		}
	}
	metrics.STKPushTotal.WithLabelValues("accepted").Inc()

	phone, _ := mpesa.NormalizeMSISDN(req.PhoneNumber)
	txn, err := s.trx.Create(ctx, models.Transaction{
		UserID:            req.UserID,
		Type:              models.TxnDeposit,
		Amount:            req.Amount,
		Status:            models.TxnPending,
		PhoneNumber:       phone,
		AccountReference:  req.AccountReference,
		CheckoutRequestID: ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
	})
	if err != nil {
		// The customer already has a prompt on their phone; its callback will
		// find nothing to settle.
		slog.ErrorContext(ctx, "pending deposit not recorded after provider accepted",
			"user_id", req.UserID, "checkout_request_id", ack.CheckoutRequestID, "err", err)
		return DepositResult{}, fmt.Errorf("record deposit %s: %w", ack.CheckoutRequestID, err)
	}
	slog.InfoContext(ctx, "deposit initiated",
		"txn_id", txn.ID, "user_id", txn.UserID, "amount", txn.Amount.String(),
		"checkout_request_id", txn.CheckoutRequestID)
	return DepositResult{Transaction: txn, Provider: ack}, nil
}

func stkResult(err error) string {
	switch {
	case errors.Is(err, mpesa.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, mpesa.ErrUpstreamAuth):
		return "auth_error"
	default:
		return "upstream_error"
	}
}
