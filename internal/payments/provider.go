package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// PaymentRequest captures the payload required to initiate a gateway payment.
type PaymentRequest struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	BankCode  string
	ClientIP  string
	Locale    string
}

// PaymentSession represents the initiated payment the buyer is redirected to.
type PaymentSession struct {
	Provider    string
	Reference   string
	RedirectURL string
	Amount      int64
	ExpiresAt   time.Time
}

// VerifiedReturn is the outcome of validating a gateway redirect or IPN callback.
type VerifiedReturn struct {
	Provider      string
	OrderID       string
	TransactionNo string
	BankCode      string
	ResponseCode  string
	Amount        int64
	Valid         bool
	Succeeded     bool
	PaidAt        time.Time
}

// QueryRequest asks the gateway for the state of a past transaction.
type QueryRequest struct {
	OrderID         string
	TransactionDate string
	ClientIP        string
}

// RefundRequest defines a gateway refund attempt.
type RefundRequest struct {
	OrderID         string
	TransactionNo   string
	TransactionDate string
	TransactionType string
	Amount          int64
	CreatedBy       string
	ClientIP        string
}

// TransactionDetails normalises gateway specific fields for storage.
type TransactionDetails struct {
	Provider      string
	OrderID       string
	TransactionNo string
	Status        Status
	Amount        int64
	ResponseCode  string
	Raw           map[string]any
}

// Provider defines the contract for payment gateway adapters to implement.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error)
	VerifyReturn(params url.Values) (VerifiedReturn, error)
	QueryTransaction(ctx context.Context, req QueryRequest) (TransactionDetails, error)
	Refund(ctx context.Context, req RefundRequest) (TransactionDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no preference is given.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["vnpay"]; ok {
		m.defaultProvider = "vnpay"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreatePayment delegates to the resolved provider.
func (m *Manager) CreatePayment(ctx context.Context, paymentCtx PaymentContext, req PaymentRequest) (PaymentSession, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentSession{}, err
	}
	session, err := provider.CreatePayment(ctx, req)
	if err != nil {
		return PaymentSession{}, err
	}
	session.Provider = key
	return session, nil
}

// VerifyReturn delegates to the resolved provider.
func (m *Manager) VerifyReturn(paymentCtx PaymentContext, params url.Values) (VerifiedReturn, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return VerifiedReturn{}, err
	}
	verified, err := provider.VerifyReturn(params)
	if err != nil {
		return VerifiedReturn{}, err
	}
	verified.Provider = key
	return verified, nil
}

// QueryTransaction delegates to the resolved provider.
func (m *Manager) QueryTransaction(ctx context.Context, paymentCtx PaymentContext, req QueryRequest) (TransactionDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return TransactionDetails{}, err
	}
	details, err := provider.QueryTransaction(ctx, req)
	if err != nil {
		return TransactionDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (TransactionDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return TransactionDetails{}, err
	}
	details, err := provider.Refund(ctx, req)
	if err != nil {
		return TransactionDetails{}, err
	}
	details.Provider = key
	return details, nil
}
