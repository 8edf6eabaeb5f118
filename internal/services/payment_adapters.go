package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/pkg/validator"
)

// PaymentAdapter settles an amount through one payment channel
type PaymentAdapter interface {
	Name() string
	Method() models.PaymentMethodType
	// Validate checks the opaque details; errors wrap models.ErrValidation
	Validate(details string) error
	// Charge takes the money and returns the channel's reference
	Charge(ctx context.Context, amount float64, details string) (string, error)
}

// PointsRedeemer is implemented by adapters paid with loyalty points
type PointsRedeemer interface {
	PointsRequired(amount float64) int
}

// Voider is implemented by adapters that can undo a charge
type Voider interface {
	Void(ctx context.Context, reference string) error
}

// ============================================================================
// GATEWAY
// ============================================================================

// GatewayCharge is a charge request sent to an external gateway
type GatewayCharge struct {
	Method   models.PaymentMethodType
	Amount   float64
	Currency string
	Account  string // Masked card or account for the gateway's records
}

// Gateway is the external collaborator that moves money for card and bank payments
type Gateway interface {
	Charge(ctx context.Context, charge GatewayCharge) (reference string, err error)
	Void(ctx context.Context, reference string) error
}

// SimulatedGateway approves charges after an optional delay. Amounts above
// declineAbove are declined when it is positive.
type SimulatedGateway struct {
	delay        time.Duration
	declineAbove float64
	logger       *logrus.Logger
}

// NewSimulatedGateway creates a new simulated gateway
func NewSimulatedGateway(delay time.Duration, declineAbove float64, logger *logrus.Logger) *SimulatedGateway {
	return &SimulatedGateway{delay: delay, declineAbove: declineAbove, logger: logger}
}

// Charge approves or declines a charge
func (g *SimulatedGateway) Charge(ctx context.Context, charge GatewayCharge) (string, error) {
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if g.declineAbove > 0 && charge.Amount > g.declineAbove {
		return "", fmt.Errorf("%w: amount %.2f exceeds limit", models.ErrChargeDeclined, charge.Amount)
	}

	reference := "sim_" + uuid.NewString()
	g.logger.WithFields(logrus.Fields{
		"method":    charge.Method,
		"amount":    charge.Amount,
		"currency":  charge.Currency,
		"account":   charge.Account,
		"reference": reference,
	}).Info("Simulated gateway charge approved")

	return reference, nil
}

// Void logs the reversal
func (g *SimulatedGateway) Void(ctx context.Context, reference string) error {
	g.logger.WithField("reference", reference).Info("Simulated gateway charge voided")
	return nil
}

// ============================================================================
// ADAPTERS
// ============================================================================

// CardAdapter charges a card through the gateway
type CardAdapter struct {
	gateway   Gateway
	validator *validator.PaymentDetailsValidator
	currency  string
}

// NewCardAdapter creates a new card adapter
func NewCardAdapter(gateway Gateway, v *validator.PaymentDetailsValidator, currency string) *CardAdapter {
	return &CardAdapter{gateway: gateway, validator: v, currency: currency}
}

// Name returns the adapter name
func (a *CardAdapter) Name() string { return "card" }

// Method returns CARD
func (a *CardAdapter) Method() models.PaymentMethodType { return models.PaymentMethodCard }

// Validate checks number, expiry and security code
func (a *CardAdapter) Validate(details string) error {
	if _, err := a.validator.ValidateCard(details); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	return nil
}

// Charge sends the charge to the gateway
func (a *CardAdapter) Charge(ctx context.Context, amount float64, details string) (string, error) {
	card, err := a.validator.ValidateCard(details)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	return a.gateway.Charge(ctx, GatewayCharge{
		Method:   models.PaymentMethodCard,
		Amount:   amount,
		Currency: a.currency,
		Account:  "**** " + card.Last4(),
	})
}

// Void reverses a card charge
func (a *CardAdapter) Void(ctx context.Context, reference string) error {
	return a.gateway.Void(ctx, reference)
}

// BankTransferAdapter debits a bank account through the gateway
type BankTransferAdapter struct {
	gateway   Gateway
	validator *validator.PaymentDetailsValidator
	currency  string
}

// NewBankTransferAdapter creates a new bank transfer adapter
func NewBankTransferAdapter(gateway Gateway, v *validator.PaymentDetailsValidator, currency string) *BankTransferAdapter {
	return &BankTransferAdapter{gateway: gateway, validator: v, currency: currency}
}

// Name returns the adapter name
func (a *BankTransferAdapter) Name() string { return "bank_transfer" }

// Method returns BANK_TRANSFER
func (a *BankTransferAdapter) Method() models.PaymentMethodType {
	return models.PaymentMethodBankTransfer
}

// Validate checks bank code and account number
func (a *BankTransferAdapter) Validate(details string) error {
	if _, err := a.validator.ValidateBankAccount(details); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	return nil
}

// Charge sends the transfer to the gateway
func (a *BankTransferAdapter) Charge(ctx context.Context, amount float64, details string) (string, error) {
	account, err := a.validator.ValidateBankAccount(details)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	return a.gateway.Charge(ctx, GatewayCharge{
		Method:   models.PaymentMethodBankTransfer,
		Amount:   amount,
		Currency: a.currency,
		Account:  account.BankCode + "-****" + account.AccountNumber[len(account.AccountNumber)-4:],
	})
}

// Void reverses a transfer
func (a *BankTransferAdapter) Void(ctx context.Context, reference string) error {
	return a.gateway.Void(ctx, reference)
}

// WalletAdapter pays with loyalty points. The points themselves are
// debited by PaymentService in the payment transaction.
type WalletAdapter struct{}

// NewWalletAdapter creates a new wallet adapter
func NewWalletAdapter() *WalletAdapter {
	return &WalletAdapter{}
}

// Name returns the adapter name
func (a *WalletAdapter) Name() string { return "wallet" }

// Method returns WALLET
func (a *WalletAdapter) Method() models.PaymentMethodType { return models.PaymentMethodWallet }

// Validate accepts any details; the wallet is the paying user's ledger
func (a *WalletAdapter) Validate(details string) error { return nil }

// Charge issues a ledger reference
func (a *WalletAdapter) Charge(ctx context.Context, amount float64, details string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "wallet_" + uuid.NewString(), nil
}

// PointsRequired is ceil(amount)
func (a *WalletAdapter) PointsRequired(amount float64) int {
	return PointsRequired(amount)
}

// NewPaymentAdapters builds the standard adapter set keyed by method
func NewPaymentAdapters(gateway Gateway, v *validator.PaymentDetailsValidator, currency string) map[models.PaymentMethodType]PaymentAdapter {
	adapters := []PaymentAdapter{
		NewCardAdapter(gateway, v, currency),
		NewBankTransferAdapter(gateway, v, currency),
		NewWalletAdapter(),
	}
	out := make(map[models.PaymentMethodType]PaymentAdapter, len(adapters))
	for _, a := range adapters {
		out[a.Method()] = a
	}
	return out
}
