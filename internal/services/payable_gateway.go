package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/config"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PAYableEnvironmentURLs maps environment names to their IPG endpoint URLs
var PAYableEnvironmentURLs = map[string]string{
	"dev":        "https://payable-ipg-dev.web.app/ipg/dev",
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// PAYableGateway settles card and bank charges through the PAYable IPG
// server-to-server API
type PAYableGateway struct {
	merchantKey   string
	merchantToken string
	baseURL       string
	client        *http.Client
	logger        *logrus.Logger
}

type payableChargeRequest struct {
	MerchantKey   string `json:"merchantKey"`
	InvoiceID     string `json:"invoiceId"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currencyCode"`
	PaymentMethod string `json:"paymentMethod"`
	Account       string `json:"account"`
	CheckValue    string `json:"checkValue"`
}

type payableVoidRequest struct {
	MerchantKey string `json:"merchantKey"`
	UID         string `json:"uid"`
	CheckValue  string `json:"checkValue"`
}

type payableResponse struct {
	Status  string `json:"status"` // SUCCESS, DECLINED or ERROR
	UID     string `json:"uid"`
	Message string `json:"message,omitempty"`
}

// NewPAYableGateway creates a gateway from payment config. The HTTP client
// has no timeout of its own; the payment service bounds every call.
func NewPAYableGateway(cfg config.PaymentConfig, logger *logrus.Logger) *PAYableGateway {
	baseURL := cfg.GatewayURL
	if baseURL == "" {
		var ok bool
		baseURL, ok = PAYableEnvironmentURLs[cfg.Environment]
		if !ok {
			baseURL = PAYableEnvironmentURLs["sandbox"]
		}
	}

	return &PAYableGateway{
		merchantKey:   cfg.MerchantKey,
		merchantToken: cfg.MerchantToken,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		logger:        logger,
	}
}

// CheckValue signs the given fields.
// Step 1: hash1 = SHA512(merchantToken) uppercase hex
// Step 2: SHA512("merchantKey|field...|hash1") uppercase hex
func (g *PAYableGateway) CheckValue(fields ...string) string {
	hash1 := sha512.Sum512([]byte(g.merchantToken))
	parts := append([]string{g.merchantKey}, fields...)
	parts = append(parts, strings.ToUpper(hex.EncodeToString(hash1[:])))

	hash2 := sha512.Sum512([]byte(strings.Join(parts, "|")))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// Charge requests a capture and returns PAYable's transaction UID
func (g *PAYableGateway) Charge(ctx context.Context, charge GatewayCharge) (string, error) {
	invoiceID := uuid.NewString()
	amount := strconv.FormatFloat(charge.Amount, 'f', 2, 64)

	req := payableChargeRequest{
		MerchantKey:   g.merchantKey,
		InvoiceID:     invoiceID,
		Amount:        amount,
		CurrencyCode:  charge.Currency,
		PaymentMethod: string(charge.Method),
		Account:       charge.Account,
		CheckValue:    g.CheckValue(invoiceID, amount, charge.Currency),
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"amount":     amount,
		"currency":   charge.Currency,
		"method":     charge.Method,
	}).Info("Initiating PAYable charge")

	resp, err := g.post(ctx, "/charge", req)
	if err != nil {
		return "", err
	}

	switch strings.ToUpper(resp.Status) {
	case "SUCCESS":
		g.logger.WithFields(logrus.Fields{
			"invoice_id": invoiceID,
			"uid":        resp.UID,
		}).Info("PAYable charge approved")
		return resp.UID, nil
	case "DECLINED":
		return "", fmt.Errorf("%w: %s", models.ErrChargeDeclined, resp.Message)
	default:
		return "", fmt.Errorf("payment gateway error: status=%s message=%s", resp.Status, resp.Message)
	}
}

// Void reverses a captured charge
func (g *PAYableGateway) Void(ctx context.Context, reference string) error {
	resp, err := g.post(ctx, "/void", payableVoidRequest{
		MerchantKey: g.merchantKey,
		UID:         reference,
		CheckValue:  g.CheckValue(reference),
	})
	if err != nil {
		return err
	}
	if strings.ToUpper(resp.Status) != "SUCCESS" {
		return fmt.Errorf("payment gateway refused void of %s: %s", reference, resp.Message)
	}

	g.logger.WithField("uid", reference).Info("PAYable charge voided")
	return nil
}

func (g *PAYableGateway) post(ctx context.Context, path string, payload interface{}) (*payableResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ctx.Err()
		}
		g.logger.WithError(err).Error("Failed to call PAYable endpoint")
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("PAYable response received")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed payableResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &parsed, nil
}

var _ Gateway = (*PAYableGateway)(nil)
