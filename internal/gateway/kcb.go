package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"settlement-service/config"
	"settlement-service/internal/apperr"
	"settlement-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// KCBClient wraps the KCB Buni payments API.
type KCBClient struct {
	cfg        config.KCBConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewKCBClient creates a new KCB gateway client
func NewKCBClient(cfg config.KCBConfig) *KCBClient {
	return &KCBClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     util.GetLogger(),
	}
}

type kcbTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *KCBClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.token, nil
	}

	url := c.cfg.BaseURL + "/token?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Gateway(err, "kcb token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Gateway(fmt.Errorf("status %d", resp.StatusCode), "kcb token request rejected")
	}

	var tokenResp kcbTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", apperr.Gateway(err, "kcb token response malformed")
	}

	expiry := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiry <= 0 {
		expiry = 50 * time.Minute
	}
	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(expiry)
	return c.token, nil
}

// InitiateRequest starts a KCB mobile payment.
type InitiateRequest struct {
	PhoneNumber   string
	Amount        decimal.Decimal
	InvoiceNumber string
}

// InitiateResponse acknowledges a payment initiation. TransactionReference
// is the external reference the callback is later matched on.
type InitiateResponse struct {
	TransactionReference string `json:"transactionReference"`
	Status               string `json:"status"`
	Message              string `json:"message"`
}

// InitiatePayment requests a debit of the customer's mobile wallet.
func (c *KCBClient) InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"phoneNumber":   req.PhoneNumber,
		"amount":        req.Amount.StringFixed(2),
		"invoiceNumber": req.InvoiceNumber,
		"tillNumber":    c.cfg.TillNumber,
		"callbackUrl":   c.cfg.CallbackURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + "/mm/v1/payments/initiate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Gateway(err, "kcb initiate request failed")
	}
	defer resp.Body.Close()

	var initResp InitiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return nil, apperr.Gateway(err, "kcb initiate response malformed")
	}

	if resp.StatusCode != http.StatusOK || initResp.TransactionReference == "" {
		c.logger.Error("KCB payment initiation rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", initResp.Message))
		return nil, apperr.Gateway(fmt.Errorf("status %d", resp.StatusCode), "kcb initiation rejected")
	}

	return &initResp, nil
}

// KCBCallback is the webhook payload KCB posts with the payment outcome.
type KCBCallback struct {
	TransactionReference string `json:"transactionReference"`
	TransactionID        string `json:"transactionId"`
	Status               string `json:"status"`
	ResultDescription    string `json:"resultDescription"`
	Amount               string `json:"amount"`
}

// Succeeded reports whether the payment went through.
func (cb *KCBCallback) Succeeded() bool {
	return strings.EqualFold(cb.Status, "SUCCESS")
}
