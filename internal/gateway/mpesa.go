package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"settlement-service/config"
	"settlement-service/internal/apperr"
	"settlement-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MpesaClient wraps the Daraja STK Push API. Credentials come in through
// the config struct at construction time; there is no package-level state.
type MpesaClient struct {
	cfg        config.MpesaConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewMpesaClient creates a new M-Pesa gateway client
func NewMpesaClient(cfg config.MpesaConfig) *MpesaClient {
	return &MpesaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     util.GetLogger(),
	}
}

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached OAuth token, fetching a fresh one when the
// cached token is within a minute of expiry.
func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.token, nil
	}

	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Gateway(err, "mpesa token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Gateway(fmt.Errorf("status %d", resp.StatusCode), "mpesa token request rejected")
	}

	var tokenResp mpesaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", apperr.Gateway(err, "mpesa token response malformed")
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(50 * time.Minute)
	return c.token, nil
}

// STKPushRequest initiates a customer payment prompt.
type STKPushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// STKPushResponse is Daraja's acknowledgement. CheckoutRequestID is the
// external reference the callback is later matched on.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKPush sends a payment prompt to the customer's phone. M-Pesa only
// accepts whole-shilling amounts, so the total is rounded up.
func (c *MpesaClient) STKPush(ctx context.Context, req *STKPushRequest) (*STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount.Ceil().IntPart(),
		"PartyA":            req.PhoneNumber,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + "/mpesa/stkpush/v1/processrequest"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Gateway(err, "mpesa stk push request failed")
	}
	defer resp.Body.Close()

	var stkResp STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&stkResp); err != nil {
		return nil, apperr.Gateway(err, "mpesa stk push response malformed")
	}

	if resp.StatusCode != http.StatusOK || stkResp.ResponseCode != "0" {
		c.logger.Error("M-Pesa STK push rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("response_code", stkResp.ResponseCode),
			zap.String("description", stkResp.ResponseDescription))
		return nil, apperr.Gateway(
			fmt.Errorf("response code %s", stkResp.ResponseCode), "mpesa stk push rejected")
	}

	return &stkResp, nil
}

// STKCallback is the webhook payload Daraja posts after the customer
// completes or abandons the prompt.
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// Succeeded reports whether the customer completed the payment.
func (cb *STKCallback) Succeeded() bool {
	return cb.Body.StkCallback.ResultCode == 0
}

// ExternalRef returns the checkout request ID the payment row is keyed by.
func (cb *STKCallback) ExternalRef() string {
	return cb.Body.StkCallback.CheckoutRequestID
}

// ReceiptNumber extracts the MpesaReceiptNumber metadata item, if present.
func (cb *STKCallback) ReceiptNumber() string {
	for _, item := range cb.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
