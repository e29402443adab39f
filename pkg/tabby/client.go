package tabby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/rvelez/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.tabby.ai"
	responseBodyReadLimit int64 = 1024
)

// Payment statuses returned by the Tabby API.
const (
	PaymentStatusAuthorized = "AUTHORIZED"
	PaymentStatusClosed     = "CLOSED"
	PaymentStatusRejected   = "REJECTED"
	PaymentStatusExpired    = "EXPIRED"
)

var (
	errAPIKeyRequired     = errors.New("tabby api key is required")
	errMerchantIDRequired = errors.New("tabby merchant id is required")
)

// Client wraps the Tabby pay-later checkout and payment APIs.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	merchantID    string
	webhookSecret string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Tabby base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithWebhookSecret sets the shared secret used to check delivery signatures.
func WithWebhookSecret(secret string) Option {
	return func(c *Client) {
		c.webhookSecret = strings.TrimSpace(secret)
	}
}

// NewClient builds the Tabby client given an API key and merchant id.
func NewClient(apiKey, merchantID string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}
	trimmedMerchant := strings.TrimSpace(merchantID)
	if trimmedMerchant == "" {
		return nil, errMerchantIDRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		merchantID: trimmedMerchant,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// WebhookSecret returns the configured delivery-signature secret.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Buyer carries the customer details Tabby requires at checkout.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OrderLine is one purchased item reported to Tabby.
type OrderLine struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CheckoutRequest describes the payload sent to the checkout API.
type CheckoutRequest struct {
	Amount     decimal.Decimal
	Currency   string
	OrderRef   string
	Buyer      Buyer
	Lines      []OrderLine
	SuccessURL string
	CancelURL  string
	FailureURL string
}

// CheckoutSession is the normalized checkout response.
type CheckoutSession struct {
	SessionID string
	PaymentID string
	WebURL    string
	Status    string
}

// Payment is the normalized payment snapshot used for webhook verification.
type Payment struct {
	ID       string
	Status   string
	Amount   decimal.Decimal
	Currency string
	OrderRef string
}

// Authorized reports whether the payment can be captured.
func (p *Payment) Authorized() bool {
	return p != nil && p.Status == PaymentStatusAuthorized
}

// CreateCheckout opens a Tabby checkout session and returns the redirect URL.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tabby client not configured")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout amount must be positive")
	}
	if strings.TrimSpace(req.OrderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}

	lines := make([]map[string]any, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, map[string]any{
			"title":      line.Title,
			"quantity":   line.Quantity,
			"unit_price": line.UnitPrice.StringFixed(2),
		})
	}

	payload := map[string]any{
		"merchant_code": c.merchantID,
		"lang":          "en",
		"payment": map[string]any{
			"amount":   req.Amount.StringFixed(2),
			"currency": req.Currency,
			"buyer": map[string]any{
				"name":  req.Buyer.Name,
				"email": req.Buyer.Email,
				"phone": req.Buyer.Phone,
			},
			"order": map[string]any{
				"reference_id": req.OrderRef,
				"items":        lines,
			},
		},
		"merchant_urls": map[string]any{
			"success": req.SuccessURL,
			"cancel":  req.CancelURL,
			"failure": req.FailureURL,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal checkout request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("api/v2/checkout"), bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build checkout request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute checkout request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "checkout request failed")
	}

	var apiResp struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Payment struct {
			ID string `json:"id"`
		} `json:"payment"`
		Configuration struct {
			AvailableProducts struct {
				Installments []struct {
					WebURL string `json:"web_url"`
				} `json:"installments"`
			} `json:"available_products"`
		} `json:"configuration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout response")
	}

	session := &CheckoutSession{
		SessionID: apiResp.ID,
		PaymentID: apiResp.Payment.ID,
		Status:    apiResp.Status,
	}
	if installments := apiResp.Configuration.AvailableProducts.Installments; len(installments) > 0 {
		session.WebURL = installments[0].WebURL
	}
	return session, nil
}

// GetPayment fetches the current payment state from Tabby.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tabby client not configured")
	}
	trimmed := strings.TrimSpace(paymentID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	endpoint := fmt.Sprintf("%s/api/v2/payments/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payment request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "payment request failed")
	}

	return decodePayment(resp.Body)
}

// CapturePayment captures an authorized payment for the given amount.
func (c *Client) CapturePayment(ctx context.Context, paymentID string, amount decimal.Decimal) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tabby client not configured")
	}
	trimmed := strings.TrimSpace(paymentID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture amount must be positive")
	}

	body, err := json.Marshal(map[string]any{"amount": amount.StringFixed(2)})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal capture request")
	}

	endpoint := fmt.Sprintf("%s/api/v2/payments/%s/captures", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build capture request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute capture request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "capture request failed")
	}

	return decodePayment(resp.Body)
}

func decodePayment(body io.Reader) (*Payment, error) {
	var apiResp struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Order    struct {
			ReferenceID string `json:"reference_id"`
		} `json:"order"`
	}
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment response")
	}

	amount := decimal.Zero
	if strings.TrimSpace(apiResp.Amount) != "" {
		parsed, err := decimal.NewFromString(apiResp.Amount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse payment amount")
		}
		amount = parsed
	}

	return &Payment{
		ID:       apiResp.ID,
		Status:   apiResp.Status,
		Amount:   amount,
		Currency: apiResp.Currency,
		OrderRef: apiResp.Order.ReferenceID,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
