// Package paymob is a small client for the Paymob Accept API: authentication,
// remote order registration, payment keys and the hosted iframe URL.
package paymob

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

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://accept.paymob.com/api"
	defaultTimeout              = 15 * time.Second
	defaultMaxRetries           = 2
	defaultRetryBase            = 250 * time.Millisecond
	responseBodyReadLimit int64 = 1024

	OpAuthToken  = "auth_token"
	OpOrder      = "create_order"
	OpPaymentKey = "payment_key"
)

var errAPIKeyRequired = errors.New("paymob api key is required")

// Observer receives the latency and outcome of every remote call, retries
// included.
type Observer func(operation string, elapsed time.Duration, err error)

// Client wraps the Paymob Accept REST endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
	retryBase  time.Duration
	observe    Observer
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

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRetry sets how many times a transient failure is retried and the base
// delay of the exponential backoff. maxRetries of zero disables retries.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = uint64(maxRetries)
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

func WithObserver(fn Observer) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// NewClient builds a client for the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// NewFromConfig builds a client from the service configuration.
func NewFromConfig(cfg config.PaymobConfig, opts ...Option) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := []Option{
		WithBaseURL(cfg.BaseURL),
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithRetry(cfg.MaxRetries, cfg.RetryBaseDelay),
	}
	return NewClient(cfg.APIKey, append(base, opts...)...)
}

// LineItem is a single order line as Paymob expects it.
type LineItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// BillingData is the customer block Paymob requires on every payment key.
// Unknown fields must be sent as "NA".
type BillingData struct {
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number"`
	Apartment      string `json:"apartment"`
	Floor          string `json:"floor"`
	Street         string `json:"street"`
	Building       string `json:"building"`
	ShippingMethod string `json:"shipping_method"`
	PostalCode     string `json:"postal_code"`
	City           string `json:"city"`
	Country        string `json:"country"`
	State          string `json:"state"`
}

// DefaultBillingData is used when the storefront holds no customer profile.
func DefaultBillingData() BillingData {
	return BillingData{
		Email:          "user@example.com",
		FirstName:      "John",
		LastName:       "Doe",
		PhoneNumber:    "+201234567890",
		Apartment:      "NA",
		Floor:          "NA",
		Street:         "NA",
		Building:       "NA",
		ShippingMethod: "NA",
		PostalCode:     "NA",
		City:           "NA",
		Country:        "NA",
		State:          "NA",
	}
}

// Complete returns b with every blank field taken from DefaultBillingData.
func (b BillingData) Complete() BillingData {
	def := DefaultBillingData()
	fill := func(dst *string, fallback string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = fallback
		}
	}
	fill(&b.Email, def.Email)
	fill(&b.FirstName, def.FirstName)
	fill(&b.LastName, def.LastName)
	fill(&b.PhoneNumber, def.PhoneNumber)
	fill(&b.Apartment, def.Apartment)
	fill(&b.Floor, def.Floor)
	fill(&b.Street, def.Street)
	fill(&b.Building, def.Building)
	fill(&b.ShippingMethod, def.ShippingMethod)
	fill(&b.PostalCode, def.PostalCode)
	fill(&b.City, def.City)
	fill(&b.Country, def.Country)
	fill(&b.State, def.State)
	return b
}

// OrderRequest registers an order with the gateway.
type OrderRequest struct {
	Currency        string
	AmountCents     int64
	Items           []LineItem
	DeliveryNeeded  bool
	MerchantOrderID string
}

// PaymentKeyRequest asks for a short-lived key bound to a remote order.
type PaymentKeyRequest struct {
	Currency          string
	ExpirationSeconds int
	AmountCents       int64
	RemoteOrderID     string
	Billing           BillingData
	IntegrationID     int64
}

// GetAuthToken exchanges the API key for a bearer token.
func (c *Client) GetAuthToken(ctx context.Context) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "paymob client not configured")
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, OpAuthToken, "auth/tokens", "", map[string]string{"api_key": c.apiKey}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "No token returned from Paymob.")
	}
	return resp.Token, nil
}

// CreateRemoteOrder registers the order and returns the gateway order id.
func (c *Client) CreateRemoteOrder(ctx context.Context, token string, req OrderRequest) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "paymob client not configured")
	}
	if req.AmountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount_cents must be positive")
	}

	items := req.Items
	if items == nil {
		items = []LineItem{}
	}
	body := map[string]any{
		"auth_token":      token,
		"currency":        req.Currency,
		"amount_cents":    req.AmountCents,
		"items":           items,
		"delivery_needed": boolString(req.DeliveryNeeded),
	}
	if req.MerchantOrderID != "" {
		body["merchant_order_id"] = req.MerchantOrderID
	}

	var resp struct {
		ID json.Number `json:"id"`
	}
	// Registration is not idempotent: a retried POST can create a second
	// remote order for the same merchant_order_id.
	if err := c.send(ctx, OpOrder, "ecommerce/orders", token, body, &resp, 0); err != nil {
		return "", err
	}
	if resp.ID.String() == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "No order id returned from Paymob.")
	}
	return resp.ID.String(), nil
}

// GeneratePaymentKey returns the payment token used by the hosted iframe.
func (c *Client) GeneratePaymentKey(ctx context.Context, token string, req PaymentKeyRequest) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "paymob client not configured")
	}
	if strings.TrimSpace(req.RemoteOrderID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "remote order id is required")
	}

	body := map[string]any{
		"auth_token":     token,
		"amount_cents":   req.AmountCents,
		"expiration":     req.ExpirationSeconds,
		"order_id":       req.RemoteOrderID,
		"billing_data":   req.Billing,
		"currency":       req.Currency,
		"integration_id": req.IntegrationID,
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, OpPaymentKey, "acceptance/payment_keys", token, body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "No payment key returned from Paymob.")
	}
	return resp.Token, nil
}

// BuildPaymentRedirectURL returns the hosted iframe URL for a payment key.
func (c *Client) BuildPaymentRedirectURL(paymentKey, iframeID string) string {
	return fmt.Sprintf("%s?payment_token=%s",
		c.buildURL("acceptance/iframes/"+url.PathEscape(iframeID)),
		url.QueryEscape(paymentKey))
}

func (c *Client) post(ctx context.Context, op, path, token string, body any, out any) error {
	return c.send(ctx, op, path, token, body, out, c.maxRetries)
}

func (c *Client) send(ctx context.Context, op, path, token string, body any, out any, retries uint64) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "marshal "+op+" request")
	}

	endpoint := c.buildURL(path)
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(c.retryBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		start := time.Now()
		callErr := c.doOnce(ctx, endpoint, token, payload, out)
		if c.observe != nil {
			c.observe(op, time.Since(start), callErr)
		}
		return callErr
	})
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("paymob %s failed: %v", op, err))
}

// doOnce performs a single attempt. Transport failures, 429 and 5xx responses
// are marked retryable; any other failure stops the backoff.
func (c *Client) doOnce(ctx context.Context, endpoint, token string, payload []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build paymob request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.RetryableError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(statusErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeGateway, statusErr, statusErr.Error())
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode paymob response")
	}
	return nil
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("paymob returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("paymob returned status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
