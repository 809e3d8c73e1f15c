package paypal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kapehan/kapehan-backend/pkg/config"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/logger"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"

	// StatusCompleted is the terminal PayPal capture status we require before
	// any local write happens.
	StatusCompleted = "COMPLETED"
)

var (
	errCredentialsRequired = errors.New("paypal client id and secret are required")
	errInvalidPayPalEnv    = fmt.Errorf("paypal environment must be %q or %q", sandboxEnv, liveEnv)
	errLoggerRequired      = errors.New("paypal logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv: "https://api-m.sandbox.paypal.com",
	liveEnv:    "https://api-m.paypal.com",
}

// Client talks to the PayPal Orders v2 REST API with centralized auth,
// logging, and error mapping.
type Client struct {
	http     *resty.Client
	clientID string
	secret   string
	currency string
	env      string
	logger   *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Amount is a money value already rendered for the wire (two decimals).
type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// OrderBreakdown itemizes the purchase unit total.
type OrderBreakdown struct {
	ItemTotal Amount `json:"item_total"`
	TaxTotal  Amount `json:"tax_total"`
}

// CreateOrderInput carries the totals for a single purchase unit.
type CreateOrderInput struct {
	ReferenceID string
	Subtotal    string
	Tax         string
	Total       string
}

// CreateOrderResult is the subset of the create response the checkout needs.
type CreateOrderResult struct {
	OrderID string
	Status  string
}

// CaptureResult is the subset of the capture response the checkout needs.
type CaptureResult struct {
	OrderID   string
	Status    string
	CaptureID string
}

// NewClient initializes the PayPal wrapper and validates credentials.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidPayPalEnv
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.Secret)
	if clientID == "" || secret == "" {
		return nil, errCredentialsRequired
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http:     http,
		clientID: clientID,
		secret:   secret,
		currency: cfg.Currency,
		env:      env,
		logger:   logg,
	}

	logg.Info(ctx, "paypal client initialized")
	return c, nil
}

// Environment reports the normalized PayPal environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.secret).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&body).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requesting paypal token")
	}
	if resp.IsError() {
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paypal token request failed with status %d", resp.StatusCode()))
	}
	if body.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "paypal token response missing access_token")
	}

	c.accessToken = body.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Amount      struct {
		CurrencyCode string          `json:"currency_code"`
		Value        string          `json:"value"`
		Breakdown    *OrderBreakdown `json:"breakdown,omitempty"`
	} `json:"amount"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder registers an order with PayPal and returns its order id. Nothing
// is persisted locally at this point.
func (c *Client) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	unit := purchaseUnit{ReferenceID: input.ReferenceID}
	unit.Amount.CurrencyCode = c.currency
	unit.Amount.Value = input.Total
	unit.Amount.Breakdown = &OrderBreakdown{
		ItemTotal: Amount{CurrencyCode: c.currency, Value: input.Subtotal},
		TaxTotal:  Amount{CurrencyCode: c.currency, Value: input.Tax},
	}

	var body orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(createOrderRequest{
			Intent:        "CAPTURE",
			PurchaseUnits: []purchaseUnit{unit},
		}).
		SetResult(&body).
		Post("/v2/checkout/orders")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating paypal order")
	}
	if resp.IsError() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paypal order create failed with status %d", resp.StatusCode()))
	}
	if body.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal order create response missing id")
	}

	c.logger.Info(ctx, "paypal order created")
	return &CreateOrderResult{OrderID: body.ID, Status: body.Status}, nil
}

// CaptureOrder captures a previously created PayPal order. Callers must check
// that the returned status is StatusCompleted before trusting the payment.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var body orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetResult(&body).
		Post(fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capturing paypal order")
	}
	if resp.IsError() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paypal capture failed with status %d", resp.StatusCode()))
	}

	result := &CaptureResult{OrderID: body.ID, Status: body.Status}
	for _, unit := range body.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			result.CaptureID = unit.Payments.Captures[0].ID
			break
		}
	}

	c.logger.Info(ctx, "paypal order captured")
	return result, nil
}
