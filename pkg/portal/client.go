package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/bursar/pkg/config"
	"github.com/yurifrl/bursar/pkg/models"
)

// Client implements Session against the portal's payments API. A browser
// automation adapter would slot in behind the same interface; this one talks
// JSON over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	token      string

	// expectFee is set by DiscoverFeePercent and checked against the fee the
	// portal echoes back on every submission. feeKnown distinguishes a
	// discovered 0% fee from no discovery at all.
	expectFee decimal.Decimal
	feeKnown  bool
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type feeResponse struct {
	FeePercent decimal.Decimal `json:"feePercent"`
}

type paymentRequest struct {
	CardNumber string          `json:"cardNumber"`
	ExpMonth   string          `json:"expMonth"`
	ExpYear    string          `json:"expYear"`
	CVV        string          `json:"cvv"`
	Zip        string          `json:"zip"`
	Amount     decimal.Decimal `json:"amount"`
}

// paymentResponse echoes what the portal applied. FeePercent and Total are
// pointers so an omitted field reads as "not echoed" rather than zero.
type paymentResponse struct {
	NewBalance decimal.Decimal  `json:"newBalance"`
	FeePercent *decimal.Decimal `json:"feePercent"`
	Total      *decimal.Decimal `json:"total"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusError is a non-2xx portal response before it is mapped to the typed
// session errors.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("portal returned status %d: %s", e.status, e.message)
}

// Authenticate logs into the portal with the configured credentials and
// returns a live session.
func Authenticate(ctx context.Context, cfg *config.Config, logger *log.Logger) (Session, error) {
	c := &Client{
		baseURL: strings.TrimRight(cfg.PortalURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	resp, err := send[loginRequest, loginResponse](c, ctx, http.MethodPost, c.baseURL+"/api/login", &loginRequest{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	c.token = resp.Token

	logger.Info("authenticated", "portal", c.baseURL)
	return c, nil
}

func (c *Client) RemainingBalance(ctx context.Context) (decimal.Decimal, error) {
	resp, err := send[struct{}, balanceResponse](c, ctx, http.MethodGet, c.baseURL+"/api/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

func (c *Client) DiscoverFeePercent(ctx context.Context) (decimal.Decimal, error) {
	resp, err := send[struct{}, feeResponse](c, ctx, http.MethodGet, c.baseURL+"/api/payments/fee", nil)
	if err != nil {
		return decimal.Zero, err
	}
	c.expectFee = resp.FeePercent
	c.feeKnown = true
	return resp.FeePercent, nil
}

// SubmitPayment charges one card. The portal echoes the fee percent and
// total it applied; a disagreement with the discovered fee or the submitted
// amount is fatal before anything else runs.
func (c *Client) SubmitPayment(ctx context.Context, card *models.Card, amount decimal.Decimal) (decimal.Decimal, error) {
	req := paymentRequest{
		CardNumber: card.Number,
		ExpMonth:   card.PaddedExpMonth(),
		ExpYear:    card.ExpYear,
		CVV:        card.CVV,
		Zip:        card.Zip,
		Amount:     amount,
	}

	resp, err := send[paymentRequest, paymentResponse](c, ctx, http.MethodPost, c.baseURL+"/api/payments", &req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return decimal.Zero, &RejectedError{Reason: se.message}
		}
		return decimal.Zero, err
	}

	if c.feeKnown && resp.FeePercent != nil && !resp.FeePercent.Equal(c.expectFee) {
		return decimal.Zero, &FeeMismatchError{Want: c.expectFee, Got: *resp.FeePercent}
	}
	if resp.Total != nil && !resp.Total.Equal(amount) {
		return decimal.Zero, &TotalMismatchError{Want: amount, Got: *resp.Total}
	}

	c.logger.Debug("payment accepted", "card", card.Masked(), "amount", amount, "newBalance", resp.NewBalance)
	return resp.NewBalance, nil
}

// Close logs out. Best effort: the token expires server-side anyway.
func (c *Client) Close() error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/logout", nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func send[Req any, Resp any](c *Client, ctx context.Context, method, url string, reqBody *Req) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var portalErr errorResponse
		if err := json.Unmarshal(body, &portalErr); err == nil && portalErr.Message != "" {
			return nil, &statusError{status: resp.StatusCode, message: portalErr.Message}
		}
		return nil, &statusError{status: resp.StatusCode, message: strings.TrimSpace(string(body))}
	}

	var out Resp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}
	return &out, nil
}
