package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/cakedayhq/cakeday_backend/utils"
)

// ErrorKind classifies gateway failures. Only transport and provider
// failures are retry-eligible; validation failures must never be retried
// blindly.
type ErrorKind string

const (
	ErrKindValidation ErrorKind = "validation"
	ErrKindTransport  ErrorKind = "transport"
	ErrKindProvider   ErrorKind = "provider"
)

// GatewayError is a classified failure of a gateway operation
type GatewayError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s error [%s]: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway %s error: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a gateway failure that the retry
// controller may re-dispatch
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind == ErrKindTransport || ge.Kind == ErrKindProvider
	}
	return false
}

// ErrorCode extracts the provider error code from err, if any
func ErrorCode(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// maxDescriptionLen is the provider's description limit; longer strings are
// truncated, not rejected
const maxDescriptionLen = 64

// GatewayClient translates charge intents into provider HTTP calls and
// provider responses into domain results
type GatewayClient struct {
	baseURL     string
	merchantID  string
	callbackURL string
	signer      *Signer
	httpClient  *http.Client
	debug       bool
}

// NewGatewayClient creates a gateway client from the loaded configuration
func NewGatewayClient(cfg config.GatewayConfig, signer *Signer) *GatewayClient {
	return &GatewayClient{
		baseURL:     cfg.BaseURL,
		merchantID:  cfg.MerchantID,
		callbackURL: cfg.CallbackBaseURL + "/api/payments/webhook",
		signer:      signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		debug: os.Getenv("GATEWAY_DEBUG") == "true",
	}
}

// CreateCharge sends a signed charge-creation request and returns the
// gateway token correlating later webhook and status events
func (g *GatewayClient) CreateCharge(ctx context.Context, msisdn string, amount int64, description, orderID string) (string, error) {
	msisdn, err := utils.SanitizeMsisdn(msisdn)
	if err != nil {
		return "", &GatewayError{Kind: ErrKindValidation, Err: err}
	}
	if amount <= 0 {
		return "", &GatewayError{Kind: ErrKindValidation, Err: fmt.Errorf("amount must be positive, got %d", amount)}
	}
	if orderID == "" {
		return "", &GatewayError{Kind: ErrKindValidation, Err: errors.New("order id is required")}
	}
	description = utils.TruncateDescription(description, maxDescriptionLen)

	payload := models.PurchaseRequest{
		Msisdn:      msisdn,
		Amount:      amount,
		Description: description,
		OrderID:     orderID,
		MerchantID:  g.merchantID,
		CallbackURL: g.callbackURL,
		Hmac:        g.signer.SignPurchase(msisdn, amount, description, orderID, g.merchantID),
	}

	resp, err := g.post(ctx, "/purchase", payload)
	if err != nil {
		return "", err
	}

	token, ok := resp.Data["token"].(string)
	if !ok || token == "" {
		return "", &GatewayError{Kind: ErrKindTransport, Err: errors.New("response missing token")}
	}
	return token, nil
}

// CheckStatus polls the gateway for the current state of a charge. Used for
// reconciliation when a webhook never arrived.
func (g *GatewayClient) CheckStatus(ctx context.Context, token string) (string, map[string]interface{}, error) {
	if token == "" {
		return "", nil, &GatewayError{Kind: ErrKindValidation, Err: errors.New("gateway token is required")}
	}

	endpoint := g.baseURL + "/transaction?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, &GatewayError{Kind: ErrKindTransport, Err: err}
	}
	req.Header.Set("X-Gateway-Signature", g.signer.Sign([]byte(token)))

	resp, err := g.send(req)
	if err != nil {
		return "", nil, err
	}

	status, ok := resp.Data["transactionStatus"].(string)
	if !ok || status == "" {
		return "", nil, &GatewayError{Kind: ErrKindTransport, Err: errors.New("response missing transactionStatus")}
	}
	return status, resp.Data, nil
}

func (g *GatewayClient) post(ctx context.Context, endpoint string, payload interface{}) (*models.GatewayResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Kind: ErrKindTransport, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &GatewayError{Kind: ErrKindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if g.debug {
		log.Printf("Gateway request: POST %s%s", g.baseURL, endpoint)
	}

	return g.send(req)
}

func (g *GatewayClient) send(req *http.Request) (*models.GatewayResponse, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Timeouts land here too: a timed-out call is a transport failure,
		// never silently dropped
		return nil, &GatewayError{Kind: ErrKindTransport, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Kind: ErrKindTransport, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if g.debug {
		log.Printf("Gateway response (%d): %s", resp.StatusCode, string(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{Kind: ErrKindTransport, Err: fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)}
	}

	var gatewayResp models.GatewayResponse
	if err := json.Unmarshal(respBody, &gatewayResp); err != nil {
		return nil, &GatewayError{Kind: ErrKindTransport, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if !gatewayResp.Status {
		code := ""
		if gatewayResp.Code != nil {
			code = fmt.Sprintf("%v", gatewayResp.Code)
		}
		msg := gatewayResp.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &GatewayError{Kind: ErrKindProvider, Code: code, Err: errors.New(msg)}
	}

	return &gatewayResp, nil
}
