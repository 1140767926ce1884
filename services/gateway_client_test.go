package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*GatewayClient, *Signer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	signer := NewSigner("test-secret")
	client := NewGatewayClient(config.GatewayConfig{
		BaseURL:         server.URL,
		Secret:          "test-secret",
		MerchantID:      "merchant-1",
		CallbackBaseURL: "https://billing.cakeday.test",
	}, signer)
	return client, signer
}

func TestCreateChargeSuccess(t *testing.T) {
	var received models.PurchaseRequest
	client, signer := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/purchase", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"code":   nil,
			"data":   map[string]interface{}{"token": "tok_123"},
		})
	})

	token, err := client.CreateCharge(context.Background(), "+961 70 123 456", 5000, "Cakeday standard subscription 2026-08", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "tok_123", token)

	assert.Equal(t, "96170123456", received.Msisdn, "msisdn is normalized before signing and sending")
	assert.Equal(t, int64(5000), received.Amount)
	assert.Equal(t, "order-1", received.OrderID)
	assert.Equal(t, "merchant-1", received.MerchantID)
	assert.Equal(t, "https://billing.cakeday.test/api/payments/webhook", received.CallbackURL)
	assert.Equal(t, signer.SignPurchase(received.Msisdn, received.Amount, received.Description, received.OrderID, received.MerchantID), received.Hmac)
}

func TestCreateChargeTruncatesDescription(t *testing.T) {
	var received models.PurchaseRequest
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data":   map[string]interface{}{"token": "tok_123"},
		})
	})

	_, err := client.CreateCharge(context.Background(), "96170123456", 5000, strings.Repeat("x", 200), "order-1")
	require.NoError(t, err)
	assert.Len(t, received.Description, maxDescriptionLen)
}

func TestCreateChargeProviderRejection(t *testing.T) {
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  false,
			"code":    "INSUFFICIENT_FUNDS",
			"message": "insufficient balance",
		})
	})

	_, err := client.CreateCharge(context.Background(), "96170123456", 5000, "sub", "order-1")
	require.Error(t, err)

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrKindProvider, ge.Kind)
	assert.Equal(t, "INSUFFICIENT_FUNDS", ge.Code)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "INSUFFICIENT_FUNDS", ErrorCode(err))
}

func TestCreateChargeHTTPFailureIsTransport(t *testing.T) {
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateCharge(context.Background(), "96170123456", 5000, "sub", "order-1")
	require.Error(t, err)

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrKindTransport, ge.Kind)
	assert.True(t, IsRetryable(err))
}

func TestCreateChargeUnparseableResponseIsTransport(t *testing.T) {
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway maintenance</html>"))
	})

	_, err := client.CreateCharge(context.Background(), "96170123456", 5000, "sub", "order-1")
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrKindTransport, ge.Kind)
}

func TestCreateChargeValidationFailuresNeverHitTheWire(t *testing.T) {
	hits := 0
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
	})

	cases := []struct {
		name    string
		msisdn  string
		amount  int64
		orderID string
	}{
		{"bad msisdn", "not-a-phone", 5000, "order-1"},
		{"zero amount", "96170123456", 0, "order-1"},
		{"negative amount", "96170123456", -100, "order-1"},
		{"missing order id", "96170123456", 5000, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.CreateCharge(context.Background(), tc.msisdn, tc.amount, "sub", tc.orderID)
			var ge *GatewayError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, ErrKindValidation, ge.Kind)
			assert.False(t, IsRetryable(err))
		})
	}
	assert.Zero(t, hits)
}

func TestCheckStatusSuccess(t *testing.T) {
	var gotSignature, gotToken string
	client, signer := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/transaction", r.URL.Path)
		gotToken = r.URL.Query().Get("token")
		gotSignature = r.Header.Get("X-Gateway-Signature")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"transactionStatus": "success",
				"transactionId":     "tx_987",
			},
		})
	})

	status, data, err := client.CheckStatus(context.Background(), "tok_123")
	require.NoError(t, err)
	assert.Equal(t, "success", status)
	assert.Equal(t, "tx_987", data["transactionId"])
	assert.Equal(t, "tok_123", gotToken)
	assert.Equal(t, signer.Sign([]byte("tok_123")), gotSignature)
}

func TestCheckStatusMissingStatusIsTransport(t *testing.T) {
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data":   map[string]interface{}{},
		})
	})

	_, _, err := client.CheckStatus(context.Background(), "tok_123")
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrKindTransport, ge.Kind)
}

func TestCheckStatusRequiresToken(t *testing.T) {
	client, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	_, _, err := client.CheckStatus(context.Background(), "")
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrKindValidation, ge.Kind)
}
