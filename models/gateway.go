package models

import "time"

// Canonical payment outcome statuses. Provider status strings are mapped to
// this set before anything touches the ledger; unknown is never applied.
const (
	OutcomeFinished = "finished"
	OutcomeFailed   = "failed"
	OutcomeUnknown  = "unknown"
)

// PurchaseRequest is the signed charge-creation body sent to the gateway
type PurchaseRequest struct {
	Msisdn      string `json:"msisdn"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	OrderID     string `json:"orderid"`
	MerchantID  string `json:"merchantId"`
	CallbackURL string `json:"callbackUrl"`
	Hmac        string `json:"hmac"`
}

// GatewayResponse represents the standard response structure from the gateway
type GatewayResponse struct {
	Status  bool                   `json:"status"`
	Code    interface{}            `json:"code"` // string or null
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data"`
}

// WebhookPayload is the raw payment-outcome callback body delivered by the
// gateway. The signature header covers these exact bytes.
type WebhookPayload struct {
	OrderID       string `json:"orderid"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionid"`
	Amount        int64  `json:"amount"`
	Msisdn        string `json:"msisdn"`
	Timestamp     int64  `json:"timestamp"`
	ErrorCode     string `json:"errorcode,omitempty"`
	ErrorMessage  string `json:"errormessage,omitempty"`
}

// PaymentEvent is the canonical, provider-agnostic payment outcome handed to
// the post-outcome processor and broadcast to the dashboard.
type PaymentEvent struct {
	OrderID       string    `json:"orderId"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        int64     `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	ErrorCode     string    `json:"errorCode,omitempty"`
}
