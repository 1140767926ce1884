package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Canonical string version for outbound purchase signatures. The gateway and
// this service must agree byte-for-byte, so the format is pinned here:
//
//	v1: msisdn|amount|description|orderid|merchantid
//
// with the amount rendered as a base-10 integer in minor currency units and
// fields joined by a single pipe. Inbound webhook signatures cover the raw
// request body bytes exactly as delivered.
const SignatureVersion = "v1"

// Signer produces and verifies HMAC-SHA256 message authentication codes
// binding request fields with the gateway shared secret
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer from the shared gateway secret
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex-encoded MAC of payload
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPurchase signs the v1 canonical string of an outbound charge request
func (s *Signer) SignPurchase(msisdn string, amount int64, description, orderID, merchantID string) string {
	canonical := strings.Join([]string{
		msisdn,
		fmt.Sprintf("%d", amount),
		description,
		orderID,
		merchantID,
	}, "|")
	return s.Sign([]byte(canonical))
}

// Verify reports whether providedMac is the valid MAC of payload. The
// comparison is constant-time; a MAC mismatch must not leak how many bytes
// matched.
func (s *Signer) Verify(payload []byte, providedMac string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(providedMac))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
