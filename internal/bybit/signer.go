package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultRecvWindow = "5000"
	signTypeHMAC      = "2"

	headerAPIKey     = "X-BAPI-API-KEY"
	headerSign       = "X-BAPI-SIGN"
	headerSignType   = "X-BAPI-SIGN-TYPE"
	headerTimestamp  = "X-BAPI-TIMESTAMP"
	headerRecvWindow = "X-BAPI-RECV-WINDOW"
)

// Signer produces the X-BAPI-SIGN value for private REST calls.
type Signer struct {
	apiKey     string
	secret     []byte
	recvWindow string
}

func NewSigner(apiKey, apiSecret, recvWindow string) (*Signer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if apiSecret == "" {
		return nil, errors.New("api secret is required")
	}
	if recvWindow == "" {
		recvWindow = DefaultRecvWindow
	}
	return &Signer{apiKey: apiKey, secret: []byte(apiSecret), recvWindow: recvWindow}, nil
}

func (s *Signer) APIKey() string {
	return s.apiKey
}

func (s *Signer) RecvWindow() string {
	return s.recvWindow
}

// Sign returns the uppercase hex HMAC-SHA256 of
// timestamp + apiKey + recvWindow + body, keyed with the api secret.
func (s *Signer) Sign(timestampMS int64, body []byte) string {
	return Sign(s.secret, strconv.FormatInt(timestampMS, 10), s.apiKey, s.recvWindow, body)
}

func Sign(secret []byte, timestamp, apiKey, recvWindow string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(apiKey))
	mac.Write([]byte(recvWindow))
	mac.Write(body)
	return ToHex(mac.Sum(nil))
}

// ToHex encodes bytes as uppercase hex, two digits per byte.
func ToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
