// Package sign produces the timestamp, nonce and HMAC-SHA256 signature
// triple required by the client_signature authentication grant.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials holds the client id and secret issued by the venue.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Sign produces a fresh timestamp/nonce/signature triple. The signature
// covers timestamp + "\n" + nonce + "\n" with an empty data segment.
func (c *Credentials) Sign() (timestamp, nonce, signature string) {
	timestamp = Timestamp()
	nonce = Nonce()
	signature = Signature(c.ClientSecret, timestamp, nonce, "")
	return timestamp, nonce, signature
}

// Timestamp returns milliseconds since the Unix epoch as a decimal string.
func Timestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// Nonce returns a one-time random token.
func Nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Signature computes the hex HMAC-SHA256 over
// timestamp + "\n" + nonce + "\n" + data, keyed by the client secret.
func Signature(secret, timestamp, nonce, data string) string {
	return HMACSHA256Hex(secret, timestamp+"\n"+nonce+"\n"+data)
}

// HMACSHA256Hex computes the HMAC-SHA256 of message keyed by secret,
// hex-encoded.
func HMACSHA256Hex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
