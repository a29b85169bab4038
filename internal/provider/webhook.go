package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "time=<unix>,sig1=<hex hmac-sha256>" on provider webhooks.
const SignatureHeader = "Webhook-Signature"

var (
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrStaleSignature = errors.New("webhook signature expired")
)

// VerifySignature checks a webhook body against its signature header. The
// signed message is "<time>.<body>". Signatures older than tolerance are rejected.
func VerifySignature(secret, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "time":
			ts = v
		case "sig1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrBadSignature)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad time %q", ErrBadSignature, ts)
	}
	if tolerance > 0 && now.Sub(time.Unix(unix, 0)) > tolerance {
		return ErrStaleSignature
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: bad hex", ErrBadSignature)
	}
	if !hmac.Equal(want, Sign(secret, ts, body)) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the raw HMAC for a timestamp and body.
func Sign(secret, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// ParseWebhook decodes a webhook body (the same video object the API returns)
// into the external id and the status it announces.
func ParseWebhook(body []byte) (string, *Status, error) {
	var result videoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", nil, fmt.Errorf("decode webhook: %w", err)
	}
	if result.UID == "" {
		return "", nil, errors.New("webhook missing uid")
	}
	st, err := result.toStatus()
	if err != nil {
		return result.UID, nil, err
	}
	return result.UID, st, nil
}
