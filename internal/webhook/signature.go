package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderEvent     = "X-Frameset-Event"
	HeaderDelivery  = "X-Frameset-Delivery"
	HeaderSignature = "X-Frameset-Signature"
)

var (
	ErrMissingSignature = errors.New("webhook: signature not found")
	ErrInvalidSignature = errors.New("webhook: signature mismatch")
	ErrStaleSignature   = errors.New("webhook: signature timestamp outside tolerance")
)

// Sign returns the hex HMAC-SHA256 of "<unix ts>.<payload>".
func Sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader formats the X-Frameset-Signature value: "t=<unix>,v1=<hex>".
func SignatureHeader(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), Sign(payload, secret, ts))
}

func parseSignatureHeader(header string) (sig string, ts time.Time, err error) {
	var unix int64
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if val, ok := strings.CutPrefix(part, "t="); ok {
			unix, err = strconv.ParseInt(val, 10, 64)
			if err != nil {
				return "", time.Time{}, fmt.Errorf("webhook: invalid timestamp: %w", err)
			}
		} else if val, ok := strings.CutPrefix(part, "v1="); ok {
			sig = val
		}
	}
	if sig == "" || unix == 0 {
		return "", time.Time{}, ErrMissingSignature
	}
	return sig, time.Unix(unix, 0), nil
}

// Verify checks a signature header against payload. Receivers call it with
// their own clock; tolerance bounds replay of captured deliveries.
func Verify(header string, payload []byte, secret string, tolerance time.Duration, now time.Time) error {
	sig, ts, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	if d := now.Sub(ts); d > tolerance || d < -tolerance {
		return ErrStaleSignature
	}
	if !hmac.Equal([]byte(sig), []byte(Sign(payload, secret, ts))) {
		return ErrInvalidSignature
	}
	return nil
}
