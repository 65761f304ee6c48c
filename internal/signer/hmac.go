// Package signer implements the two signature schemes AsterDex's spot
// and perpetual APIs require: HMAC-SHA256 over url-encoded query
// parameters (spot, and a subset of perp endpoints per the route table
// in venue.RouteFor), and EIP-712-style Ethereum typed-data signing
// (the rest of the perp surface). Neither signer performs I/O; both are
// deterministic for a fixed input, which is what lets them be unit
// tested without a network fixture.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"github.com/asterdex/dn-arb-core/internal/asterr"
)

// HMACSigner signs ordered parameter maps with HMAC-SHA256, the scheme
// AsterDex's spot API (and the /fapi/v1/* leverage and income/trades
// endpoints) uses.
type HMACSigner struct {
	secret string
}

// NewHMACSigner builds a signer bound to one API secret. A blank secret
// is rejected — signing with an empty key would silently produce a
// deterministic, crackable signature.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, asterr.NewSignatureError("empty HMAC secret")
	}
	return &HMACSigner{secret: secret}, nil
}

// RecvWindowHMAC is the recvWindow (ms) attached to every HMAC-signed
// request.
const RecvWindowHMAC = 5000

// Prepare stamps params with timestamp and recvWindow (mutating a copy,
// never the caller's map) and returns the url-encoded signature input
// alongside the signature itself, so callers can append
// "&signature=<hex>" to whichever transport (query string or form body)
// the request uses.
func (s *HMACSigner) Prepare(params url.Values) (url.Values, string, error) {
	out := cloneValues(params)
	out.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	out.Set("recvWindow", strconv.Itoa(RecvWindowHMAC))

	sig, err := s.Sign(out)
	if err != nil {
		return nil, "", err
	}
	return out, sig, nil
}

// Sign computes HMAC-SHA256(secret, urlencode(params)) as lowercase hex.
// params must already include any fields the caller wants covered by the
// signature (e.g. timestamp/recvWindow); Sign itself adds nothing.
func (s *HMACSigner) Sign(params url.Values) (string, error) {
	encoded := params.Encode()
	mac := hmac.New(sha256.New, []byte(s.secret))
	if _, err := mac.Write([]byte(encoded)); err != nil {
		return "", asterr.NewSignatureError("hmac write failed")
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}

