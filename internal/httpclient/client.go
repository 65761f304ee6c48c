// Package httpclient implements the one shared HTTP surface every
// exchange-access component is built on: a pooled client per market
// (spot, perp), request signing selected by venue.RouteFor, and a
// uniform error mapping into asterr's taxonomy.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/asterr"
	"github.com/asterdex/dn-arb-core/internal/signer"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

// Credentials bundles the five values required to
// construct a fully signed client. The core never reads these from the
// environment itself — callers (e.g. cmd/asterctl) are responsible for
// sourcing them.
type Credentials struct {
	APIUser       string // EIP-712 "user" address
	APISigner     string // EIP-712 "signer" address
	APIPrivateKey string // EIP-712 signing key
	APIV1Public   string // HMAC API key (X-MBX-APIKEY header)
	APIV1Private  string // HMAC secret
}

// Client is the single entry point every higher-level package issues
// requests through. It owns one *http.Client per market base URL and
// both signer implementations; it is safe for concurrent use.
type Client struct {
	httpSpot *http.Client
	httpPerp *http.Client
	baseURLs venue.BaseURLs

	hmac   *signer.HMACSigner
	eip712 *signer.EIP712Signer
	apiKey string
	user   string
	signerAddr string

	log *zap.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithBaseURLs overrides the default production hosts, primarily for
// tests against httptest.Server fixtures.
func WithBaseURLs(urls venue.BaseURLs) Option {
	return func(c *Client) { c.baseURLs = urls }
}

// WithLogger attaches a structured logger; the default is a no-op
// logger so constructing a Client never requires wiring one up in
// tests.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPTimeout overrides the default 10s per-request timeout on both
// pooled clients.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpSpot.Timeout = d
		c.httpPerp.Timeout = d
	}
}

// New builds a Client from credentials. Both signers are built up
// front: apiv1_private must be non-empty for the HMAC signer, and
// api_private_key/api_user/api_signer must be a valid key and valid
// addresses for the EIP-712 signer; either failure is returned. An
// empty apiv1_public is accepted, and then no X-MBX-APIKEY header is
// sent.
func New(creds Credentials, opts ...Option) (*Client, error) {
	hmacSigner, err := signer.NewHMACSigner(creds.APIV1Private)
	if err != nil {
		return nil, errors.Wrap(err, "httpclient: building HMAC signer")
	}
	eip712Signer, err := signer.NewEIP712Signer(creds.APIPrivateKey, creds.APIUser, creds.APISigner)
	if err != nil {
		return nil, errors.Wrap(err, "httpclient: building EIP-712 signer")
	}

	c := &Client{
		httpSpot: &http.Client{Timeout: 10 * time.Second},
		httpPerp: &http.Client{Timeout: 10 * time.Second},
		baseURLs: venue.DefaultBaseURLs(),
		hmac:       hmacSigner,
		eip712:     eip712Signer,
		apiKey:     creds.APIV1Public,
		user:       creds.APIUser,
		signerAddr: creds.APISigner,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get issues an unsigned, HMAC-signed, or EIP-712-signed GET depending
// on the route table, decoding a JSON body into out. suppressErrors,
// when true, still returns the error but skips the warn-level log line
// (for probes that expect 4xx responses).
func (c *Client) Get(ctx context.Context, path string, params url.Values, out interface{}, suppressErrors bool) error {
	return c.do(ctx, http.MethodGet, path, params, out, suppressErrors)
}

// SignedGet forces HMAC signing on path regardless of the route
// table's default, for endpoints the table marks unsigned but which
// the caller knows require auth (defensive; in practice every signed
// path is already listed in the route table).
func (c *Client) SignedGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	signedParams, sig, err := c.hmac.Prepare(params)
	if err != nil {
		return err
	}
	signedParams.Set("signature", sig)
	return c.request(ctx, http.MethodGet, path, signedParams, nil, out, false)
}

// Post issues a signed POST (HMAC or EIP-712, per the route table) with
// params in the request body.
func (c *Client) Post(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, params, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, out interface{}, suppressErrors bool) error {
	if params == nil {
		params = url.Values{}
	}
	route := venue.RouteFor(path)

	switch route.Scheme {
	case venue.SchemeHMAC:
		signedParams, sig, err := c.hmac.Prepare(params)
		if err != nil {
			return err
		}
		signedParams.Set("signature", sig)
		return c.request(ctx, method, path, signedParams, nil, out, suppressErrors)

	case venue.SchemeEIP712:
		payload := valuesToPayload(params)
		nonce, sig, err := c.eip712.Prepare(payload)
		if err != nil {
			return err
		}
		signedParams := cloneValues(params)
		signedParams.Set("user", c.eip712UserHex())
		signedParams.Set("signer", c.eip712SignerHex())
		signedParams.Set("nonce", fmt.Sprintf("%d", nonce))
		signedParams.Set("recvWindow", fmt.Sprintf("%d", signer.RecvWindowEIP712))
		signedParams.Set("signature", sig)
		return c.request(ctx, method, path, signedParams, nil, out, suppressErrors)

	default:
		return c.request(ctx, method, path, params, nil, out, suppressErrors)
	}
}

// request performs the actual HTTP round trip. GET requests place
// params in the query string; POST requests place them in an
// application/x-www-form-urlencoded body, matching AsterDex's
// Binance-derived wire convention.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body io.Reader, out interface{}, suppressErrors bool) error {
	route := venue.RouteFor(path)
	baseURL := c.baseURLs.BaseURLFor(route.Market)
	httpClient := c.httpSpot
	if route.Market == venue.MarketPerp {
		httpClient = c.httpPerp
	}

	var reqURL string
	if method == http.MethodGet {
		reqURL = baseURL + path
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		reqURL = baseURL + path
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return errors.Wrap(err, "httpclient: building request")
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if !suppressErrors {
			c.log.Warn("request failed", zap.String("path", path), zap.Error(err))
		}
		return errors.Wrap(asterr.NewTransportError(0, err.Error()), "httpclient: round trip")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "httpclient: reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if !suppressErrors {
			c.log.Warn("non-2xx response", zap.String("path", path), zap.Int("status", resp.StatusCode))
		}
		return asterr.NewTransportError(resp.StatusCode, string(raw))
	}

	if venueErr, ok := extractVenueError(raw); ok {
		return venueErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrap(asterr.NewTransportError(resp.StatusCode, string(raw)), "httpclient: decoding response body")
		}
	}
	return nil
}

// extractVenueError looks for AsterDex's {"code":-1234,"msg":"..."}
// rejection envelope within an otherwise-2xx body.
func extractVenueError(raw []byte) (error, bool) {
	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}
	if envelope.Code < 0 {
		return asterr.NewVenueError(envelope.Code, envelope.Msg), true
	}
	return nil, false
}

func valuesToPayload(params url.Values) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
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

func (c *Client) eip712UserHex() string   { return c.user }
func (c *Client) eip712SignerHex() string { return c.signerAddr }
