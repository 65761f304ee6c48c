package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asterdex/dn-arb-core/internal/asterr"
	"github.com/asterdex/dn-arb-core/internal/venue"
)

func testCredentials() Credentials {
	return Credentials{
		APIUser:       "0x1111111111111111111111111111111111111111",
		APISigner:     "0x2222222222222222222222222222222222222222",
		APIPrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		APIV1Public:   "test-api-key",
		APIV1Private:  "test-api-secret",
	}
}

func TestClient_GetUnsignedDecodesJSON(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ticker/bookTicker", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, err := New(testCredentials(), WithBaseURLs(venue.BaseURLs{Spot: srv.URL, Perp: srv.URL}))
	require.NoError(t, err)

	var out struct {
		Status string `json:"status"`
	}
	err = c.Get(context.Background(), "/api/v1/ticker/bookTicker", url.Values{"symbol": {"BTCUSDT"}}, &out, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Status)
	// A route marked Auth: none must never carry a signature, even when
	// the caller passes query params through.
	assert.Empty(t, gotQuery.Get("signature"))
	assert.Empty(t, gotQuery.Get("timestamp"))
}

func TestClient_SignedRequestAttachesAPIKeyAndSignature(t *testing.T) {
	var gotHeader string
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-MBX-APIKEY")
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"asset":"USDT"}`))
	}))
	defer srv.Close()

	c, err := New(testCredentials(), WithBaseURLs(venue.BaseURLs{Spot: srv.URL, Perp: srv.URL}))
	require.NoError(t, err)

	err = c.Get(context.Background(), "/api/v1/account", url.Values{"recvWindow": {"5000"}}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "test-api-key", gotHeader)
	assert.NotEmpty(t, gotQuery.Get("signature"))
	assert.NotEmpty(t, gotQuery.Get("timestamp"))
}

func TestClient_NonTwoXXMapsToTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c, err := New(testCredentials(), WithBaseURLs(venue.BaseURLs{Spot: srv.URL, Perp: srv.URL}))
	require.NoError(t, err)

	err = c.Get(context.Background(), "/fapi/v1/fundingRate", nil, nil, false)
	require.Error(t, err)

	var transportErr *asterr.TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.Status)
}

func TestClient_VenueErrorEnvelopeMapsToVenueError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c, err := New(testCredentials(), WithBaseURLs(venue.BaseURLs{Spot: srv.URL, Perp: srv.URL}))
	require.NoError(t, err)

	err = c.Get(context.Background(), "/fapi/v1/fundingRate", nil, nil, false)
	require.Error(t, err)

	var venueErr *asterr.VenueError
	assert.ErrorAs(t, err, &venueErr)
	assert.Equal(t, -1121, venueErr.Code)
}

func TestClient_PostSendsFormEncodedBody(t *testing.T) {
	var gotContentType string
	var gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		r.ParseForm()
		gotBody = r.Form.Get("symbol")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(testCredentials(), WithBaseURLs(venue.BaseURLs{Spot: srv.URL, Perp: srv.URL}))
	require.NoError(t, err)

	err = c.Post(context.Background(), "/api/v1/order", url.Values{"symbol": {"BTCUSDT"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "BTCUSDT", gotBody)
}
