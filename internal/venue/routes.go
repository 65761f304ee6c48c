package venue

// SignerScheme selects which signing algorithm a route requires.
type SignerScheme string

const (
	SchemeNone   SignerScheme = "none"   // public, unsigned endpoint
	SchemeHMAC   SignerScheme = "hmac"   // spot + legacy perp endpoints
	SchemeEIP712 SignerScheme = "eip712" // perp v3 endpoints
)

// Route describes how one exact path is authenticated and which base
// URL it is served from.
type Route struct {
	Path   string
	Scheme SignerScheme
	Market Market
}

// routeTable is the static `{path -> signer, base URL}` mapping. Auth
// is selected per endpoint, not per host or path prefix: the futures
// host serves unsigned market-data GETs alongside both HMAC and
// EIP-712 signed endpoints, so a prefix rule would over-sign the
// public ones.
var routeTable = map[string]Route{
	"/api/v1/exchangeInfo":           {Scheme: SchemeNone, Market: MarketSpot},
	"/api/v1/ticker/bookTicker":      {Scheme: SchemeNone, Market: MarketSpot},
	"/api/v1/account":                {Scheme: SchemeHMAC, Market: MarketSpot},
	"/api/v1/order":                  {Scheme: SchemeHMAC, Market: MarketSpot},
	"/fapi/v1/exchangeInfo":          {Scheme: SchemeNone, Market: MarketPerp},
	"/fapi/v1/ticker/bookTicker":     {Scheme: SchemeNone, Market: MarketPerp},
	"/fapi/v1/fundingRate":           {Scheme: SchemeNone, Market: MarketPerp},
	"/fapi/v1/leverage":              {Scheme: SchemeHMAC, Market: MarketPerp},
	"/fapi/v1/income":                {Scheme: SchemeHMAC, Market: MarketPerp},
	"/fapi/v1/userTrades":            {Scheme: SchemeHMAC, Market: MarketPerp},
	"/fapi/v3/account":               {Scheme: SchemeEIP712, Market: MarketPerp},
	"/fapi/v3/order":                 {Scheme: SchemeEIP712, Market: MarketPerp},
	"/fapi/v3/asset/wallet/transfer": {Scheme: SchemeEIP712, Market: MarketPerp},
}

// RouteFor resolves the signer scheme and market for an exact request
// path. A path absent from the table is treated as unsigned spot —
// every signed AsterDex route is listed explicitly above, so an
// unmatched path is by construction a public endpoint this module
// hasn't been taught about yet.
func RouteFor(path string) Route {
	if r, ok := routeTable[path]; ok {
		r.Path = path
		return r
	}
	return Route{Path: path, Scheme: SchemeNone, Market: MarketSpot}
}

// BaseURLs holds the two venue hostnames a configured client talks to.
type BaseURLs struct {
	Spot string
	Perp string
}

// DefaultBaseURLs are AsterDex's production hosts.
func DefaultBaseURLs() BaseURLs {
	return BaseURLs{
		Spot: "https://sapi.asterdex.com",
		Perp: "https://fapi.asterdex.com",
	}
}

// BaseURLFor returns the configured base URL for the market a route
// targets.
func (b BaseURLs) BaseURLFor(m Market) string {
	if m == MarketPerp {
		return b.Perp
	}
	return b.Spot
}
