package chain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/gustavo/chainagent/internal/errors"
)

// Context is an immutable descriptor of a target chain. One Context is built
// at startup (defaults plus config overrides) and shared read-only by every
// request.
type Context struct {
	Name            string
	Slug            string
	ChainID         int64
	RPCURL          string
	ExplorerBaseURL string
	NativeSymbol    string
	NativeDecimals  int
}

var chainBySlug = map[string]Context{
	"mantle": {
		Name:            "Mantle",
		Slug:            "mantle",
		ChainID:         5000,
		RPCURL:          "https://rpc.mantle.xyz",
		ExplorerBaseURL: "https://mantlescan.xyz",
		NativeSymbol:    "MNT",
		NativeDecimals:  18,
	},
	"ethereum": {
		Name:            "Ethereum",
		Slug:            "ethereum",
		ChainID:         1,
		RPCURL:          "https://eth.llamarpc.com",
		ExplorerBaseURL: "https://etherscan.io",
		NativeSymbol:    "ETH",
		NativeDecimals:  18,
	},
	"base": {
		Name:            "Base",
		Slug:            "base",
		ChainID:         8453,
		RPCURL:          "https://mainnet.base.org",
		ExplorerBaseURL: "https://basescan.org",
		NativeSymbol:    "ETH",
		NativeDecimals:  18,
	},
	"arbitrum": {
		Name:            "Arbitrum",
		Slug:            "arbitrum",
		ChainID:         42161,
		RPCURL:          "https://arb1.arbitrum.io/rpc",
		ExplorerBaseURL: "https://arbiscan.io",
		NativeSymbol:    "ETH",
		NativeDecimals:  18,
	},
}

var chainByID = func() map[int64]Context {
	out := make(map[int64]Context, len(chainBySlug))
	for _, c := range chainBySlug {
		out[c.ChainID] = c
	}
	return out
}()

// Resolve accepts a chain slug or a numeric chain id.
func Resolve(ref string) (Context, error) {
	clean := strings.ToLower(strings.TrimSpace(ref))
	if clean == "" {
		return Context{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if c, ok := chainBySlug[clean]; ok {
		return c, nil
	}
	if id, err := strconv.ParseInt(clean, 10, 64); err == nil {
		if c, ok := chainByID[id]; ok {
			return c, nil
		}
	}
	return Context{}, clierr.New(clierr.CodeUnsupported,
		fmt.Sprintf("unsupported chain %q (supported: %s)", ref, strings.Join(Slugs(), ", ")))
}

// Slugs returns the supported chain slugs, sorted.
func Slugs() []string {
	out := make([]string, 0, len(chainBySlug))
	for slug := range chainBySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// WithRPCURL returns a copy of the context with the RPC endpoint replaced.
func (c Context) WithRPCURL(url string) Context {
	if strings.TrimSpace(url) == "" {
		return c
	}
	c.RPCURL = strings.TrimSpace(url)
	return c
}

// WithExplorer returns a copy of the context with the explorer base replaced.
func (c Context) WithExplorer(base string) Context {
	if strings.TrimSpace(base) == "" {
		return c
	}
	c.ExplorerBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	return c
}

// TxURL builds an explorer link for a transaction hash.
func (c Context) TxURL(hash string) string {
	base := strings.TrimRight(c.ExplorerBaseURL, "/")
	if base == "" {
		return hash
	}
	return base + "/tx/" + hash
}

// AddressURL builds an explorer link for an account address.
func (c Context) AddressURL(addr string) string {
	base := strings.TrimRight(c.ExplorerBaseURL, "/")
	if base == "" {
		return addr
	}
	return base + "/address/" + addr
}
