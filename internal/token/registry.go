package token

import (
	"fmt"
	"sort"
	"strings"

	clierr "github.com/gustavo/chainagent/internal/errors"
)

// Kind distinguishes the chain's native currency from ERC20 fungibles.
type Kind string

const (
	KindNative   Kind = "native"
	KindFungible Kind = "fungible"
)

// Descriptor is the immutable description of one token on one chain.
// Address is empty for the native currency.
type Descriptor struct {
	Symbol      string
	DisplayName string
	Decimals    int
	Kind        Kind
	Address     string
}

// IsNative reports whether the descriptor is the chain's native currency.
func (d Descriptor) IsNative() bool { return d.Kind == KindNative }

// Registry resolves symbols and contract addresses for a single chain.
// Lookups are case-insensitive; exactly one descriptor exists per symbol.
type Registry struct {
	chainID   int64
	bySymbol  map[string]Descriptor
	byAddress map[string]Descriptor
}

// Bootstrap token tables per chain. Kept deliberately small: the registry is
// a collaborator boundary, not a metadata service.
var tokensByChainID = map[int64][]Descriptor{
	5000: {
		{Symbol: "MNT", DisplayName: "Mantle", Decimals: 18, Kind: KindNative},
		{Symbol: "WMNT", DisplayName: "Wrapped Mantle", Decimals: 18, Kind: KindFungible, Address: "0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8"},
		{Symbol: "USDC", DisplayName: "USD Coin", Decimals: 6, Kind: KindFungible, Address: "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9"},
		{Symbol: "USDT", DisplayName: "Tether USD", Decimals: 6, Kind: KindFungible, Address: "0x201EBa5CC46D216Ce6DC03F6a759e8E766e956aE"},
		{Symbol: "WETH", DisplayName: "Wrapped Ether", Decimals: 18, Kind: KindFungible, Address: "0xdEAddEaDdeadDEadDEADDEAddEADDEAddead1111"},
		{Symbol: "METH", DisplayName: "Mantle Staked Ether", Decimals: 18, Kind: KindFungible, Address: "0xcDA86A272531e8640cD7F1a92c01839911B90bb0"},
		{Symbol: "LEND", DisplayName: "Lendle", Decimals: 18, Kind: KindFungible, Address: "0x25356aeca4210eF7553140edb9b8026089E49396"},
	},
	1: {
		{Symbol: "ETH", DisplayName: "Ether", Decimals: 18, Kind: KindNative},
		{Symbol: "WETH", DisplayName: "Wrapped Ether", Decimals: 18, Kind: KindFungible, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
		{Symbol: "USDC", DisplayName: "USD Coin", Decimals: 6, Kind: KindFungible, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		{Symbol: "USDT", DisplayName: "Tether USD", Decimals: 6, Kind: KindFungible, Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
		{Symbol: "DAI", DisplayName: "Dai Stablecoin", Decimals: 18, Kind: KindFungible, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
	},
	8453: {
		{Symbol: "ETH", DisplayName: "Ether", Decimals: 18, Kind: KindNative},
		{Symbol: "WETH", DisplayName: "Wrapped Ether", Decimals: 18, Kind: KindFungible, Address: "0x4200000000000000000000000000000000000006"},
		{Symbol: "USDC", DisplayName: "USD Coin", Decimals: 6, Kind: KindFungible, Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
	},
	42161: {
		{Symbol: "ETH", DisplayName: "Ether", Decimals: 18, Kind: KindNative},
		{Symbol: "WETH", DisplayName: "Wrapped Ether", Decimals: 18, Kind: KindFungible, Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"},
		{Symbol: "USDC", DisplayName: "USD Coin", Decimals: 6, Kind: KindFungible, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"},
		{Symbol: "USDT", DisplayName: "Tether USD", Decimals: 6, Kind: KindFungible, Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9"},
	},
}

// ForChain builds the registry for a chain id.
func ForChain(chainID int64) (*Registry, error) {
	tokens, ok := tokensByChainID[chainID]
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no token registry for chain id %d", chainID))
	}
	reg := &Registry{
		chainID:   chainID,
		bySymbol:  make(map[string]Descriptor, len(tokens)),
		byAddress: make(map[string]Descriptor, len(tokens)),
	}
	for _, tok := range tokens {
		reg.bySymbol[strings.ToUpper(tok.Symbol)] = tok
		if tok.Address != "" {
			reg.byAddress[strings.ToLower(tok.Address)] = tok
		}
	}
	return reg, nil
}

// ChainID returns the chain the registry was built for.
func (r *Registry) ChainID() int64 { return r.chainID }

// BySymbol resolves a case-normalized symbol.
func (r *Registry) BySymbol(symbol string) (Descriptor, bool) {
	tok, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return tok, ok
}

// ByAddress resolves a contract address, case-insensitively.
func (r *Registry) ByAddress(address string) (Descriptor, bool) {
	tok, ok := r.byAddress[strings.ToLower(strings.TrimSpace(address))]
	return tok, ok
}

// Symbols lists registered symbols, native currency first.
func (r *Registry) Symbols() []string {
	var native string
	rest := make([]string, 0, len(r.bySymbol))
	for sym, tok := range r.bySymbol {
		if tok.IsNative() {
			native = sym
			continue
		}
		rest = append(rest, sym)
	}
	sort.Strings(rest)
	if native != "" {
		return append([]string{native}, rest...)
	}
	return rest
}
