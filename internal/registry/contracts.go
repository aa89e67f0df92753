package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contracts lists the protocol deployments an action plan may target on one
// chain. Zero-valued fields mean that protocol is not available there.
type Contracts struct {
	LendingPool          string
	LendingPoolName      string
	ProtocolDataProvider string
	PriceOracle          string
	SwapRouter           string
	SwapRouterName       string
	SwapQuoter           string
	SwapDefaultFee       int64
	StakingVault         string
	StakingVaultName     string
	WrappedNative        string
}

var contractsByChainID = map[int64]Contracts{
	// Mantle: Lendle (Aave v2 fork) + Agni (Uniswap v3 fork).
	5000: {
		LendingPool:          "0xCFa5aE7c2CE8Fadc6426C1ff872cA45378Fb7cF3",
		LendingPoolName:      "Lendle",
		ProtocolDataProvider: "0x552b9e4bae485C4B7F540777d7D25614CdB84773",
		PriceOracle:          "0x870c9692Ab04944C86ec6FEeF63F261226506EfC",
		SwapRouter:           "0x319B69888b0d11cEC22caA5034e25FfFBDc88421",
		SwapRouterName:       "Agni",
		SwapQuoter:           "0xc4aaDc921E1cdb66c5300Bc158a313292923C0cb",
		SwapDefaultFee:       2500,
		StakingVault:         "0xeD884f0460A634C69dbb7def54858465808AACEf",
		StakingVaultName:     "Mantle Staking",
		WrappedNative:        "0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8",
	},
	1: {
		LendingPool:          "0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9",
		LendingPoolName:      "Aave",
		ProtocolDataProvider: "0x057835Ad21a177dbdd3090bB1CAE03EaCF78Fc6d",
		PriceOracle:          "0xA50ba011c48153De246E5192C8f9258A2ba79Ca9",
		SwapRouter:           "0xE592427A0AEce92De3Edee1F18E0157C05861564",
		SwapRouterName:       "Uniswap",
		SwapQuoter:           "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		SwapDefaultFee:       3000,
		WrappedNative:        "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	},
}

// ForChain returns the protocol contracts for a chain id.
func ForChain(chainID int64) (Contracts, bool) {
	c, ok := contractsByChainID[chainID]
	return c, ok
}

// MustABI parses a JSON ABI fragment at init time.
func MustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
