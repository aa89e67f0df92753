package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20ABI,
		LendingPoolABI,
		ProtocolDataProviderABI,
		PriceOracleABI,
		SwapQuoterABI,
		SwapRouterABI,
		StakingVaultABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestMantleContracts(t *testing.T) {
	c, ok := ForChain(5000)
	if !ok {
		t.Fatal("expected contracts for mantle")
	}
	if c.LendingPool == "" || c.LendingPoolName == "" {
		t.Fatalf("missing lending pool: %+v", c)
	}
	if c.SwapRouter == "" || c.SwapQuoter == "" || c.SwapDefaultFee == 0 {
		t.Fatalf("missing swap venue: %+v", c)
	}
	if c.StakingVault == "" || c.WrappedNative == "" {
		t.Fatalf("missing staking vault or wrapped native: %+v", c)
	}
}

func TestUnsupportedChainHasNoContracts(t *testing.T) {
	if _, ok := ForChain(424242); ok {
		t.Fatal("did not expect contracts for unsupported chain")
	}
}
