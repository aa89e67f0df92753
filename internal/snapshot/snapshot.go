package snapshot

import (
	"math/big"

	"github.com/gustavo/chainagent/internal/token"
)

// AccountSnapshot is a point-in-time view of the fields relevant to one
// action. It is read fresh before and after a mutation and never cached
// across actions.
type AccountSnapshot struct {
	Token           token.Descriptor
	WalletBalance   *big.Int // base units of Token
	StakedBalance   *big.Int // base units of Token, staking scope only
	SuppliedBalance *big.Int // base units of Token, lending scope only
	BorrowedBalance *big.Int // base units of Token, lending scope only

	// Base-currency values from the lending pool (8 decimals), present for
	// the lending scope. HealthFactor is an 18-decimal fixed-point ratio.
	TotalCollateralValue   *big.Int
	TotalDebtValue         *big.Int
	AvailableToBorrowValue *big.Int
	HealthFactor           *big.Int
}

// Scope selects which state fields an action needs refreshed.
type Scope int

const (
	ScopeWallet Scope = iota
	ScopeLending
	ScopeStaking
)

// ScopeForKind maps an action kind name to its refresh scope.
func ScopeForKind(kind string) Scope {
	switch kind {
	case "deposit", "withdraw", "borrow", "repay":
		return ScopeLending
	case "stake", "unstake":
		return ScopeStaking
	default:
		return ScopeWallet
	}
}

// maxHealthFactor is what Aave-style pools report when there is no debt.
var maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// FormatHealthFactor renders an 18-decimal health factor for display.
func FormatHealthFactor(hf *big.Int) string {
	if hf == nil || hf.Sign() == 0 {
		return "0"
	}
	// Anything absurdly large means "no debt".
	threshold := new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	if hf.Cmp(threshold) > 0 || hf.Cmp(maxHealthFactor) == 0 {
		return "∞"
	}
	whole := new(big.Int).Div(hf, wad)
	frac := new(big.Int).Mod(hf, wad)
	// Two decimal places is enough for a solvency ratio.
	cents := new(big.Int).Div(frac, new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	return whole.String() + "." + pad2(cents.Int64())
}

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func pad2(v int64) string {
	if v < 10 {
		return "0" + big.NewInt(v).String()
	}
	return big.NewInt(v).String()
}

// FormatBaseValue renders an 8-decimal base-currency amount as USD text.
func FormatBaseValue(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return token.FormatBaseUnits(v, 8)
}
