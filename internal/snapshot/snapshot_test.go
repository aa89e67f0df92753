package snapshot

import (
	"math/big"
	"testing"
)

func TestFormatHealthFactor(t *testing.T) {
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	hf := new(big.Int).Mul(big.NewInt(123), new(big.Int).Div(wad, big.NewInt(100)))
	if got := FormatHealthFactor(hf); got != "1.23" {
		t.Fatalf("FormatHealthFactor(1.23) = %q", got)
	}
	if got := FormatHealthFactor(wad); got != "1.00" {
		t.Fatalf("FormatHealthFactor(1.0) = %q", got)
	}
	if got := FormatHealthFactor(nil); got != "0" {
		t.Fatalf("FormatHealthFactor(nil) = %q", got)
	}

	// Debt-free accounts report an absurdly large ratio.
	noDebt := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	if got := FormatHealthFactor(noDebt); got != "∞" {
		t.Fatalf("FormatHealthFactor(no debt) = %q, want ∞", got)
	}
	if got := FormatHealthFactor(maxHealthFactor); got != "∞" {
		t.Fatalf("FormatHealthFactor(max) = %q, want ∞", got)
	}
}

func TestFormatBaseValue(t *testing.T) {
	if got := FormatBaseValue(big.NewInt(150_00000000)); got != "150" {
		t.Fatalf("FormatBaseValue(150 USD) = %q", got)
	}
	if got := FormatBaseValue(big.NewInt(50_000_000)); got != "0.5" {
		t.Fatalf("FormatBaseValue(0.5 USD) = %q", got)
	}
	if got := FormatBaseValue(nil); got != "0" {
		t.Fatalf("FormatBaseValue(nil) = %q", got)
	}
}

func TestScopeForKind(t *testing.T) {
	cases := map[string]Scope{
		"transfer": ScopeWallet,
		"swap":     ScopeWallet,
		"deposit":  ScopeLending,
		"borrow":   ScopeLending,
		"repay":    ScopeLending,
		"stake":    ScopeStaking,
		"unstake":  ScopeStaking,
		"other":    ScopeWallet,
	}
	for kind, want := range cases {
		if got := ScopeForKind(kind); got != want {
			t.Fatalf("ScopeForKind(%q) = %d, want %d", kind, got, want)
		}
	}
}
