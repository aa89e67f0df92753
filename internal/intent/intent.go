package intent

import (
	"fmt"
	"strings"

	"github.com/gustavo/chainagent/internal/token"
)

// Kind is one of the supported financial operations.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindSwap     Kind = "swap"
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindBorrow   Kind = "borrow"
	KindRepay    Kind = "repay"
	KindStake    Kind = "stake"
	KindUnstake  Kind = "unstake"
)

// Kinds lists every supported action kind.
func Kinds() []Kind {
	return []Kind{KindTransfer, KindSwap, KindDeposit, KindWithdraw, KindBorrow, KindRepay, KindStake, KindUnstake}
}

// ActionRequest is the typed request extracted from free-form text. Immutable
// once constructed; produces exactly one outcome.
type ActionRequest struct {
	Kind         Kind
	Amount       string // normalized decimal string
	Token        token.Descriptor
	QuoteToken   *token.Descriptor // swap output token
	Counterparty string            // transfer recipient, canonical form
	Venue        string            // protocol name mentioned in the text, lowercase
	Raw          string
}

// Describe renders the request back into canonical instruction form. Used in
// run records and by round-trip tests.
func (r ActionRequest) Describe() string {
	switch r.Kind {
	case KindTransfer:
		return fmt.Sprintf("send %s %s to %s", r.Amount, r.Token.Symbol, r.Counterparty)
	case KindSwap:
		quote := ""
		if r.QuoteToken != nil {
			quote = r.QuoteToken.Symbol
		}
		return fmt.Sprintf("swap %s %s for %s", r.Amount, r.Token.Symbol, quote)
	default:
		out := fmt.Sprintf("%s %s %s", r.Kind, r.Amount, r.Token.Symbol)
		if r.Venue != "" {
			out += " on " + r.Venue
		}
		return out
	}
}

// SpendsERC20 reports whether executing the request moves an ERC20 balance
// out of the wallet (and therefore may require an allowance).
func (r ActionRequest) SpendsERC20() bool {
	if r.Token.IsNative() {
		return false
	}
	switch r.Kind {
	case KindTransfer, KindSwap, KindDeposit, KindRepay, KindStake:
		return true
	default:
		return false
	}
}

// AddressFormat is the chain-specific address syntax capability. EVM chains
// use fixed-length hex; other chain families plug in their own format.
type AddressFormat interface {
	Valid(raw string) bool
	Normalize(raw string) string
}

func normalizeVenue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
