package preflight

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gustavo/chainagent/internal/chainclient"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/intent"
	"github.com/gustavo/chainagent/internal/registry"
	"github.com/gustavo/chainagent/internal/snapshot"
	"github.com/gustavo/chainagent/internal/token"
)

// Reason identifies why validation refused an action.
type Reason string

const (
	ReasonInsufficientBalance      Reason = "insufficient_balance"
	ReasonInsufficientCollateral   Reason = "insufficient_collateral"
	ReasonBelowMinimumHealthFactor Reason = "below_minimum_health_factor"
	ReasonNoOutstandingDebt        Reason = "no_outstanding_debt"
	ReasonUnsupportedToken         Reason = "unsupported_token"
	ReasonInvalidCounterparty      Reason = "invalid_counterparty"
	ReasonUnsupportedProtocol      Reason = "unsupported_protocol"
)

// Failure carries the specific refusal reason. It always travels wrapped in
// a CodeValidation error.
type Failure struct {
	Reason Reason
	Detail string
}

func (f *Failure) Error() string { return f.Detail }

func refuse(reason Reason, detail string) error {
	return clierr.Wrap(clierr.CodeValidation, detail, &Failure{Reason: reason, Detail: detail})
}

// FailureReason extracts the refusal reason from a validation error.
func FailureReason(err error) (Reason, bool) {
	var f *Failure
	if typed, ok := clierr.As(err); ok {
		if inner, ok := typed.Cause.(*Failure); ok {
			f = inner
		}
	}
	if f == nil {
		return "", false
	}
	return f.Reason, true
}

// Policy holds the tunable solvency thresholds. The health-factor floor is a
// policy choice, not a protocol constant.
type Policy struct {
	MinHealthFactor float64 // e.g. 1.05
}

// Validator runs every read-only gate before any mutation is attempted. All
// checks are idempotent chain reads; the same inputs against unchanged state
// yield the same verdict.
type Validator struct {
	client    chainclient.Client
	contracts registry.Contracts
	refresher *snapshot.Refresher
	owner     common.Address
	policy    Policy
}

func NewValidator(client chainclient.Client, contracts registry.Contracts, owner common.Address, policy Policy) *Validator {
	return &Validator{
		client:    client,
		contracts: contracts,
		refresher: snapshot.NewRefresher(client, contracts, owner),
		owner:     owner,
		policy:    policy,
	}
}

// Validate returns nil or a CodeValidation error wrapping a Failure. It must
// run to completion before the orchestrator submits anything.
func (v *Validator) Validate(ctx context.Context, req intent.ActionRequest) error {
	if err := v.checkProtocol(req); err != nil {
		return err
	}
	amount, err := token.ToBaseUnits(req.Amount, req.Token.Decimals)
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}

	switch req.Kind {
	case intent.KindTransfer:
		if req.Counterparty == "" || !common.IsHexAddress(req.Counterparty) {
			return refuse(ReasonInvalidCounterparty, "transfer requires a valid counterparty address")
		}
		return v.checkSpendingBalance(ctx, req.Token, amount)
	case intent.KindSwap:
		if req.QuoteToken == nil {
			return clierr.New(clierr.CodeUsage, "swap requires an output token")
		}
		return v.checkSpendingBalance(ctx, req.Token, amount)
	case intent.KindDeposit, intent.KindStake:
		return v.checkSpendingBalance(ctx, req.Token, amount)
	case intent.KindWithdraw:
		return v.checkSupplied(ctx, req.Token, amount)
	case intent.KindBorrow:
		return v.checkBorrow(ctx, req.Token, amount)
	case intent.KindRepay:
		if err := v.checkOutstandingDebt(ctx, req.Token); err != nil {
			return err
		}
		return v.checkSpendingBalance(ctx, req.Token, amount)
	case intent.KindUnstake:
		return v.checkStaked(ctx, amount)
	default:
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported action kind %q", req.Kind))
	}
}

func (v *Validator) checkProtocol(req intent.ActionRequest) error {
	switch req.Kind {
	case intent.KindDeposit, intent.KindWithdraw, intent.KindBorrow, intent.KindRepay:
		if v.contracts.LendingPool == "" {
			return refuse(ReasonUnsupportedProtocol, "no lending protocol is available on this chain")
		}
		if req.Token.IsNative() {
			return refuse(ReasonUnsupportedToken, "the lending pool only accepts ERC20 assets; wrap the native token first")
		}
		if req.Venue != "" && req.Venue != strings.ToLower(v.contracts.LendingPoolName) {
			return refuse(ReasonUnsupportedProtocol, fmt.Sprintf("unknown lending protocol %q; this chain uses %s", req.Venue, v.contracts.LendingPoolName))
		}
	case intent.KindSwap:
		if v.contracts.SwapRouter == "" {
			return refuse(ReasonUnsupportedProtocol, "no swap venue is available on this chain")
		}
	case intent.KindStake, intent.KindUnstake:
		if v.contracts.StakingVault == "" {
			return refuse(ReasonUnsupportedProtocol, "no staking vault is available on this chain")
		}
		if req.Token.IsNative() {
			return refuse(ReasonUnsupportedToken, "the staking vault only accepts ERC20 tokens; wrap the native token first")
		}
	}
	return nil
}

func (v *Validator) checkSpendingBalance(ctx context.Context, tok token.Descriptor, amount *big.Int) error {
	var balance *big.Int
	var err error
	if tok.IsNative() {
		balance, err = v.client.BalanceAt(ctx, v.owner)
		if err != nil {
			return clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
		}
	} else {
		balance, err = chainclient.TokenBalance(ctx, v.client, common.HexToAddress(tok.Address), v.owner)
		if err != nil {
			return err
		}
	}
	if balance.Cmp(amount) < 0 {
		return refuse(ReasonInsufficientBalance, fmt.Sprintf(
			"wallet holds %s %s but the action needs %s %s",
			token.FormatBaseUnits(balance, tok.Decimals), tok.Symbol,
			token.FormatBaseUnits(amount, tok.Decimals), tok.Symbol,
		))
	}
	return nil
}

func (v *Validator) checkSupplied(ctx context.Context, tok token.Descriptor, amount *big.Int) error {
	reserve, err := v.refresher.UserReserveData(ctx, common.HexToAddress(tok.Address))
	if err != nil {
		return err
	}
	if reserve.Supplied.Cmp(amount) < 0 {
		return refuse(ReasonInsufficientBalance, fmt.Sprintf(
			"supplied balance is %s %s, cannot withdraw %s %s",
			token.FormatBaseUnits(reserve.Supplied, tok.Decimals), tok.Symbol,
			token.FormatBaseUnits(amount, tok.Decimals), tok.Symbol,
		))
	}
	return nil
}

func (v *Validator) checkBorrow(ctx context.Context, tok token.Descriptor, amount *big.Int) error {
	data, err := v.refresher.LendingAccountData(ctx)
	if err != nil {
		return err
	}
	value, err := v.refresher.AssetValue(ctx, tok, amount)
	if err != nil {
		return err
	}
	if data.AvailableBorrows == nil || data.AvailableBorrows.Cmp(value) < 0 {
		return refuse(ReasonInsufficientCollateral, fmt.Sprintf(
			"borrowing %s %s (%s USD) exceeds the available borrowing power of %s USD",
			token.FormatBaseUnits(amount, tok.Decimals), tok.Symbol,
			snapshot.FormatBaseValue(value), snapshot.FormatBaseValue(data.AvailableBorrows),
		))
	}
	projected := projectedHealthFactor(data, value)
	if projected != nil && projected.Cmp(v.minHealthFactorWad()) < 0 {
		return refuse(ReasonBelowMinimumHealthFactor, fmt.Sprintf(
			"borrow would drop the health factor to %s, below the configured floor of %.2f",
			snapshot.FormatHealthFactor(projected), v.policy.MinHealthFactor,
		))
	}
	return nil
}

func (v *Validator) checkOutstandingDebt(ctx context.Context, tok token.Descriptor) error {
	reserve, err := v.refresher.UserReserveData(ctx, common.HexToAddress(tok.Address))
	if err != nil {
		return err
	}
	debt := new(big.Int).Add(reserve.StableDebt, reserve.VariableDebt)
	if debt.Sign() <= 0 {
		return refuse(ReasonNoOutstandingDebt, fmt.Sprintf("no outstanding %s debt to repay", tok.Symbol))
	}
	return nil
}

func (v *Validator) checkStaked(ctx context.Context, amount *big.Int) error {
	staked, err := v.refresher.StakedBalance(ctx)
	if err != nil {
		return err
	}
	if staked.Cmp(amount) < 0 {
		return refuse(ReasonInsufficientBalance, "staked balance is smaller than the requested unstake amount")
	}
	return nil
}

func (v *Validator) minHealthFactorWad() *big.Int {
	floor := v.policy.MinHealthFactor
	if floor <= 0 {
		floor = 1.05
	}
	wad := new(big.Float).SetFloat64(floor)
	wad.Mul(wad, big.NewFloat(1e18))
	out, _ := wad.Int(nil)
	return out
}

// projectedHealthFactor estimates the post-borrow health factor:
// collateral * liquidationThreshold / (debt + newDebt), all in the pool's
// base currency. Returns nil when the result would be debt-free.
func projectedHealthFactor(data snapshot.LendingAccountData, borrowValue *big.Int) *big.Int {
	newDebt := new(big.Int).Add(data.TotalDebt, borrowValue)
	if newDebt.Sign() <= 0 {
		return nil
	}
	weighted := new(big.Int).Mul(data.TotalCollateral, data.LiquidationThreshold)
	weighted.Div(weighted, big.NewInt(10_000))
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	weighted.Mul(weighted, wad)
	return weighted.Div(weighted, newDebt)
}
