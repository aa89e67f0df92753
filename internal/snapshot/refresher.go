package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gustavo/chainagent/internal/chainclient"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/registry"
	"github.com/gustavo/chainagent/internal/token"
)

var (
	lendingPoolABI  = registry.MustABI(registry.LendingPoolABI)
	dataProviderABI = registry.MustABI(registry.ProtocolDataProviderABI)
	priceOracleABI  = registry.MustABI(registry.PriceOracleABI)
	stakingVaultABI = registry.MustABI(registry.StakingVaultABI)
)

// Refresher re-reads account state. Must only be invoked for post-mutation
// reporting after the transaction is confirmed; reading earlier would report
// stale state.
type Refresher struct {
	client    chainclient.Client
	contracts registry.Contracts
	owner     common.Address
}

func NewRefresher(client chainclient.Client, contracts registry.Contracts, owner common.Address) *Refresher {
	return &Refresher{client: client, contracts: contracts, owner: owner}
}

// Refresh reads exactly the fields the scope requires for the given token.
func (r *Refresher) Refresh(ctx context.Context, scope Scope, tok token.Descriptor) (AccountSnapshot, error) {
	snap := AccountSnapshot{Token: tok}

	balance, err := r.walletBalance(ctx, tok)
	if err != nil {
		return snap, err
	}
	snap.WalletBalance = balance

	switch scope {
	case ScopeLending:
		data, err := r.LendingAccountData(ctx)
		if err != nil {
			return snap, err
		}
		snap.TotalCollateralValue = data.TotalCollateral
		snap.TotalDebtValue = data.TotalDebt
		snap.AvailableToBorrowValue = data.AvailableBorrows
		snap.HealthFactor = data.HealthFactor
		if !tok.IsNative() {
			reserve, err := r.UserReserveData(ctx, common.HexToAddress(tok.Address))
			if err != nil {
				return snap, err
			}
			snap.SuppliedBalance = reserve.Supplied
			snap.BorrowedBalance = reserve.VariableDebt
		}
	case ScopeStaking:
		staked, err := r.StakedBalance(ctx)
		if err != nil {
			return snap, err
		}
		snap.StakedBalance = staked
	}
	return snap, nil
}

func (r *Refresher) walletBalance(ctx context.Context, tok token.Descriptor) (*big.Int, error) {
	if tok.IsNative() {
		balance, err := r.client.BalanceAt(ctx, r.owner)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
		}
		return balance, nil
	}
	return chainclient.TokenBalance(ctx, r.client, common.HexToAddress(tok.Address), r.owner)
}

// LendingAccountData mirrors the pool's getUserAccountData view.
type LendingAccountData struct {
	TotalCollateral      *big.Int
	TotalDebt            *big.Int
	AvailableBorrows     *big.Int
	LiquidationThreshold *big.Int // basis points
	LTV                  *big.Int // basis points
	HealthFactor         *big.Int // 18 decimals
}

func (r *Refresher) LendingAccountData(ctx context.Context) (LendingAccountData, error) {
	if r.contracts.LendingPool == "" {
		return LendingAccountData{}, clierr.New(clierr.CodeUnsupported, "no lending pool deployed on this chain")
	}
	pool := common.HexToAddress(r.contracts.LendingPool)
	data, err := lendingPoolABI.Pack("getUserAccountData", r.owner)
	if err != nil {
		return LendingAccountData{}, clierr.Wrap(clierr.CodeInternal, "pack getUserAccountData calldata", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data})
	if err != nil {
		return LendingAccountData{}, clierr.Wrap(clierr.CodeUnavailable, "read lending account data", err)
	}
	out, err := lendingPoolABI.Unpack("getUserAccountData", raw)
	if err != nil || len(out) < 6 {
		return LendingAccountData{}, clierr.Wrap(clierr.CodeUnavailable, "decode lending account data", err)
	}
	values := make([]*big.Int, 6)
	for i := 0; i < 6; i++ {
		v, ok := out[i].(*big.Int)
		if !ok {
			return LendingAccountData{}, clierr.New(clierr.CodeUnavailable, "invalid lending account data response")
		}
		values[i] = v
	}
	return LendingAccountData{
		TotalCollateral:      values[0],
		TotalDebt:            values[1],
		AvailableBorrows:     values[2],
		LiquidationThreshold: values[3],
		LTV:                  values[4],
		HealthFactor:         values[5],
	}, nil
}

// UserReserveData carries the per-token supplied and borrowed balances from
// the protocol data provider.
type UserReserveData struct {
	Supplied     *big.Int
	StableDebt   *big.Int
	VariableDebt *big.Int
}

func (r *Refresher) UserReserveData(ctx context.Context, asset common.Address) (UserReserveData, error) {
	if r.contracts.ProtocolDataProvider == "" {
		return UserReserveData{}, clierr.New(clierr.CodeUnsupported, "no protocol data provider deployed on this chain")
	}
	provider := common.HexToAddress(r.contracts.ProtocolDataProvider)
	data, err := dataProviderABI.Pack("getUserReserveData", asset, r.owner)
	if err != nil {
		return UserReserveData{}, clierr.Wrap(clierr.CodeInternal, "pack getUserReserveData calldata", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &provider, Data: data})
	if err != nil {
		return UserReserveData{}, clierr.Wrap(clierr.CodeUnavailable, "read user reserve data", err)
	}
	out, err := dataProviderABI.Unpack("getUserReserveData", raw)
	if err != nil || len(out) < 3 {
		return UserReserveData{}, clierr.Wrap(clierr.CodeUnavailable, "decode user reserve data", err)
	}
	supplied, ok1 := out[0].(*big.Int)
	stable, ok2 := out[1].(*big.Int)
	variable, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return UserReserveData{}, clierr.New(clierr.CodeUnavailable, "invalid user reserve data response")
	}
	return UserReserveData{Supplied: supplied, StableDebt: stable, VariableDebt: variable}, nil
}

// AssetValue converts a token amount into the pool's base currency
// (8 decimals) using the protocol price oracle.
func (r *Refresher) AssetValue(ctx context.Context, tok token.Descriptor, amount *big.Int) (*big.Int, error) {
	if r.contracts.PriceOracle == "" {
		return nil, clierr.New(clierr.CodeUnsupported, "no price oracle deployed on this chain")
	}
	asset := common.HexToAddress(tok.Address)
	if tok.IsNative() {
		asset = common.HexToAddress(r.contracts.WrappedNative)
	}
	oracle := common.HexToAddress(r.contracts.PriceOracle)
	data, err := priceOracleABI.Pack("getAssetPrice", asset)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack getAssetPrice calldata", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &oracle, Data: data})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read asset price", err)
	}
	out, err := priceOracleABI.Unpack("getAssetPrice", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode asset price", err)
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid asset price response")
	}
	// value = amount * price / 10^decimals, in the oracle's 8-decimal base.
	value := new(big.Int).Mul(amount, price)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tok.Decimals)), nil)
	return value.Div(value, scale), nil
}

// StakedBalance reads the account's balance in the staking vault.
func (r *Refresher) StakedBalance(ctx context.Context) (*big.Int, error) {
	if r.contracts.StakingVault == "" {
		return nil, clierr.New(clierr.CodeUnsupported, "no staking vault deployed on this chain")
	}
	vault := common.HexToAddress(r.contracts.StakingVault)
	data, err := stakingVaultABI.Pack("stakedBalanceOf", r.owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack stakedBalanceOf calldata", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &vault, Data: data})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read staked balance", err)
	}
	out, err := stakingVaultABI.Unpack("stakedBalanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode staked balance", err)
	}
	staked, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid staked balance response")
	}
	return staked, nil
}
