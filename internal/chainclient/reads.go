package chainclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/registry"
)

var erc20ABI = registry.MustABI(registry.ERC20ABI)

// TokenBalance reads an ERC20 balance for an account.
func TokenBalance(ctx context.Context, client Client, token, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf calldata", err)
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read token balance", err)
	}
	return unpackUint(erc20ABI, "balanceOf", raw)
}

// Allowance reads the ERC20 allowance an owner has granted a spender.
func Allowance(ctx context.Context, client Client, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance calldata", err)
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: data})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read token allowance", err)
	}
	return unpackUint(erc20ABI, "allowance", raw)
}

func unpackUint(parsed abi.ABI, method string, raw []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method+" response", err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid "+method+" response")
	}
	return value, nil
}
