package submit

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gustavo/chainagent/internal/account"
	"github.com/gustavo/chainagent/internal/chainclient"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/pkg/logger"
)

// TxStatus is the lifecycle state of one submitted transaction. A record
// transitions exactly once from Pending to a terminal status.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusTimedOut  TxStatus = "timed_out"
)

// TxRecord describes one on-chain submission.
type TxRecord struct {
	Hash        string   `json:"hash"`
	Nonce       uint64   `json:"nonce"`
	Status      TxStatus `json:"status"`
	Description string   `json:"description,omitempty"`
	Approval    bool     `json:"approval,omitempty"`
	SubmittedAt string   `json:"submitted_at"`
	Error       string   `json:"error,omitempty"`
}

// Terminal reports whether the record reached a final status.
func (r *TxRecord) Terminal() bool {
	return r.Status == TxStatusConfirmed || r.Status == TxStatusFailed || r.Status == TxStatusTimedOut
}

// FeeOptions control gas and fee shaping.
type FeeOptions struct {
	GasMultiplier      float64 // pads the gas estimate, default 1.2
	MaxFeeGwei         string  // optional override
	MaxPriorityFeeGwei string  // optional override
}

// Request describes one transaction to submit. A nil To is not supported;
// contract creation is out of scope. Value may be zero (pure contract call),
// Data may be empty (native value transfer), or both set (payable call).
type Request struct {
	To          common.Address
	Data        []byte
	Value       *big.Int
	Description string
	Approval    bool // allowance-phase transaction, not the action itself
}

// Submitter shapes, signs and broadcasts transactions for one account,
// drawing nonces from the account manager's serialized sequence.
type Submitter struct {
	client  chainclient.Client
	account *account.Manager
	chainID *big.Int
	opts    FeeOptions
}

func NewSubmitter(client chainclient.Client, acct *account.Manager, chainID *big.Int, opts FeeOptions) *Submitter {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &Submitter{client: client, account: acct, chainID: chainID, opts: opts}
}

// Submit estimates, signs and broadcasts the transaction, returning a
// Pending record. The nonce reservation is held across signing and broadcast
// and rolled back when the node rejects the send.
func (s *Submitter) Submit(ctx context.Context, req Request) (*TxRecord, error) {
	if req.Value == nil {
		req.Value = big.NewInt(0)
	}
	from := s.account.Address()
	msg := ethereum.CallMsg{From: from, To: &req.To, Value: req.Value, Data: req.Data}

	gasLimit, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSubmission, "estimate gas", err)
	}
	// Pad the estimate so estimation error does not silently cap execution.
	gasLimit = uint64(float64(gasLimit) * s.opts.GasMultiplier)

	tipCap, err := s.resolveTipCap(ctx)
	if err != nil {
		return nil, err
	}
	feeCap, err := s.resolveFeeCap(ctx, tipCap)
	if err != nil {
		return nil, err
	}

	reservation, err := s.account.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     reservation.Nonce(),
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &req.To,
		Value:     req.Value,
		Data:      req.Data,
	})
	signed, err := s.account.Signer().SignTx(s.chainID, tx)
	if err != nil {
		reservation.Rollback()
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		reservation.Rollback()
		return nil, clierr.Wrap(clierr.CodeSubmission, "broadcast transaction", err)
	}
	reservation.Commit()

	record := &TxRecord{
		Hash:        signed.Hash().Hex(),
		Nonce:       signed.Nonce(),
		Status:      TxStatusPending,
		Description: req.Description,
		Approval:    req.Approval,
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
	logger.Named("submit").Info("transaction broadcast",
		"hash", record.Hash, "nonce", record.Nonce, "to", req.To.Hex(), "gas", gasLimit)
	return record, nil
}

func (s *Submitter) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(s.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(s.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func (s *Submitter) resolveFeeCap(ctx context.Context, tipCap *big.Int) (*big.Int, error) {
	if strings.TrimSpace(s.opts.MaxFeeGwei) != "" {
		v, err := parseGwei(s.opts.MaxFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	baseFee, err := s.client.BaseFee(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest base fee", err)
	}
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
