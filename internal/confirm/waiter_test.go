package confirm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/submit"
)

type fakeClient struct {
	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
	errAfter int // return a transient error for the first N polls
	polls    int
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(5000), nil }
func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeClient) BaseFee(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.polls <= f.errAfter {
		return nil, errors.New("not found")
	}
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

const txHash = "0x000000000000000000000000000000000000000000000000000000000000beef"

func pendingRecord() *submit.TxRecord {
	return &submit.TxRecord{Hash: txHash, Status: submit.TxStatusPending}
}

func fastOptions() Options {
	return Options{PollInterval: time.Millisecond, Timeout: 100 * time.Millisecond}
}

func TestWaitConfirms(t *testing.T) {
	client := &fakeClient{
		receipts: map[common.Hash]*types.Receipt{
			common.HexToHash(txHash): {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42)},
		},
		errAfter: 2,
	}
	record := pendingRecord()
	if err := NewWaiter(client, fastOptions()).Wait(context.Background(), record); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if record.Status != submit.TxStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", record.Status)
	}
}

func TestWaitDetectsRevert(t *testing.T) {
	client := &fakeClient{
		receipts: map[common.Hash]*types.Receipt{
			common.HexToHash(txHash): {Status: types.ReceiptStatusFailed},
		},
	}
	record := pendingRecord()
	err := NewWaiter(client, fastOptions()).Wait(context.Background(), record)
	if clierr.CodeOf(err) != clierr.CodeSubmission {
		t.Fatalf("expected submission error for revert, got %v", err)
	}
	if record.Status != submit.TxStatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
}

func TestWaitTimesOutAsTimedOutNotFailed(t *testing.T) {
	// No receipt ever appears. The record must end as timed_out, never
	// failed: the transaction may still land after we stop watching.
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{}}
	record := pendingRecord()
	err := NewWaiter(client, Options{PollInterval: time.Millisecond, Timeout: 20 * time.Millisecond}).Wait(context.Background(), record)
	if clierr.CodeOf(err) != clierr.CodeTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if record.Status != submit.TxStatusTimedOut {
		t.Fatalf("status = %s, want timed_out", record.Status)
	}
	if record.Status == submit.TxStatusFailed {
		t.Fatal("a timeout must never be reported as failure")
	}
}

func TestWaitRequiresPendingRecord(t *testing.T) {
	client := &fakeClient{}
	record := &submit.TxRecord{Hash: txHash, Status: submit.TxStatusConfirmed}
	if err := NewWaiter(client, fastOptions()).Wait(context.Background(), record); err == nil {
		t.Fatal("expected error for non-pending record")
	}
	if err := NewWaiter(client, fastOptions()).Wait(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}
