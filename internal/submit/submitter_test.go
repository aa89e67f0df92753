package submit

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gustavo/chainagent/internal/account"
	clierr "github.com/gustavo/chainagent/internal/errors"
)

type fakeClient struct {
	mu       sync.Mutex
	pending  uint64
	gas      uint64
	tip      *big.Int
	baseFee  *big.Int
	sendErr  error
	sent     []*types.Transaction
	estimErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{gas: 21000, tip: big.NewInt(1_000_000_000), baseFee: big.NewInt(10_000_000_000)}
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(5000), nil }
func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimErr != nil {
		return 0, f.estimErr
	}
	return f.gas, nil
}
func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return f.tip, nil }
func (f *fakeClient) BaseFee(ctx context.Context) (*big.Int, error)          { return f.baseFee, nil }
func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}
func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}

type keySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &keySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *keySigner) Address() common.Address { return s.addr }
func (s *keySigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func newTestSubmitter(t *testing.T, client *fakeClient, opts FeeOptions) (*Submitter, *account.Manager) {
	t.Helper()
	acct := account.NewManager(newKeySigner(t), client)
	return NewSubmitter(client, acct, big.NewInt(5000), opts), acct
}

func TestSubmitBroadcastsSignedTx(t *testing.T) {
	client := newFakeClient()
	s, _ := newTestSubmitter(t, client, FeeOptions{})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	record, err := s.Submit(context.Background(), Request{To: to, Value: big.NewInt(1000), Description: "test transfer"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if record.Status != TxStatusPending {
		t.Fatalf("status = %s, want pending", record.Status)
	}
	if record.Hash == "" {
		t.Fatal("expected a transaction hash")
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}
	tx := client.sent[0]
	if tx.Nonce() != 0 {
		t.Fatalf("nonce = %d, want 0", tx.Nonce())
	}
	// 21000 * 1.2 default padding
	if tx.Gas() != 25200 {
		t.Fatalf("gas = %d, want padded 25200", tx.Gas())
	}
	// feeCap = 2*baseFee + tip
	wantFeeCap := big.NewInt(21_000_000_000)
	if tx.GasFeeCap().Cmp(wantFeeCap) != 0 {
		t.Fatalf("fee cap = %s, want %s", tx.GasFeeCap(), wantFeeCap)
	}
}

func TestSubmitFeeOverrides(t *testing.T) {
	client := newFakeClient()
	s, _ := newTestSubmitter(t, client, FeeOptions{MaxFeeGwei: "30", MaxPriorityFeeGwei: "1.5"})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if _, err := s.Submit(context.Background(), Request{To: to}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tx := client.sent[0]
	if tx.GasFeeCap().Cmp(big.NewInt(30_000_000_000)) != 0 {
		t.Fatalf("fee cap = %s, want 30 gwei", tx.GasFeeCap())
	}
	if tx.GasTipCap().Cmp(big.NewInt(1_500_000_000)) != 0 {
		t.Fatalf("tip cap = %s, want 1.5 gwei", tx.GasTipCap())
	}
}

func TestSubmitRejectsFeeBelowTip(t *testing.T) {
	client := newFakeClient()
	s, _ := newTestSubmitter(t, client, FeeOptions{MaxFeeGwei: "1", MaxPriorityFeeGwei: "2"})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	_, err := s.Submit(context.Background(), Request{To: to})
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestSubmitRollsBackNonceOnSendFailure(t *testing.T) {
	client := newFakeClient()
	client.sendErr = errors.New("node rejected")
	s, acct := newTestSubmitter(t, client, FeeOptions{})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	_, err := s.Submit(context.Background(), Request{To: to})
	if clierr.CodeOf(err) != clierr.CodeSubmission {
		t.Fatalf("expected submission error, got %v", err)
	}

	// The failed attempt must not consume nonce 0.
	client.sendErr = nil
	res, err := acct.Reserve(context.Background())
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.Nonce() != 0 {
		t.Fatalf("nonce after rollback = %d, want 0", res.Nonce())
	}
	res.Rollback()
}

func TestSubmitEstimateFailureIsTyped(t *testing.T) {
	client := newFakeClient()
	client.estimErr = errors.New("execution reverted")
	s, _ := newTestSubmitter(t, client, FeeOptions{})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	_, err := s.Submit(context.Background(), Request{To: to})
	if clierr.CodeOf(err) != clierr.CodeSubmission {
		t.Fatalf("expected submission error, got %v", err)
	}
	if len(client.sent) != 0 {
		t.Fatal("nothing should be broadcast when estimation fails")
	}
}
