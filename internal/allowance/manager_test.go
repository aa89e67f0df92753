package allowance

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gustavo/chainagent/internal/account"
	"github.com/gustavo/chainagent/internal/confirm"
	"github.com/gustavo/chainagent/internal/submit"
)

var (
	tokenAddr   = common.HexToAddress("0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9")
	spenderAddr = common.HexToAddress("0xCFa5aE7c2CE8Fadc6426C1ff872cA45378Fb7cF3")
)

type fakeClient struct {
	mu        sync.Mutex
	allowance *big.Int
	sent      []*types.Transaction
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(5000), nil }
func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	method := erc20ABI.Methods["allowance"]
	if len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], method.ID) {
		return method.Outputs.Pack(f.allowance)
	}
	return nil, nil
}
func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 50000, nil
}
func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (f *fakeClient) BaseFee(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	// Every submitted transaction confirms immediately.
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
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

func newTestManager(t *testing.T, client *fakeClient) *Manager {
	t.Helper()
	sgn := newKeySigner(t)
	acct := account.NewManager(sgn, client)
	submitter := submit.NewSubmitter(client, acct, big.NewInt(5000), submit.FeeOptions{})
	waiter := confirm.NewWaiter(client, confirm.Options{PollInterval: time.Millisecond, Timeout: time.Second})
	return NewManager(client, submitter, waiter, sgn.addr)
}

func TestEnsureSkipsWhenAllowanceCovers(t *testing.T) {
	client := &fakeClient{allowance: big.NewInt(1_000_000)}
	m := newTestManager(t, client)

	record, err := m.Ensure(context.Background(), tokenAddr, spenderAddr, big.NewInt(500_000), "USDC")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if record != nil {
		t.Fatalf("expected no approval transaction, got %+v", record)
	}
	if len(client.sent) != 0 {
		t.Fatalf("sent %d transactions, want 0", len(client.sent))
	}
}

func TestEnsureApprovesExactAmount(t *testing.T) {
	client := &fakeClient{allowance: big.NewInt(0)}
	m := newTestManager(t, client)

	amount := big.NewInt(750_000)
	record, err := m.Ensure(context.Background(), tokenAddr, spenderAddr, amount, "USDC")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if record == nil || record.Status != submit.TxStatusConfirmed {
		t.Fatalf("expected a confirmed approval record, got %+v", record)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}

	tx := client.sent[0]
	if tx.To() == nil || *tx.To() != tokenAddr {
		t.Fatalf("approval sent to %v, want the token contract", tx.To())
	}
	method := erc20ABI.Methods["approve"]
	if !bytes.Equal(tx.Data()[:4], method.ID) {
		t.Fatal("expected approve calldata")
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack approve args: %v", err)
	}
	if got := args[0].(common.Address); got != spenderAddr {
		t.Fatalf("approve spender = %s, want %s", got.Hex(), spenderAddr.Hex())
	}
	// Exactly the required amount, never unlimited.
	if got := args[1].(*big.Int); got.Cmp(amount) != 0 {
		t.Fatalf("approve amount = %s, want %s", got, amount)
	}
}
