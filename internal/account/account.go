package account

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gustavo/chainagent/internal/chainclient"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/signer"
)

// Manager binds a signing capability to a serialized nonce sequence. The
// account nonce is the only mutable state shared between concurrent requests;
// every transaction for the account must go through Reserve so nonces are
// strictly increasing and never reused.
type Manager struct {
	signer signer.Signer
	client chainclient.Client

	mu   sync.Mutex
	next uint64
}

func NewManager(txSigner signer.Signer, client chainclient.Client) *Manager {
	return &Manager{signer: txSigner, client: client}
}

func (m *Manager) Address() common.Address {
	return m.signer.Address()
}

func (m *Manager) Signer() signer.Signer {
	return m.signer
}

// Reservation holds the account lock between nonce issuance and the node's
// accept/reject verdict on the submitted transaction. Exactly one of Commit
// or Rollback must be called.
type Reservation struct {
	nonce uint64
	m     *Manager
	done  bool
}

func (r *Reservation) Nonce() uint64 { return r.nonce }

// Commit advances the local counter past the reserved nonce. Call after the
// node accepted the transaction.
func (r *Reservation) Commit() {
	if r.done {
		return
	}
	r.done = true
	r.m.next = r.nonce + 1
	r.m.mu.Unlock()
}

// Rollback releases the reservation without consuming the nonce. Call when
// signing or submission was rejected before the transaction entered the pool.
func (r *Reservation) Rollback() {
	if r.done {
		return
	}
	r.done = true
	r.m.mu.Unlock()
}

// Reserve acquires the account lock and issues the next nonce. The pending
// transaction count is read fresh under the lock; the local counter only wins
// when it is ahead of the chain (our own unmined submissions).
func (m *Manager) Reserve(ctx context.Context) (*Reservation, error) {
	m.mu.Lock()
	pending, err := m.client.PendingNonceAt(ctx, m.signer.Address())
	if err != nil {
		m.mu.Unlock()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch pending nonce", err)
	}
	nonce := pending
	if m.next > nonce {
		nonce = m.next
	}
	return &Reservation{nonce: nonce, m: m}, nil
}
