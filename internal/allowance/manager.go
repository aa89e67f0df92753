package allowance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gustavo/chainagent/internal/chainclient"
	"github.com/gustavo/chainagent/internal/confirm"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/registry"
	"github.com/gustavo/chainagent/internal/submit"
)

var erc20ABI = registry.MustABI(registry.ERC20ABI)

// Manager implements the approve-if-needed step of the two-phase commit.
type Manager struct {
	client    chainclient.Client
	submitter *submit.Submitter
	waiter    *confirm.Waiter
	owner     common.Address
}

func NewManager(client chainclient.Client, submitter *submit.Submitter, waiter *confirm.Waiter, owner common.Address) *Manager {
	return &Manager{client: client, submitter: submitter, waiter: waiter, owner: owner}
}

// Ensure guarantees the spender's allowance covers amount before returning.
// When the existing allowance already covers it, no transaction is submitted
// and the returned record is nil. Otherwise an approval for exactly the
// required amount is submitted and confirmed; unlimited approvals are never
// granted. Any approval failure is fatal to the surrounding action.
func (m *Manager) Ensure(ctx context.Context, token, spender common.Address, amount *big.Int, symbol string) (*submit.TxRecord, error) {
	current, err := chainclient.Allowance(ctx, m.client, token, m.owner, spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(amount) >= 0 {
		return nil, nil
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	record, err := m.submitter.Submit(ctx, submit.Request{
		To:          token,
		Data:        data,
		Description: fmt.Sprintf("Approve %s for spender %s", symbol, spender.Hex()),
		Approval:    true,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeApproval, "submit approval transaction", err)
	}
	if err := m.waiter.Wait(ctx, record); err != nil {
		if clierr.CodeOf(err) == clierr.CodeTimeout {
			return record, err
		}
		return record, clierr.Wrap(clierr.CodeApproval, "approval transaction failed", err)
	}
	return record, nil
}
