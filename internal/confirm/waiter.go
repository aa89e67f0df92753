package confirm

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gustavo/chainagent/internal/chainclient"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/submit"
	"github.com/gustavo/chainagent/pkg/logger"
)

// Options bound the confirmation wait. The wait is bounded by time, not by
// attempt count; transient RPC errors are ignored until the deadline.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	return o
}

// Waiter observes a pending transaction until it reaches a terminal status.
// It never retries the underlying submission; that decision belongs to the
// orchestrator.
type Waiter struct {
	client chainclient.Client
	opts   Options
}

func NewWaiter(client chainclient.Client, opts Options) *Waiter {
	return &Waiter{client: client, opts: opts.withDefaults()}
}

// Wait blocks until the record transitions to Confirmed or Failed, or the
// timeout elapses, in which case the record becomes TimedOut. TimedOut is
// not Failed: the transaction may still land after we stop watching, so the
// caller must not assume anything about fund movement.
func (w *Waiter) Wait(ctx context.Context, record *submit.TxRecord) error {
	if record == nil || record.Status != submit.TxStatusPending {
		return clierr.New(clierr.CodeInternal, "confirmation wait requires a pending transaction record")
	}
	hash := common.HexToHash(record.Hash)
	waitCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				record.Status = submit.TxStatusConfirmed
				logger.Named("confirm").Info("transaction confirmed", "hash", record.Hash, "block", receipt.BlockNumber)
				return nil
			}
			record.Status = submit.TxStatusFailed
			record.Error = "transaction reverted on-chain"
			return clierr.New(clierr.CodeSubmission, "transaction reverted on-chain")
		}
		if waitCtx.Err() != nil {
			record.Status = submit.TxStatusTimedOut
			return clierr.Wrap(clierr.CodeTimeout, "confirmation not observed within the configured window", waitCtx.Err())
		}
		select {
		case <-waitCtx.Done():
			record.Status = submit.TxStatusTimedOut
			return clierr.Wrap(clierr.CodeTimeout, "confirmation not observed within the configured window", waitCtx.Err())
		case <-ticker.C:
		}
	}
}
