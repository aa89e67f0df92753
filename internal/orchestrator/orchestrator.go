package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/gustavo/chainagent/internal/allowance"
	"github.com/gustavo/chainagent/internal/chain"
	"github.com/gustavo/chainagent/internal/chainclient"
	"github.com/gustavo/chainagent/internal/compose"
	"github.com/gustavo/chainagent/internal/confirm"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/intent"
	"github.com/gustavo/chainagent/internal/preflight"
	"github.com/gustavo/chainagent/internal/registry"
	"github.com/gustavo/chainagent/internal/runstore"
	"github.com/gustavo/chainagent/internal/snapshot"
	"github.com/gustavo/chainagent/internal/submit"
	"github.com/gustavo/chainagent/internal/token"
	"github.com/gustavo/chainagent/pkg/logger"
)

var (
	erc20ABI        = registry.MustABI(registry.ERC20ABI)
	lendingPoolABI  = registry.MustABI(registry.LendingPoolABI)
	swapRouterABI   = registry.MustABI(registry.SwapRouterABI)
	swapQuoterABI   = registry.MustABI(registry.SwapQuoterABI)
	stakingVaultABI = registry.MustABI(registry.StakingVaultABI)
)

// variable-rate mode for Aave-style borrow and repay.
const variableRateMode = 2

// Stage marks the run's position in the pipeline.
type Stage string

const (
	StageParsed            Stage = "parsed"
	StageValidated         Stage = "validated"
	StageApprovalPending   Stage = "approval_pending"
	StageApprovalConfirmed Stage = "approval_confirmed"
	StageSubmitted         Stage = "submitted"
	StageConfirmed         Stage = "confirmed"
	StageRefreshed         Stage = "refreshed"
	StageReported          Stage = "reported"
	StageFailed            Stage = "failed"
)

// Notification is one progress event for a run. Exactly one notification per
// run carries Terminal=true, and that one carries the Outcome.
type Notification struct {
	RunID    string           `json:"run_id"`
	Stage    Stage            `json:"stage"`
	Message  string           `json:"message"`
	Terminal bool             `json:"terminal"`
	Outcome  *compose.Outcome `json:"outcome,omitempty"`
	At       string           `json:"at"`
}

// Notifier receives run progress. Implementations must not block for long;
// the pipeline calls them inline.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Options are the run-level policy knobs.
type Options struct {
	SlippageBps  int64         // swap minimum-output tolerance, default 50
	SwapDeadline time.Duration // router deadline window, default 5m
}

func (o Options) withDefaults() Options {
	if o.SlippageBps <= 0 {
		o.SlippageBps = 50
	}
	if o.SwapDeadline <= 0 {
		o.SwapDeadline = 5 * time.Minute
	}
	return o
}

// Orchestrator drives one action request through parse, preflight, approval,
// submission, confirmation, refresh and response composition. All mutations
// for one account flow through the same submitter, which serializes nonces.
type Orchestrator struct {
	chain      chain.Context
	client     chainclient.Client
	contracts  registry.Contracts
	tokens     *token.Registry
	parser     *intent.Parser
	validator  *preflight.Validator
	allowances *allowance.Manager
	submitter  *submit.Submitter
	waiter     *confirm.Waiter
	refresher  *snapshot.Refresher
	composer   *compose.Composer
	store      *runstore.Store
	owner      common.Address
	opts       Options
	log        *slog.Logger
}

// Deps bundles the collaborators Execute needs. The store may be nil, in
// which case runs are not persisted.
type Deps struct {
	Chain      chain.Context
	Client     chainclient.Client
	Contracts  registry.Contracts
	Tokens     *token.Registry
	Parser     *intent.Parser
	Validator  *preflight.Validator
	Allowances *allowance.Manager
	Submitter  *submit.Submitter
	Waiter     *confirm.Waiter
	Refresher  *snapshot.Refresher
	Composer   *compose.Composer
	Store      *runstore.Store
	Owner      common.Address
}

func New(deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{
		chain:      deps.Chain,
		client:     deps.Client,
		contracts:  deps.Contracts,
		tokens:     deps.Tokens,
		parser:     deps.Parser,
		validator:  deps.Validator,
		allowances: deps.Allowances,
		submitter:  deps.Submitter,
		waiter:     deps.Waiter,
		refresher:  deps.Refresher,
		composer:   deps.Composer,
		store:      deps.Store,
		owner:      deps.Owner,
		opts:       opts.withDefaults(),
		log:        logger.Named("orchestrator"),
	}
}

// descriptor tells the dispatch loop how to execute one action kind: which
// contract needs an allowance before the action (nil when none), and how to
// build the transaction. The refresh scope is derived from the kind.
type descriptor struct {
	spender func(o *Orchestrator, req intent.ActionRequest) string
	plan    func(o *Orchestrator, ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error)
}

var descriptors = map[intent.Kind]descriptor{
	intent.KindTransfer: {
		// An ERC20 transfer is still an approve-then-act pair: the token
		// contract is authorized for exactly the amount it will move.
		spender: func(o *Orchestrator, req intent.ActionRequest) string { return req.Token.Address },
		plan:    (*Orchestrator).planTransfer,
	},
	intent.KindSwap: {
		spender: func(o *Orchestrator, req intent.ActionRequest) string { return o.contracts.SwapRouter },
		plan:    (*Orchestrator).planSwap,
	},
	intent.KindDeposit: {
		spender: func(o *Orchestrator, req intent.ActionRequest) string { return o.contracts.LendingPool },
		plan:    (*Orchestrator).planDeposit,
	},
	intent.KindWithdraw: {
		plan: (*Orchestrator).planWithdraw,
	},
	intent.KindBorrow: {
		plan: (*Orchestrator).planBorrow,
	},
	intent.KindRepay: {
		spender: func(o *Orchestrator, req intent.ActionRequest) string { return o.contracts.LendingPool },
		plan:    (*Orchestrator).planRepay,
	},
	intent.KindStake: {
		spender: func(o *Orchestrator, req intent.ActionRequest) string { return o.contracts.StakingVault },
		plan:    (*Orchestrator).planStake,
	},
	intent.KindUnstake: {
		plan: (*Orchestrator).planUnstake,
	},
}

// Execute runs one free-form instruction end to end and returns the composed
// outcome together with the error that stopped the pipeline, if any. The
// returned outcome is always usable; the error carries the typed code for
// exit-status mapping.
func (o *Orchestrator) Execute(ctx context.Context, text string, notifier Notifier) (compose.Outcome, error) {
	runID := uuid.NewString()
	req := intent.ActionRequest{Raw: text}
	run := runstore.NewRun(runID, "", text, o.chain.ChainID)
	run.Address = o.owner.Hex()
	records := make([]*submit.TxRecord, 0, 2)

	terminalSent := false
	fail := func(stage Stage, err error) (compose.Outcome, error) {
		outcome := o.composer.Failure(req, records, err)
		// A timeout is not a failure verdict: the transaction may still
		// land, and the run history must not claim otherwise.
		if clierr.CodeOf(err) == clierr.CodeTimeout {
			run.Status = runstore.RunStatusTimedOut
		} else {
			run.Status = runstore.RunStatusFailed
		}
		o.finish(&run, stage, notifier, &terminalSent, outcome, outcome.Message)
		return outcome, err
	}

	parsed, err := o.parser.Parse(text)
	if err != nil {
		o.log.Info("parse rejected", "run_id", runID, "error", err)
		return fail(StageFailed, err)
	}
	req = parsed
	run.Kind = string(req.Kind)
	o.transition(&run, StageParsed, notifier, fmt.Sprintf("Understood: %s.", req.Describe()))

	if err := o.validator.Validate(ctx, req); err != nil {
		o.log.Info("preflight refused", "run_id", runID, "kind", req.Kind, "error", err)
		return fail(StageFailed, err)
	}
	o.transition(&run, StageValidated, notifier, "Checks passed, initiating the transaction.")

	desc, ok := descriptors[req.Kind]
	if !ok {
		return fail(StageFailed, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no executor for action kind %q", req.Kind)))
	}

	amount, err := token.ToBaseUnits(req.Amount, req.Token.Decimals)
	if err != nil {
		return fail(StageFailed, err)
	}

	// Approve-then-act: the allowance manager submits nothing when the
	// current allowance already covers the amount.
	if desc.spender != nil && req.SpendsERC20() {
		spender := desc.spender(o, req)
		if spender == "" {
			return fail(StageFailed, clierr.New(clierr.CodeUnsupported, "no spender contract deployed on this chain"))
		}
		o.transition(&run, StageApprovalPending, notifier, fmt.Sprintf("Checking the %s allowance.", req.Token.Symbol))
		approval, err := o.allowances.Ensure(ctx, common.HexToAddress(req.Token.Address), common.HexToAddress(spender), amount, req.Token.Symbol)
		if approval != nil {
			records = append(records, approval)
			run.TxRecords = recordValues(records)
		}
		if err != nil {
			return fail(StageFailed, err)
		}
		o.transition(&run, StageApprovalConfirmed, notifier, "Allowance is in place.")
	}

	txReq, err := desc.plan(o, ctx, req, amount)
	if err != nil {
		return fail(StageFailed, err)
	}
	record, err := o.submitter.Submit(ctx, txReq)
	if err != nil {
		return fail(StageFailed, err)
	}
	records = append(records, record)
	run.TxRecords = recordValues(records)
	o.transition(&run, StageSubmitted, notifier, fmt.Sprintf("Transaction submitted: %s.", record.Hash))

	if err := o.waiter.Wait(ctx, record); err != nil {
		run.TxRecords = recordValues(records)
		return fail(StageFailed, err)
	}
	run.TxRecords = recordValues(records)
	o.transition(&run, StageConfirmed, notifier, "Transaction confirmed.")

	snap, refreshErr := o.refresher.Refresh(ctx, snapshot.ScopeForKind(string(req.Kind)), req.Token)
	if refreshErr != nil {
		o.log.Warn("state refresh failed after confirmation", "run_id", runID, "error", refreshErr)
		outcome := o.composer.PartialSuccess(req, records, refreshErr)
		run.Status = runstore.RunStatusReported
		o.finish(&run, StageReported, notifier, &terminalSent, outcome, outcome.Message)
		return outcome, nil
	}
	o.transition(&run, StageRefreshed, notifier, "Account state refreshed.")

	outcome := o.composer.Success(req, records, &snap)
	run.Status = runstore.RunStatusReported
	o.finish(&run, StageReported, notifier, &terminalSent, outcome, outcome.Message)
	return outcome, nil
}

func (o *Orchestrator) transition(run *runstore.Run, stage Stage, notifier Notifier, message string) {
	run.Stage = string(stage)
	o.persist(run)
	o.emit(notifier, Notification{
		RunID:   run.RunID,
		Stage:   stage,
		Message: message,
		At:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (o *Orchestrator) finish(run *runstore.Run, stage Stage, notifier Notifier, sent *bool, outcome compose.Outcome, message string) {
	run.Stage = string(stage)
	run.Outcome = &outcome
	o.persist(run)
	if *sent {
		return
	}
	*sent = true
	o.emit(notifier, Notification{
		RunID:    run.RunID,
		Stage:    stage,
		Message:  message,
		Terminal: true,
		Outcome:  &outcome,
		At:       time.Now().UTC().Format(time.RFC3339),
	})
}

func (o *Orchestrator) emit(notifier Notifier, n Notification) {
	if notifier == nil {
		return
	}
	notifier.Notify(n)
}

// persist failures are logged, not fatal: losing a run record must not abort
// an in-flight transaction.
func (o *Orchestrator) persist(run *runstore.Run) {
	if o.store == nil {
		return
	}
	run.Touch()
	if err := o.store.Save(*run); err != nil {
		o.log.Warn("persist run", "run_id", run.RunID, "error", err)
	}
}

func recordValues(records []*submit.TxRecord) []submit.TxRecord {
	out := make([]submit.TxRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (o *Orchestrator) planTransfer(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	to := common.HexToAddress(req.Counterparty)
	if req.Token.IsNative() {
		return submit.Request{
			To:          to,
			Value:       amount,
			Description: req.Describe(),
		}, nil
	}
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
	}
	return submit.Request{
		To:          common.HexToAddress(req.Token.Address),
		Data:        data,
		Description: req.Describe(),
	}, nil
}

// swapParams matches the router's and quoter's exactInputSingle tuples.
type swapRouterParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type swapQuoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

func (o *Orchestrator) planSwap(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	if req.QuoteToken == nil {
		return submit.Request{}, clierr.New(clierr.CodeUsage, "swap requires an output token")
	}
	tokenIn := o.resolveSwapAsset(req.Token)
	tokenOut := o.resolveSwapAsset(*req.QuoteToken)

	quoted, err := o.quoteExactInput(ctx, tokenIn, tokenOut, amount)
	if err != nil {
		return submit.Request{}, err
	}
	// minOut = quote * (10000 - slippageBps) / 10000
	minOut := new(big.Int).Mul(quoted, big.NewInt(10_000-o.opts.SlippageBps))
	minOut.Div(minOut, big.NewInt(10_000))

	deadline := big.NewInt(time.Now().Add(o.opts.SwapDeadline).Unix())
	data, err := swapRouterABI.Pack("exactInputSingle", swapRouterParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(o.contracts.SwapDefaultFee),
		Recipient:         o.owner,
		Deadline:          deadline,
		AmountIn:          amount,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack exactInputSingle calldata", err)
	}
	out := submit.Request{
		To:          common.HexToAddress(o.contracts.SwapRouter),
		Data:        data,
		Description: req.Describe(),
	}
	// Native input rides as msg.value; the router wraps it.
	if req.Token.IsNative() {
		out.Value = amount
	}
	return out, nil
}

func (o *Orchestrator) quoteExactInput(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error) {
	quoter := common.HexToAddress(o.contracts.SwapQuoter)
	data, err := swapQuoterABI.Pack("quoteExactInputSingle", swapQuoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amount,
		Fee:               big.NewInt(o.contracts.SwapDefaultFee),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack quoteExactInputSingle calldata", err)
	}
	raw, err := o.client.CallContract(ctx, ethereum.CallMsg{From: o.owner, To: &quoter, Data: data})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "quote swap output", err)
	}
	outs, err := swapQuoterABI.Unpack("quoteExactInputSingle", raw)
	if err != nil || len(outs) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode swap quote", err)
	}
	quoted, ok := outs[0].(*big.Int)
	if !ok || quoted.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "swap venue returned an empty quote")
	}
	return quoted, nil
}

// resolveSwapAsset maps the native token to its wrapped form; concentrated
// liquidity pools only trade ERC20 pairs.
func (o *Orchestrator) resolveSwapAsset(tok token.Descriptor) common.Address {
	if tok.IsNative() {
		return common.HexToAddress(o.contracts.WrappedNative)
	}
	return common.HexToAddress(tok.Address)
}

func (o *Orchestrator) planDeposit(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	data, err := lendingPoolABI.Pack("deposit", common.HexToAddress(req.Token.Address), amount, o.owner, uint16(0))
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack deposit calldata", err)
	}
	return o.poolRequest(data, req), nil
}

func (o *Orchestrator) planWithdraw(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	data, err := lendingPoolABI.Pack("withdraw", common.HexToAddress(req.Token.Address), amount, o.owner)
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack withdraw calldata", err)
	}
	return o.poolRequest(data, req), nil
}

func (o *Orchestrator) planBorrow(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	data, err := lendingPoolABI.Pack("borrow", common.HexToAddress(req.Token.Address), amount, big.NewInt(variableRateMode), uint16(0), o.owner)
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack borrow calldata", err)
	}
	return o.poolRequest(data, req), nil
}

func (o *Orchestrator) planRepay(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	data, err := lendingPoolABI.Pack("repay", common.HexToAddress(req.Token.Address), amount, big.NewInt(variableRateMode), o.owner)
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack repay calldata", err)
	}
	return o.poolRequest(data, req), nil
}

func (o *Orchestrator) poolRequest(data []byte, req intent.ActionRequest) submit.Request {
	return submit.Request{
		To:          common.HexToAddress(o.contracts.LendingPool),
		Data:        data,
		Description: req.Describe(),
	}
}

func (o *Orchestrator) planStake(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	data, err := stakingVaultABI.Pack("stake", amount)
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack stake calldata", err)
	}
	return submit.Request{
		To:          common.HexToAddress(o.contracts.StakingVault),
		Data:        data,
		Description: req.Describe(),
	}, nil
}

func (o *Orchestrator) planUnstake(ctx context.Context, req intent.ActionRequest, amount *big.Int) (submit.Request, error) {
	data, err := stakingVaultABI.Pack("unstake", amount)
	if err != nil {
		return submit.Request{}, clierr.Wrap(clierr.CodeInternal, "pack unstake calldata", err)
	}
	return submit.Request{
		To:          common.HexToAddress(o.contracts.StakingVault),
		Data:        data,
		Description: req.Describe(),
	}, nil
}
