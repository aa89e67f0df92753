package app

import (
	"context"
	"math/big"

	"github.com/gustavo/chainagent/internal/account"
	"github.com/gustavo/chainagent/internal/allowance"
	"github.com/gustavo/chainagent/internal/chain"
	"github.com/gustavo/chainagent/internal/chainclient"
	"github.com/gustavo/chainagent/internal/compose"
	"github.com/gustavo/chainagent/internal/config"
	"github.com/gustavo/chainagent/internal/confirm"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/intent"
	"github.com/gustavo/chainagent/internal/orchestrator"
	"github.com/gustavo/chainagent/internal/preflight"
	"github.com/gustavo/chainagent/internal/registry"
	"github.com/gustavo/chainagent/internal/runstore"
	"github.com/gustavo/chainagent/internal/signer"
	"github.com/gustavo/chainagent/internal/snapshot"
	"github.com/gustavo/chainagent/internal/submit"
	"github.com/gustavo/chainagent/internal/token"
)

// pipeline bundles everything one chain-bound session needs. Built once per
// command invocation from the resolved settings.
type pipeline struct {
	chainCtx chain.Context
	client   *chainclient.RPCClient
	store    *runstore.Store
	orch     *orchestrator.Orchestrator
}

func (p *pipeline) Close() {
	if p.store != nil {
		_ = p.store.Close()
	}
	if p.client != nil {
		p.client.Close()
	}
}

// buildPipeline wires the session: chain context, RPC client, signer, nonce
// manager, preflight, allowance, submission, confirmation, refresh, compose
// and run persistence.
func buildPipeline(ctx context.Context, settings config.Settings) (*pipeline, error) {
	chainCtx, err := chain.Resolve(settings.Chain)
	if err != nil {
		return nil, err
	}
	if settings.RPCURL != "" {
		chainCtx = chainCtx.WithRPCURL(settings.RPCURL)
	}
	if settings.ExplorerURL != "" {
		chainCtx = chainCtx.WithExplorer(settings.ExplorerURL)
	}
	if chainCtx.RPCURL == "" {
		return nil, clierr.New(clierr.CodeUsage, "no RPC endpoint configured; set --rpc-url or CHAINAGENT_RPC_URL")
	}

	client, err := chainclient.Dial(ctx, chainCtx.RPCURL)
	if err != nil {
		return nil, err
	}

	tokens, err := token.ForChain(chainCtx.ChainID)
	if err != nil {
		client.Close()
		return nil, err
	}
	// Chains without protocol deployments still support transfers; the
	// validator refuses lending, swap and staking there.
	contracts, _ := registry.ForChain(chainCtx.ChainID)

	sgn, err := signer.NewLocalSignerFromEnv()
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	owner := sgn.Address()

	acct := account.NewManager(sgn, client)
	submitter := submit.NewSubmitter(client, acct, big.NewInt(chainCtx.ChainID), submit.FeeOptions{
		GasMultiplier:      settings.GasMultiplier,
		MaxFeeGwei:         settings.MaxFeeGwei,
		MaxPriorityFeeGwei: settings.MaxPriorityFeeGwei,
	})
	waiter := confirm.NewWaiter(client, confirm.Options{
		PollInterval: settings.PollInterval,
		Timeout:      settings.ConfirmTimeout,
	})
	validator := preflight.NewValidator(client, contracts, owner, preflight.Policy{
		MinHealthFactor: settings.MinHealthFactor,
	})
	allowances := allowance.NewManager(client, submitter, waiter, owner)
	refresher := snapshot.NewRefresher(client, contracts, owner)
	parser := intent.NewParser(tokens, intent.EVMAddressFormat{})
	composer := compose.NewComposer(chainCtx)

	store, err := runstore.Open(settings.StorePath, settings.StoreLockPath)
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeInternal, "open run store", err)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Chain:      chainCtx,
		Client:     client,
		Contracts:  contracts,
		Tokens:     tokens,
		Parser:     parser,
		Validator:  validator,
		Allowances: allowances,
		Submitter:  submitter,
		Waiter:     waiter,
		Refresher:  refresher,
		Composer:   composer,
		Store:      store,
		Owner:      owner,
	}, orchestrator.Options{
		SlippageBps:  settings.SlippageBps,
		SwapDeadline: settings.SwapDeadline,
	})

	return &pipeline{
		chainCtx: chainCtx,
		client:   client,
		store:    store,
		orch:     orch,
	}, nil
}

// buildStore opens only the run store, for read-only history commands that
// need no RPC endpoint or signer.
func buildStore(settings config.Settings) (*runstore.Store, error) {
	store, err := runstore.Open(settings.StorePath, settings.StoreLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open run store", err)
	}
	return store, nil
}
