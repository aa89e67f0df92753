package compose

import (
	"fmt"
	"strings"

	"github.com/gustavo/chainagent/internal/chain"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/intent"
	"github.com/gustavo/chainagent/internal/snapshot"
	"github.com/gustavo/chainagent/internal/submit"
	"github.com/gustavo/chainagent/internal/token"
)

// Outcome is the terminal artifact of one action request: exactly one is
// produced, success or not.
type Outcome struct {
	Success   bool          `json:"success"`
	Kind      string        `json:"kind"`
	TxHashes  []string      `json:"tx_hashes,omitempty"`
	Message   string        `json:"message"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Snapshot  *SnapshotView `json:"snapshot,omitempty"`
}

// SnapshotView is the display form of an account snapshot.
type SnapshotView struct {
	Token                  string `json:"token"`
	WalletBalance          string `json:"wallet_balance,omitempty"`
	StakedBalance          string `json:"staked_balance,omitempty"`
	SuppliedBalance        string `json:"supplied_balance,omitempty"`
	BorrowedBalance        string `json:"borrowed_balance,omitempty"`
	TotalCollateralValue   string `json:"total_collateral_usd,omitempty"`
	TotalDebtValue         string `json:"total_debt_usd,omitempty"`
	AvailableToBorrowValue string `json:"available_to_borrow_usd,omitempty"`
	HealthFactor           string `json:"health_factor,omitempty"`
}

// Composer turns pipeline results into the single human-readable report the
// caller sees. Raw node errors are logged upstream, never surfaced verbatim.
type Composer struct {
	chain chain.Context
}

func NewComposer(chainCtx chain.Context) *Composer {
	return &Composer{chain: chainCtx}
}

// Success builds the terminal report for a completed action.
func (c *Composer) Success(req intent.ActionRequest, records []*submit.TxRecord, snap *snapshot.AccountSnapshot) Outcome {
	var b strings.Builder
	b.WriteString(c.successLead(req))
	if hash := lastHash(records); hash != "" {
		fmt.Fprintf(&b, " Transaction: %s.", c.chain.TxURL(hash))
	}
	view := viewOf(snap)
	if view != nil {
		b.WriteString(c.snapshotSentence(req, view))
	}
	return Outcome{
		Success:  true,
		Kind:     string(req.Kind),
		TxHashes: hashes(records),
		Message:  b.String(),
		Snapshot: view,
	}
}

// PartialSuccess reports a confirmed mutation whose post-state read failed.
// The mutation itself succeeded, so this is never reported as a failure.
func (c *Composer) PartialSuccess(req intent.ActionRequest, records []*submit.TxRecord, refreshErr error) Outcome {
	msg := c.successLead(req)
	if hash := lastHash(records); hash != "" {
		msg += fmt.Sprintf(" Transaction: %s.", c.chain.TxURL(hash))
	}
	msg += " Warning: the updated account state could not be read; balances shown elsewhere may be stale."
	return Outcome{
		Success:   true,
		Kind:      string(req.Kind),
		TxHashes:  hashes(records),
		Message:   msg,
		ErrorKind: clierr.Kind(clierr.CodeRefresh),
	}
}

// Failure builds the terminal report for a failed or timed-out action.
func (c *Composer) Failure(req intent.ActionRequest, records []*submit.TxRecord, err error) Outcome {
	code := clierr.CodeOf(err)
	reason := normalizedReason(err)
	var msg string
	switch code {
	case clierr.CodeParse:
		msg = fmt.Sprintf("I could not understand that instruction: %s", reason)
	case clierr.CodeValidation:
		msg = fmt.Sprintf("The request did not pass validation: %s. Nothing was submitted.", reason)
	case clierr.CodeApproval:
		msg = fmt.Sprintf("The token approval did not go through, so the %s was not attempted: %s", req.Kind, reason)
	case clierr.CodeTimeout:
		if timedOutOnApproval(records) {
			msg = fmt.Sprintf("The token approval was submitted but its confirmation was not observed in time. It may still complete; the %s itself was not attempted. Do not retry until you have checked the approval's status.", req.Kind)
		} else {
			msg = "The transaction was submitted but its confirmation was not observed in time. It may still complete; do not retry until you have checked its status."
		}
		if hash := lastHash(records); hash != "" {
			msg += fmt.Sprintf(" Status: %s.", c.chain.TxURL(hash))
		}
	case clierr.CodeSubmission:
		msg = fmt.Sprintf("The %s transaction could not be completed: %s", req.Kind, reason)
	default:
		msg = fmt.Sprintf("The %s failed: %s", req.Kind, reason)
	}
	return Outcome{
		Success:   false,
		Kind:      string(req.Kind),
		TxHashes:  hashes(records),
		Message:   msg,
		ErrorKind: clierr.Kind(code),
	}
}

func (c *Composer) successLead(req intent.ActionRequest) string {
	switch req.Kind {
	case intent.KindTransfer:
		return fmt.Sprintf("Sent %s %s to %s.", req.Amount, req.Token.Symbol, req.Counterparty)
	case intent.KindSwap:
		quote := ""
		if req.QuoteToken != nil {
			quote = req.QuoteToken.Symbol
		}
		return fmt.Sprintf("Swapped %s %s for %s.", req.Amount, req.Token.Symbol, quote)
	case intent.KindDeposit:
		return fmt.Sprintf("Deposited %s %s into the lending pool.", req.Amount, req.Token.Symbol)
	case intent.KindWithdraw:
		return fmt.Sprintf("Withdrew %s %s from the lending pool.", req.Amount, req.Token.Symbol)
	case intent.KindBorrow:
		return fmt.Sprintf("Borrowed %s %s.", req.Amount, req.Token.Symbol)
	case intent.KindRepay:
		return fmt.Sprintf("Repaid %s %s.", req.Amount, req.Token.Symbol)
	case intent.KindStake:
		return fmt.Sprintf("Staked %s %s.", req.Amount, req.Token.Symbol)
	case intent.KindUnstake:
		return fmt.Sprintf("Unstaked %s %s.", req.Amount, req.Token.Symbol)
	default:
		return fmt.Sprintf("Completed %s of %s %s.", req.Kind, req.Amount, req.Token.Symbol)
	}
}

func (c *Composer) snapshotSentence(req intent.ActionRequest, view *SnapshotView) string {
	switch req.Kind {
	case intent.KindDeposit, intent.KindWithdraw, intent.KindBorrow, intent.KindRepay:
		return fmt.Sprintf(" Position: %s USD collateral, %s USD debt, health factor %s.",
			view.TotalCollateralValue, view.TotalDebtValue, view.HealthFactor)
	case intent.KindStake, intent.KindUnstake:
		return fmt.Sprintf(" Staked balance: %s %s.", view.StakedBalance, view.Token)
	default:
		return fmt.Sprintf(" Wallet balance: %s %s.", view.WalletBalance, view.Token)
	}
}

func viewOf(snap *snapshot.AccountSnapshot) *SnapshotView {
	if snap == nil {
		return nil
	}
	view := &SnapshotView{Token: snap.Token.Symbol}
	if snap.WalletBalance != nil {
		view.WalletBalance = token.FormatBaseUnits(snap.WalletBalance, snap.Token.Decimals)
	}
	if snap.StakedBalance != nil {
		view.StakedBalance = token.FormatBaseUnits(snap.StakedBalance, snap.Token.Decimals)
	}
	if snap.SuppliedBalance != nil {
		view.SuppliedBalance = token.FormatBaseUnits(snap.SuppliedBalance, snap.Token.Decimals)
	}
	if snap.BorrowedBalance != nil {
		view.BorrowedBalance = token.FormatBaseUnits(snap.BorrowedBalance, snap.Token.Decimals)
	}
	if snap.TotalCollateralValue != nil {
		view.TotalCollateralValue = snapshot.FormatBaseValue(snap.TotalCollateralValue)
	}
	if snap.TotalDebtValue != nil {
		view.TotalDebtValue = snapshot.FormatBaseValue(snap.TotalDebtValue)
	}
	if snap.AvailableToBorrowValue != nil {
		view.AvailableToBorrowValue = snapshot.FormatBaseValue(snap.AvailableToBorrowValue)
	}
	if snap.HealthFactor != nil {
		view.HealthFactor = snapshot.FormatHealthFactor(snap.HealthFactor)
	}
	return view
}

// normalizedReason extracts the typed message without the raw node payload.
func normalizedReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	if typed, ok := clierr.As(err); ok {
		return typed.Message
	}
	return "internal error"
}

func hashes(records []*submit.TxRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r != nil && r.Hash != "" {
			out = append(out, r.Hash)
		}
	}
	return out
}

func lastHash(records []*submit.TxRecord) string {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i] != nil && records[i].Hash != "" {
			return records[i].Hash
		}
	}
	return ""
}

// timedOutOnApproval reports whether the most recent submission was the
// allowance-phase transaction, meaning the dependent action never ran.
func timedOutOnApproval(records []*submit.TxRecord) bool {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i] != nil && records[i].Hash != "" {
			return records[i].Approval
		}
	}
	return false
}
