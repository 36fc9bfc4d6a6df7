// Package workflow drives the submit → await-confirmation → refresh →
// notify sequence for every mutating contract intent. Each run walks an
// identical finite-state sequence:
//
//	Idle -> Submitting -> AwaitingConfirmation
//	     -> (Success -> Refreshing -> Idle) | (Failed -> Idle)
//
// Failures never trigger a refresh (contract state is assumed unchanged)
// and nothing is retried automatically; a failed run requires a new
// user-initiated action.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/metrics"
	"github.com/fundlift/fundlift/service/view"
	"github.com/fundlift/fundlift/service/wallet"
)

// Intent identifies one of the four mutating operations.
type Intent string

const (
	IntentCreate     Intent = "create"
	IntentContribute Intent = "contribute"
	IntentWithdraw   Intent = "withdraw"
	IntentRefund     Intent = "refund"
)

// Phase is a step of the workflow state sequence, recorded in metrics.
type Phase string

const (
	PhaseSubmitting           Phase = "submitting"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseRefreshing           Phase = "refreshing"
)

// FailureKind classifies why a workflow run failed.
type FailureKind string

const (
	// FailureValidation: the request never reached the gateway.
	FailureValidation FailureKind = "validation"
	// FailureWalletRejected: the wallet declined to sign.
	FailureWalletRejected FailureKind = "wallet_rejected"
	// FailureSubmission: the transaction reverted or failed to broadcast.
	FailureSubmission FailureKind = "submission_failed"
	// FailureConfirmation: the confirmation wait itself failed.
	FailureConfirmation FailureKind = "confirmation_failed"
)

// Error is a classified workflow failure.
type Error struct {
	Intent Intent
	Kind   FailureKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s workflow failed (%s): %v", e.Intent, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Notice is a user-visible workflow outcome.
type Notice struct {
	Intent  Intent
	Outcome string // "success" or "failure"
	Kind    FailureKind
	Message string
	TxHash  string
}

// Notifier surfaces workflow outcomes to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to the log. It is the fallback when no
// richer surface (SSE, CLI output) is wired.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	if n.Outcome == "success" {
		l.Logger.InfoContext(ctx, n.Message, "intent", string(n.Intent), "tx", n.TxHash)
		return
	}
	l.Logger.WarnContext(ctx, n.Message, "intent", string(n.Intent), "kind", string(n.Kind))
}

// Gateway is the contract surface the runner submits through.
type Gateway interface {
	CreateProject(ctx context.Context, opts *bind.TransactOpts, title, description string, goalAmount *big.Int, durationDays uint64) (*types.Transaction, error)
	Contribute(ctx context.Context, opts *bind.TransactOpts, projectID *big.Int, value *big.Int) (*types.Transaction, error)
	WithdrawFunds(ctx context.Context, opts *bind.TransactOpts, projectID *big.Int) (*types.Transaction, error)
	GetRefund(ctx context.Context, opts *bind.TransactOpts, projectID *big.Int) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Projects is the snapshot surface the runner validates against and
// refreshes after every confirmed write.
type Projects interface {
	Refresh(ctx context.Context) ([]chain.Project, error)
	Project(id uint64) (chain.Project, bool)
}

// CreateRequest is the user's draft for a new project. GoalAmount is a
// decimal currency string.
type CreateRequest struct {
	Title        string
	Description  string
	GoalAmount   string
	DurationDays uint64
}

// ContributeRequest is a contribution draft. Amount is a decimal
// currency string.
type ContributeRequest struct {
	ProjectID uint64
	Amount    string
}

// Result reports a successful workflow run. RefreshFailed flags the
// known gap where the transaction confirmed but the follow-up snapshot
// refresh failed, leaving the view stale until the next refresh.
type Result struct {
	Intent        Intent
	TxHash        common.Hash
	RefreshFailed bool
}

// Runner executes transaction workflows. Independent runs may interleave
// freely; the synchronizer's last-write-wins refresh reconciles them.
type Runner struct {
	gateway  Gateway
	projects Projects
	notifier Notifier
	decimals uint8
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// clock feeds the expiry gates; overridable in tests.
	clock func() time.Time

	inFlight atomic.Int64
}

// NewRunner creates a workflow runner. decimals is the native currency's
// decimal precision, used to parse user amounts. If m is nil, no metrics
// are recorded; if notifier is nil, outcomes go to the log.
func NewRunner(gateway Gateway, projects Projects, notifier Notifier, decimals uint8, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Runner{
		gateway:  gateway,
		projects: projects,
		notifier: notifier,
		decimals: decimals,
		metrics:  m,
		logger:   logger,
		clock:    time.Now,
	}
}

// InFlight reports how many workflow runs are currently outstanding.
// The presentation layer uses it as the busy indicator.
func (r *Runner) InFlight() int64 {
	return r.inFlight.Load()
}

// Create runs the create-project workflow.
func (r *Runner) Create(ctx context.Context, session *wallet.Session, req CreateRequest) (*Result, error) {
	if req.Title == "" {
		return nil, r.blocked(IntentCreate, fmt.Errorf("title must not be empty"))
	}
	goal, err := chain.ParseAmount(req.GoalAmount, r.decimals)
	if err != nil {
		return nil, r.blocked(IntentCreate, fmt.Errorf("goal amount: %w", err))
	}
	if goal.Sign() <= 0 {
		return nil, r.blocked(IntentCreate, fmt.Errorf("goal amount must be positive"))
	}
	if req.DurationDays == 0 {
		return nil, r.blocked(IntentCreate, fmt.Errorf("duration must be at least one day"))
	}

	return r.run(ctx, IntentCreate, fmt.Sprintf("Project %q created", req.Title), func(ctx context.Context) (*types.Transaction, error) {
		return r.gateway.CreateProject(ctx, session.Signer, req.Title, req.Description, goal, req.DurationDays)
	})
}

// Contribute runs the contribution workflow. The creator contributing to
// their own project is permitted by the contract but blocked here.
func (r *Runner) Contribute(ctx context.Context, session *wallet.Session, req ContributeRequest) (*Result, error) {
	amount, err := chain.ParseAmount(req.Amount, r.decimals)
	if err != nil {
		return nil, r.blocked(IntentContribute, fmt.Errorf("amount: %w", err))
	}
	if amount.Sign() <= 0 {
		return nil, r.blocked(IntentContribute, fmt.Errorf("amount must be positive"))
	}
	project, ok := r.projects.Project(req.ProjectID)
	if !ok {
		return nil, r.blocked(IntentContribute, fmt.Errorf("unknown project %d", req.ProjectID))
	}
	if !view.CanContribute(project, session.Account, r.clock()) {
		return nil, r.blocked(IntentContribute, fmt.Errorf("contributions require a non-creator account and an unexpired project"))
	}

	return r.run(ctx, IntentContribute, fmt.Sprintf("Contributed %s to %q", req.Amount, project.Title), func(ctx context.Context) (*types.Transaction, error) {
		return r.gateway.Contribute(ctx, session.Signer, new(big.Int).SetUint64(req.ProjectID), amount)
	})
}

// Withdraw runs the withdrawal workflow for a funded project's creator.
func (r *Runner) Withdraw(ctx context.Context, session *wallet.Session, projectID uint64) (*Result, error) {
	project, ok := r.projects.Project(projectID)
	if !ok {
		return nil, r.blocked(IntentWithdraw, fmt.Errorf("unknown project %d", projectID))
	}
	if !view.CanWithdraw(project, session.Account, r.clock()) {
		return nil, r.blocked(IntentWithdraw, fmt.Errorf("withdrawal requires being the creator of a funded project"))
	}

	return r.run(ctx, IntentWithdraw, fmt.Sprintf("Funds withdrawn from %q", project.Title), func(ctx context.Context) (*types.Transaction, error) {
		return r.gateway.WithdrawFunds(ctx, session.Signer, new(big.Int).SetUint64(projectID))
	})
}

// Refund runs the refund workflow for a contributor to a failed project.
func (r *Runner) Refund(ctx context.Context, session *wallet.Session, projectID uint64) (*Result, error) {
	project, ok := r.projects.Project(projectID)
	if !ok {
		return nil, r.blocked(IntentRefund, fmt.Errorf("unknown project %d", projectID))
	}
	if !view.CanRefund(project, session.Account, r.clock()) {
		return nil, r.blocked(IntentRefund, fmt.Errorf("refunds require an expired project that missed its goal"))
	}

	return r.run(ctx, IntentRefund, fmt.Sprintf("Refund from %q processed", project.Title), func(ctx context.Context) (*types.Transaction, error) {
		return r.gateway.GetRefund(ctx, session.Signer, new(big.Int).SetUint64(projectID))
	})
}

// run executes the shared state sequence around a submit function.
func (r *Runner) run(ctx context.Context, intent Intent, successMsg string, submit func(ctx context.Context) (*types.Transaction, error)) (*Result, error) {
	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	start := time.Now()

	r.phase(intent, PhaseSubmitting)
	tx, err := submit(ctx)
	if err != nil {
		return nil, r.failed(ctx, intent, classifySubmitError(err), err, start)
	}

	r.phase(intent, PhaseAwaitingConfirmation)
	if _, err := r.gateway.WaitConfirmed(ctx, tx); err != nil {
		kind := FailureConfirmation
		if errors.Is(err, chain.ErrSubmission) {
			kind = FailureSubmission
		}
		return nil, r.failed(ctx, intent, kind, err, start)
	}

	// Success: unconditionally refresh the snapshot, then notify. A
	// refresh failure here is a stale view, not a workflow failure.
	r.phase(intent, PhaseRefreshing)
	result := &Result{Intent: intent, TxHash: tx.Hash()}
	if _, err := r.projects.Refresh(ctx); err != nil {
		result.RefreshFailed = true
		r.logger.WarnContext(ctx, "post-transaction refresh failed, view may be stale",
			"intent", string(intent),
			"tx", tx.Hash().Hex(),
			"error", err,
		)
	}

	r.notifier.Notify(ctx, Notice{
		Intent:  intent,
		Outcome: "success",
		Message: successMsg,
		TxHash:  tx.Hash().Hex(),
	})
	if r.metrics != nil {
		r.metrics.RecordWorkflowRun(string(intent), "success", time.Since(start).Seconds())
	}
	return result, nil
}

// blocked reports a pre-submission validation failure. It never reaches
// the gateway and is not surfaced through the notifier; the triggering
// form shows it directly.
func (r *Runner) blocked(intent Intent, err error) error {
	if r.metrics != nil {
		r.metrics.RecordWorkflowRun(string(intent), string(FailureValidation), 0)
	}
	return &Error{Intent: intent, Kind: FailureValidation, Err: err}
}

func (r *Runner) failed(ctx context.Context, intent Intent, kind FailureKind, err error, start time.Time) error {
	r.logger.ErrorContext(ctx, "workflow failed",
		"intent", string(intent),
		"kind", string(kind),
		"error", err,
	)
	message := "Submission failed"
	if kind == FailureWalletRejected {
		message = "Wallet rejected the request"
	}
	r.notifier.Notify(ctx, Notice{
		Intent:  intent,
		Outcome: "failure",
		Kind:    kind,
		Message: message,
	})
	if r.metrics != nil {
		r.metrics.RecordWorkflowRun(string(intent), string(kind), time.Since(start).Seconds())
	}
	return &Error{Intent: intent, Kind: kind, Err: err}
}

func (r *Runner) phase(intent Intent, phase Phase) {
	if r.metrics != nil {
		r.metrics.RecordWorkflowPhase(string(intent), string(phase))
	}
}

// classifySubmitError separates wallet-side signing refusals from
// node-side submission failures.
func classifySubmitError(err error) FailureKind {
	if errors.Is(err, keystore.ErrLocked) ||
		errors.Is(err, keystore.ErrDecrypt) ||
		errors.Is(err, keystore.ErrNoMatch) ||
		errors.Is(err, accounts.ErrUnknownAccount) ||
		errors.Is(err, accounts.ErrWalletClosed) {
		return FailureWalletRejected
	}
	return FailureSubmission
}
