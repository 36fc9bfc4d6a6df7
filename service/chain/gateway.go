package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fundlift/fundlift/service/metrics"
)

// ErrSubmission indicates a transaction that reverted or could not be
// broadcast. Callers can distinguish it from wallet-side failures.
var ErrSubmission = errors.New("transaction submission failed")

// Backend is the node-side capability the gateway needs: contract calls,
// transaction submission, log filtering, and receipt lookup. It is
// satisfied by *ethclient.Client and mocked in tests so no real node is
// required.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Gateway is a stateless typed façade over the crowdfunding contract at
// a fixed address. All amounts crossing this boundary are exact integers
// in the chain's smallest currency unit.
type Gateway struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	backend  Backend

	confirmPollInterval time.Duration
	metrics             *metrics.Metrics
	logger              *slog.Logger
}

// NewGateway creates a gateway bound to the contract at address.
// If m is nil, no metrics are recorded.
func NewGateway(backend Backend, address common.Address, confirmPollInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) (*Gateway, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	if confirmPollInterval <= 0 {
		confirmPollInterval = 2 * time.Second
	}
	return &Gateway{
		address:             address,
		abi:                 parsed,
		contract:            bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:             backend,
		confirmPollInterval: confirmPollInterval,
		metrics:             m,
		logger:              logger,
	}, nil
}

// Address returns the contract address.
func (g *Gateway) Address() common.Address {
	return g.address
}

// EventTopics returns the log topic ids for ProjectCreated and
// ContributionMade, in that order. The event watcher filters on them.
func (g *Gateway) EventTopics() (common.Hash, common.Hash) {
	return g.abi.Events["ProjectCreated"].ID, g.abi.Events["ContributionMade"].ID
}

// CreateProject submits a createProject transaction.
func (g *Gateway) CreateProject(ctx context.Context, opts *bind.TransactOpts, title, description string, goalAmount *big.Int, durationDays uint64) (*types.Transaction, error) {
	return g.transact(ctx, opts, nil, "createProject", title, description, goalAmount, new(big.Int).SetUint64(durationDays))
}

// Contribute submits a contribute transaction carrying value as the
// payable amount.
func (g *Gateway) Contribute(ctx context.Context, opts *bind.TransactOpts, projectID *big.Int, value *big.Int) (*types.Transaction, error) {
	return g.transact(ctx, opts, value, "contribute", projectID)
}

// WithdrawFunds submits a withdrawFunds transaction.
func (g *Gateway) WithdrawFunds(ctx context.Context, opts *bind.TransactOpts, projectID *big.Int) (*types.Transaction, error) {
	return g.transact(ctx, opts, nil, "withdrawFunds", projectID)
}

// GetRefund submits a getRefund transaction.
func (g *Gateway) GetRefund(ctx context.Context, opts *bind.TransactOpts, projectID *big.Int) (*types.Transaction, error) {
	return g.transact(ctx, opts, nil, "getRefund", projectID)
}

// GetAllProjects reads the full project set from the contract.
func (g *Gateway) GetAllProjects(ctx context.Context) ([]Project, error) {
	var out []interface{}
	if err := g.call(ctx, &out, "getAllProjects"); err != nil {
		return nil, err
	}
	projects := *abi.ConvertType(out[0], new([]Project)).(*[]Project)
	return projects, nil
}

// GetUserContribution reads the cumulative amount an account has
// contributed to a project.
func (g *Gateway) GetUserContribution(ctx context.Context, projectID *big.Int, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := g.call(ctx, &out, "getUserContribution", projectID, user); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetTimeRemaining reads the contract's view of seconds remaining before
// a project's deadline.
func (g *Gateway) GetTimeRemaining(ctx context.Context, projectID *big.Int) (uint64, error) {
	var out []interface{}
	if err := g.call(ctx, &out, "getTimeRemaining", projectID); err != nil {
		return 0, err
	}
	remaining := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return remaining.Uint64(), nil
}

// WaitConfirmed blocks until the transaction is included and returns its
// receipt. A reverted transaction is an ErrSubmission. There is no
// timeout beyond ctx: a pending confirmation can wait indefinitely.
func (g *Gateway) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(g.confirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: transaction %s reverted", ErrSubmission, tx.Hash())
			}
			g.logger.DebugContext(ctx, "transaction confirmed",
				"tx", tx.Hash().Hex(),
				"block", receipt.BlockNumber,
			)
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			g.logger.WarnContext(ctx, "receipt lookup failed, will retry",
				"tx", tx.Hash().Hex(),
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// UnpackProjectCreated decodes a ProjectCreated log.
func (g *Gateway) UnpackProjectCreated(log types.Log) (*ProjectCreatedEvent, error) {
	event := new(ProjectCreatedEvent)
	if err := g.contract.UnpackLog(event, "ProjectCreated", log); err != nil {
		return nil, fmt.Errorf("failed to unpack ProjectCreated log: %w", err)
	}
	event.Raw = log
	return event, nil
}

// UnpackContributionMade decodes a ContributionMade log.
func (g *Gateway) UnpackContributionMade(log types.Log) (*ContributionMadeEvent, error) {
	event := new(ContributionMadeEvent)
	if err := g.contract.UnpackLog(event, "ContributionMade", log); err != nil {
		return nil, fmt.Errorf("failed to unpack ContributionMade log: %w", err)
	}
	event.Raw = log
	return event, nil
}

// call performs an instrumented read-only contract call.
func (g *Gateway) call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, out, method, args...)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		g.logger.ErrorContext(ctx, "contract read failed",
			"method", method,
			"error", err,
		)
	}
	if g.metrics != nil {
		g.metrics.RecordChainCall(method, status, duration)
	}

	if err != nil {
		return fmt.Errorf("contract read %s failed: %w", method, err)
	}
	return nil
}

// transact performs an instrumented state-changing contract call. The
// caller's opts are copied so concurrent workflows sharing a signer do
// not race on Value/Context.
func (g *Gateway) transact(ctx context.Context, opts *bind.TransactOpts, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	call := *opts
	call.Context = ctx
	if value != nil {
		call.Value = value
	}

	start := time.Now()
	tx, err := g.contract.Transact(&call, method, args...)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if g.metrics != nil {
		g.metrics.RecordChainCall(method, status, duration)
	}

	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "transaction submitted",
		"method", method,
		"tx", tx.Hash().Hex(),
		"from", call.From.Hex(),
	)
	return tx, nil
}
