package chain_test

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/chain/chaintest"
)

const testChainID = 8080

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSigner(t *testing.T) *bind.TransactOpts {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(testChainID))
	require.NoError(t, err)
	return opts
}

func newGateway(t *testing.T, backend *chaintest.Backend) *chain.Gateway {
	t.Helper()
	gw, err := chain.NewGateway(backend, chaintest.ContractAddress, 10*time.Millisecond, nil, testLogger())
	require.NoError(t, err)
	return gw
}

func TestGatewayCreateAndList(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	creator := newSigner(t)
	ctx := context.Background()

	goal, err := chain.ParseAmount("10", 18)
	require.NoError(t, err)

	tx, err := gw.CreateProject(ctx, creator, "Solar Garden", "Panels for the block", goal, 1)
	require.NoError(t, err)

	receipt, err := gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	projects, err := gw.GetAllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	p := projects[0]
	assert.Equal(t, uint64(1), p.Id.Uint64())
	assert.Equal(t, "Solar Garden", p.Title)
	assert.Equal(t, creator.From, p.Creator)
	assert.Zero(t, p.RaisedAmount.Sign())
	assert.True(t, p.IsActive)
	assert.False(t, p.GoalReached)
	assert.Equal(t, backend.Now().Unix()+24*3600, p.Deadline.Int64())
}

func TestGatewayContributeReachesGoal(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	creator := newSigner(t)
	contributor := newSigner(t)
	ctx := context.Background()

	goal, _ := chain.ParseAmount("10", 18)
	tx, err := gw.CreateProject(ctx, creator, "Solar Garden", "", goal, 1)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	amount, _ := chain.ParseAmount("10", 18)
	tx, err = gw.Contribute(ctx, contributor, big.NewInt(1), amount)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	projects, err := gw.GetAllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Zero(t, projects[0].RaisedAmount.Cmp(amount))
	assert.True(t, projects[0].GoalReached)

	contributed, err := gw.GetUserContribution(ctx, big.NewInt(1), contributor.From)
	require.NoError(t, err)
	assert.Zero(t, contributed.Cmp(amount))
}

func TestGatewayWithdrawRequiresCreator(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	creator := newSigner(t)
	contributor := newSigner(t)
	ctx := context.Background()

	goal, _ := chain.ParseAmount("1", 18)
	tx, _ := gw.CreateProject(ctx, creator, "p", "", goal, 1)
	_, err := gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	tx, _ = gw.Contribute(ctx, contributor, big.NewInt(1), goal)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	// Non-creator withdrawal reverts at submission.
	_, err = gw.WithdrawFunds(ctx, contributor, big.NewInt(1))
	require.Error(t, err)

	tx, err = gw.WithdrawFunds(ctx, creator, big.NewInt(1))
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	projects, err := gw.GetAllProjects(ctx)
	require.NoError(t, err)
	assert.False(t, projects[0].IsActive)
}

func TestGatewayRefundAfterFailedCampaign(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	creator := newSigner(t)
	contributor := newSigner(t)
	ctx := context.Background()

	goal, _ := chain.ParseAmount("10", 18)
	half, _ := chain.ParseAmount("5", 18)
	tx, _ := gw.CreateProject(ctx, creator, "p", "", goal, 1)
	_, err := gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	tx, _ = gw.Contribute(ctx, contributor, big.NewInt(1), half)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	// Refund before expiry reverts.
	_, err = gw.GetRefund(ctx, contributor, big.NewInt(1))
	require.Error(t, err)

	backend.WarpBy(25 * time.Hour)

	tx, err = gw.GetRefund(ctx, contributor, big.NewInt(1))
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	projects, err := gw.GetAllProjects(ctx)
	require.NoError(t, err)
	assert.Zero(t, projects[0].RaisedAmount.Sign())

	contributed, err := gw.GetUserContribution(ctx, big.NewInt(1), contributor.From)
	require.NoError(t, err)
	assert.Zero(t, contributed.Sign())
}

func TestGatewayGetTimeRemaining(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	creator := newSigner(t)
	ctx := context.Background()

	goal, _ := chain.ParseAmount("1", 18)
	tx, _ := gw.CreateProject(ctx, creator, "p", "", goal, 1)
	_, err := gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	remaining, err := gw.GetTimeRemaining(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(24*3600), remaining)

	backend.WarpBy(25 * time.Hour)
	remaining, err = gw.GetTimeRemaining(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestGatewayEventDecoding(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	creator := newSigner(t)
	contributor := newSigner(t)
	ctx := context.Background()

	goal, _ := chain.ParseAmount("10", 18)
	tx, _ := gw.CreateProject(ctx, creator, "Solar Garden", "", goal, 2)
	receipt, err := gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)

	created, err := gw.UnpackProjectCreated(*receipt.Logs[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.ProjectId.Uint64())
	assert.Equal(t, "Solar Garden", created.Title)
	assert.Equal(t, creator.From, created.Creator)
	assert.Zero(t, created.GoalAmount.Cmp(goal))

	amount, _ := chain.ParseAmount("2.5", 18)
	tx, _ = gw.Contribute(ctx, contributor, big.NewInt(1), amount)
	receipt, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)

	made, err := gw.UnpackContributionMade(*receipt.Logs[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), made.ProjectId.Uint64())
	assert.Equal(t, contributor.From, made.Contributor)
	assert.Zero(t, made.Amount.Cmp(amount))
}

func TestGatewayReadErrorSurfaces(t *testing.T) {
	backend := chaintest.NewBackend(testChainID)
	gw := newGateway(t, backend)
	backend.FailReads(assert.AnError)

	_, err := gw.GetAllProjects(context.Background())
	require.Error(t, err)
}
