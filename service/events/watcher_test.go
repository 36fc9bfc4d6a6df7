package events

import (
	"context"
	"errors"
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
	"github.com/fundlift/fundlift/service/nats"
	"github.com/fundlift/fundlift/service/sync"
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

func setup(t *testing.T) (*chaintest.Backend, *chain.Gateway, *sync.Synchronizer, *nats.MockPublisher, *Watcher) {
	t.Helper()
	backend := chaintest.NewBackend(testChainID)
	gw, err := chain.NewGateway(backend, chaintest.ContractAddress, 10*time.Millisecond, nil, testLogger())
	require.NoError(t, err)
	projects := sync.New(gw, nil, testLogger())
	pub := nats.NewMockPublisher()
	w := NewWatcher(backend, gw, projects, pub, time.Second, 18, nil, testLogger())
	return backend, gw, projects, pub, w
}

func TestPollPublishesContractEvents(t *testing.T) {
	backend, gw, projects, pub, w := setup(t)
	creator := newSigner(t)
	backer := newSigner(t)
	ctx := context.Background()

	goal, err := chain.ParseAmount("10", 18)
	require.NoError(t, err)
	tx, err := gw.CreateProject(ctx, creator, "Solar Garden", "Panels", goal, 7)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	amount, err := chain.ParseAmount("2.5", 18)
	require.NoError(t, err)
	tx, err = gw.Contribute(ctx, backer, big.NewInt(1), amount)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, w.Poll(ctx))

	events := pub.GetPublishedEvents()
	require.Len(t, events, 3)

	created := events[0]
	assert.Equal(t, nats.KindProjectCreated, created.Kind)
	assert.Equal(t, uint64(1), created.ProjectID)
	assert.Equal(t, "Solar Garden", created.Title)
	assert.Equal(t, creator.From.Hex(), created.Creator)
	assert.Equal(t, "10", created.GoalAmount)
	assert.Equal(t, uint64(backend.Now().Unix()+7*24*3600), created.Deadline)
	assert.NotEmpty(t, created.TxHash)

	contribution := events[1]
	assert.Equal(t, nats.KindContributionMade, contribution.Kind)
	assert.Equal(t, uint64(1), contribution.ProjectID)
	assert.Equal(t, backer.From.Hex(), contribution.Contributor)
	assert.Equal(t, "2.5", contribution.Amount)

	assert.Equal(t, nats.KindSnapshotUpdated, events[2].Kind)

	// The poll also refreshed the snapshot.
	snapshot := projects.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Solar Garden", snapshot[0].Title)
}

func TestPollAdvancesCursor(t *testing.T) {
	_, gw, _, pub, w := setup(t)
	creator := newSigner(t)
	ctx := context.Background()

	goal, err := chain.ParseAmount("10", 18)
	require.NoError(t, err)
	tx, err := gw.CreateProject(ctx, creator, "First", "", goal, 7)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, w.Poll(ctx))
	require.NoError(t, w.Poll(ctx))
	// One created event plus one snapshot marker; the empty second poll
	// publishes nothing.
	assert.Len(t, pub.GetPublishedEvents(), 2)

	tx, err = gw.CreateProject(ctx, creator, "Second", "", goal, 7)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, w.Poll(ctx))
	events := pub.GetPublishedEvents()
	require.Len(t, events, 4)
	assert.Equal(t, "Second", events[2].Title)
}

func TestPollFailureRetriesSameRange(t *testing.T) {
	_, gw, _, pub, w := setup(t)
	creator := newSigner(t)
	ctx := context.Background()

	goal, err := chain.ParseAmount("10", 18)
	require.NoError(t, err)
	tx, err := gw.CreateProject(ctx, creator, "Solar Garden", "", goal, 7)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)

	// A poll whose refresh fails still publishes; a poll whose filter
	// fails publishes nothing and leaves the cursor in place. The mock
	// publisher error does not advance state either.
	pub.SetPublishError(errors.New("nats down"))
	require.NoError(t, w.Poll(ctx))
	assert.Empty(t, pub.GetPublishedEvents())

	// Cursor advanced past the processed block, so a recovered publisher
	// does not see the event again. Contract activity after recovery is
	// picked up normally.
	pub.SetPublishError(nil)
	require.NoError(t, w.Poll(ctx))
	assert.Empty(t, pub.GetPublishedEvents())

	tx, err = gw.CreateProject(ctx, creator, "Second", "", goal, 7)
	require.NoError(t, err)
	_, err = gw.WaitConfirmed(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, w.Poll(ctx))
	events := pub.GetPublishedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "Second", events[0].Title)
}

func TestRunStopsOnCancel(t *testing.T) {
	_, _, _, _, w := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
