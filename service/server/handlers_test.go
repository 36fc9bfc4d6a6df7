package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/chain/chaintest"
	"github.com/fundlift/fundlift/service/config"
	"github.com/fundlift/fundlift/service/sync"
	"github.com/fundlift/fundlift/service/wallet"
	"github.com/fundlift/fundlift/service/workflow"
)

const testPassphrase = "correct horse"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T) *wallet.Session {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(int64(config.ShardeumSphinx.ChainID)))
	require.NoError(t, err)
	return &wallet.Session{Account: opts.From, Network: config.ShardeumSphinx, Signer: opts}
}

type testServer struct {
	srv     *Server
	handler http.Handler
	backend *chaintest.Backend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := chaintest.NewBackend(config.ShardeumSphinx.ChainID)
	gw, err := chain.NewGateway(backend, chaintest.ContractAddress, 10*time.Millisecond, nil, testLogger())
	require.NoError(t, err)
	projects := sync.New(gw, nil, testLogger())
	runner := workflow.NewRunner(gw, projects, nil, 18, nil, testLogger())

	cfg := &config.Config{
		TargetNetwork:   config.ShardeumSphinx,
		ContractAddress: chaintest.ContractAddress,
	}

	dial := func(ctx context.Context, rawurl string) (wallet.NodeClient, error) {
		return backend, nil
	}
	ksDir := t.TempDir()
	ks := keystore.NewKeyStore(ksDir, keystore.LightScryptN, keystore.LightScryptP)
	_, err = ks.NewAccount(testPassphrase)
	require.NoError(t, err)
	connector := wallet.NewConnector(ksDir, config.ShardeumSphinx, config.NewNetworkRegistry(config.ShardeumSphinx), dial, testLogger())

	srv := New("", cfg, projects, runner, gw, connector, nil, nil, testLogger())
	return &testServer{srv: srv, handler: srv.Handler(), backend: backend}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestListProjectsEmpty(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "GET", "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Projects []projectResponse `json:"projects"`
	}
	decodeBody(t, rec, &resp)
	assert.Empty(t, resp.Projects)
}

func TestMutatingRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{"POST", "/api/v1/projects"},
		{"POST", "/api/v1/projects/1/contributions"},
		{"POST", "/api/v1/projects/1/withdrawal"},
		{"POST", "/api/v1/projects/1/refund"},
	} {
		rec := ts.do(t, tc.method, tc.path, map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestCreateProjectAndList(t *testing.T) {
	ts := newTestServer(t)
	creator := newSession(t)
	ts.srv.WithSession(creator)

	rec := ts.do(t, "POST", "/api/v1/projects", createProjectRequest{
		Title:        "Solar Garden",
		Description:  "Panels for the block",
		GoalAmount:   "10",
		DurationDays: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var wf workflowResponse
	decodeBody(t, rec, &wf)
	assert.NotEmpty(t, wf.TxHash)

	rec = ts.do(t, "GET", "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Projects    []projectResponse `json:"projects"`
		RefreshedAt string            `json:"refreshed_at"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Projects, 1)
	p := resp.Projects[0]
	assert.Equal(t, "Solar Garden", p.Title)
	assert.Equal(t, creator.Account.Hex(), p.Creator)
	assert.Equal(t, "10", p.GoalAmount)
	assert.Equal(t, "0", p.RaisedAmount)
	assert.False(t, p.Expired)
	assert.NotEmpty(t, resp.RefreshedAt)

	// Creators see no contribute control on their own project.
	assert.False(t, p.CanContribute)
	assert.False(t, p.CanWithdraw)
	assert.False(t, p.CanRefund)
}

func TestCreateProjectValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.WithSession(newSession(t))

	rec := ts.do(t, "POST", "/api/v1/projects", createProjectRequest{
		GoalAmount:   "10",
		DurationDays: 30,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, string(workflow.FailureValidation), resp["kind"])
}

func TestContributeFlow(t *testing.T) {
	ts := newTestServer(t)
	creator := newSession(t)
	backer := newSession(t)

	ts.srv.WithSession(creator)
	rec := ts.do(t, "POST", "/api/v1/projects", createProjectRequest{
		Title:        "Solar Garden",
		GoalAmount:   "10",
		DurationDays: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	ts.srv.WithSession(backer)
	rec = ts.do(t, "POST", "/api/v1/projects/1/contributions", contributeRequest{Amount: "2.5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, "GET", "/api/v1/projects", nil)
	var resp struct {
		Projects []projectResponse `json:"projects"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, "2.5", resp.Projects[0].RaisedAmount)
	assert.InDelta(t, 25.0, resp.Projects[0].ProgressPercent, 0.001)
	assert.True(t, resp.Projects[0].CanContribute)

	rec = ts.do(t, "GET", "/api/v1/projects/1/contributions/"+backer.Account.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var contribution map[string]interface{}
	decodeBody(t, rec, &contribution)
	assert.Equal(t, "2.5", contribution["amount"])
}

func TestGetUserContributionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/projects/abc/contributions/0x1111111111111111111111111111111111111111", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/projects/1/contributions/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawEndpoint(t *testing.T) {
	ts := newTestServer(t)
	creator := newSession(t)
	backer := newSession(t)

	ts.srv.WithSession(creator)
	rec := ts.do(t, "POST", "/api/v1/projects", createProjectRequest{
		Title:        "Solar Garden",
		GoalAmount:   "10",
		DurationDays: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	ts.srv.WithSession(backer)
	rec = ts.do(t, "POST", "/api/v1/projects/1/contributions", contributeRequest{Amount: "10"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The backer is not the creator, so the gate rejects the attempt.
	rec = ts.do(t, "POST", "/api/v1/projects/1/withdrawal", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.srv.WithSession(creator)
	rec = ts.do(t, "POST", "/api/v1/projects/1/withdrawal", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.backend.FailReads(errors.New("rpc unavailable"))
	rec := ts.do(t, "POST", "/api/v1/projects/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	ts.backend.FailReads(nil)
	rec = ts.do(t, "POST", "/api/v1/projects/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decodeBody(t, rec, &status)
	assert.Equal(t, false, status["connected"])

	rec = ts.do(t, "POST", "/api/v1/session", connectWalletRequest{Passphrase: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "POST", "/api/v1/session", connectWalletRequest{Passphrase: testPassphrase})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var connected map[string]interface{}
	decodeBody(t, rec, &connected)
	assert.Equal(t, true, connected["connected"])
	assert.NotEmpty(t, connected["address"])
	assert.NotEmpty(t, connected["short_address"])

	rec = ts.do(t, "DELETE", "/api/v1/session", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/session", nil)
	decodeBody(t, rec, &status)
	assert.Equal(t, false, status["connected"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("OPTIONS", "/api/v1/projects", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
