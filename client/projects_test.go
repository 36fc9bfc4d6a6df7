package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjects_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/projects", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"projects": []map[string]interface{}{
				{
					"id":               1,
					"title":            "Solar Garden",
					"goal_amount":      "10",
					"raised_amount":    "2.5",
					"progress_percent": 25.0,
					"time_remaining":   "29d 23h remaining",
					"can_contribute":   true,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, uint64(1), projects[0].ID)
	assert.Equal(t, "Solar Garden", projects[0].Title)
	assert.Equal(t, "2.5", projects[0].RaisedAmount)
	assert.InDelta(t, 25.0, projects[0].ProgressPercent, 0.001)
	assert.True(t, projects[0].CanContribute)
}

func TestCreateProject_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/projects", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)
		assert.Equal(t, "Solar Garden", body["title"])
		assert.Equal(t, "10", body["goal_amount"])
		assert.Equal(t, float64(30), body["duration_days"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tx_hash": "0xabc123",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.CreateProject(context.Background(), "Solar Garden", "Panels", "10", 30)
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", result.TxHash)
	assert.False(t, result.RefreshFailed)
}

func TestCreateProject_ValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "title must not be empty",
			"kind":  "validation",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.CreateProject(context.Background(), "", "", "10", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "title must not be empty")
}

func TestContribute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/projects/7/contributions", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2.5", body["amount"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"tx_hash": "0xdef456"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Contribute(context.Background(), 7, "2.5")
	require.NoError(t, err)
	assert.Equal(t, "0xdef456", result.TxHash)
}

func TestWithdrawAndRefund_Paths(t *testing.T) {
	var gotPaths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"tx_hash": "0x1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Withdraw(context.Background(), 3)
	require.NoError(t, err)
	_, err = client.Refund(context.Background(), 4)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/v1/projects/3/withdrawal",
		"/api/v1/projects/4/refund",
	}, gotPaths)
}

func TestGetContribution_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/projects/1/contributions/0x1111111111111111111111111111111111111111", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"project_id": 1,
			"address":    "0x1111111111111111111111111111111111111111",
			"amount":     "2.5",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	contribution, err := client.GetContribution(context.Background(), 1, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "2.5", contribution.Amount)
}

func TestConnect_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/session", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "secret", body["passphrase"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"connected":     true,
			"address":       "0x1111111111111111111111111111111111111111",
			"short_address": "0x1111...1111",
			"network": map[string]interface{}{
				"name":     "Shardeum Sphinx",
				"chain_id": 8080,
				"currency": "SHM",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	session, err := client.Connect(context.Background(), "", "secret")
	require.NoError(t, err)
	assert.True(t, session.Connected)
	assert.Equal(t, "Shardeum Sphinx", session.Network.Name)
	assert.Equal(t, uint64(8080), session.Network.ChainID)
}

func TestConnect_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "wallet unlock rejected"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Connect(context.Background(), "", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet unlock rejected")
}

func TestDisconnect_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Disconnect(context.Background()))
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Health(context.Background()))
}
