package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/config"
	"github.com/fundlift/fundlift/service/sync"
	"github.com/fundlift/fundlift/service/view"
	"github.com/fundlift/fundlift/service/wallet"
	"github.com/fundlift/fundlift/service/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB - plenty for a project draft

// projectResponse is a project plus the derived facts the dashboard
// renders: progress, time remaining, and per-account control visibility.
type projectResponse struct {
	ID              uint64  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Creator         string  `json:"creator"`
	GoalAmount      string  `json:"goal_amount"`
	RaisedAmount    string  `json:"raised_amount"`
	Deadline        int64   `json:"deadline"`
	IsActive        bool    `json:"is_active"`
	GoalReached     bool    `json:"goal_reached"`
	Expired         bool    `json:"expired"`
	ProgressPercent float64 `json:"progress_percent"`
	TimeRemaining   string  `json:"time_remaining"`
	CanContribute   bool    `json:"can_contribute"`
	CanWithdraw     bool    `json:"can_withdraw"`
	CanRefund       bool    `json:"can_refund"`
}

func projectToResponse(p chain.Project, session *wallet.Session, decimals uint8, now time.Time) projectResponse {
	resp := projectResponse{
		ID:            p.Id.Uint64(),
		Title:         p.Title,
		Description:   p.Description,
		Creator:       p.Creator.Hex(),
		GoalAmount:    chain.FormatAmount(p.GoalAmount, decimals),
		RaisedAmount:  chain.FormatAmount(p.RaisedAmount, decimals),
		Deadline:      p.DeadlineUnix(),
		IsActive:      p.IsActive,
		GoalReached:   p.GoalReached,
		Expired:       view.IsExpired(p, now),
		TimeRemaining: view.TimeRemainingLabel(p, now),
	}
	if pct, err := view.ProgressPercent(p); err == nil {
		resp.ProgressPercent = pct
	}
	if session != nil {
		resp.CanContribute = view.CanContribute(p, session.Account, now)
		resp.CanWithdraw = view.CanWithdraw(p, session.Account, now)
		resp.CanRefund = view.CanRefund(p, session.Account, now)
	}
	return resp
}

// handleListProjects returns the current project snapshot with derived
// facts for the connected account, if any.
// GET /api/v1/projects
func handleListProjects(projects *sync.Synchronizer, sessions *sessionState, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := projects.Snapshot()
		session := sessions.get()
		now := time.Now()
		decimals := cfg.TargetNetwork.Currency.Decimals

		resp := make([]projectResponse, len(snapshot))
		for i, p := range snapshot {
			resp[i] = projectToResponse(p, session, decimals, now)
		}

		refreshed, ok := projects.LastRefreshed()
		payload := map[string]interface{}{
			"projects": resp,
		}
		if ok {
			payload["refreshed_at"] = refreshed.UTC().Format(time.RFC3339)
		}

		logger.Debug("projects listed", "count", len(resp))
		writeJSON(w, payload, http.StatusOK)
	})
}

// handleRefreshProjects forces a snapshot refresh.
// POST /api/v1/projects/refresh
func handleRefreshProjects(projects *sync.Synchronizer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := projects.Refresh(r.Context())
		if err != nil {
			logger.Error("manual refresh failed", "error", err)
			writeError(w, "failed to refresh projects from chain", http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]interface{}{
			"count": len(snapshot),
		}, http.StatusOK)
	})
}

type createProjectRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	GoalAmount   string `json:"goal_amount"`
	DurationDays uint64 `json:"duration_days"`
}

type workflowResponse struct {
	TxHash        string `json:"tx_hash"`
	RefreshFailed bool   `json:"refresh_failed,omitempty"`
}

// handleCreateProject runs the create-project workflow.
// POST /api/v1/projects
func handleCreateProject(runner *workflow.Runner, sessions *sessionState, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessions.get()
		if session == nil {
			writeError(w, "no wallet connected", http.StatusUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := runner.Create(r.Context(), session, workflow.CreateRequest{
			Title:        req.Title,
			Description:  req.Description,
			GoalAmount:   req.GoalAmount,
			DurationDays: req.DurationDays,
		})
		if err != nil {
			writeWorkflowError(w, logger, err)
			return
		}

		logger.Info("project created", "title", req.Title, "tx", result.TxHash.Hex())
		writeJSON(w, workflowResponse{
			TxHash:        result.TxHash.Hex(),
			RefreshFailed: result.RefreshFailed,
		}, http.StatusCreated)
	})
}

type contributeRequest struct {
	Amount string `json:"amount"`
}

// handleContribute runs the contribution workflow.
// POST /api/v1/projects/{id}/contributions
func handleContribute(runner *workflow.Runner, sessions *sessionState, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessions.get()
		if session == nil {
			writeError(w, "no wallet connected", http.StatusUnauthorized)
			return
		}

		id, err := parseProjectID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req contributeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := runner.Contribute(r.Context(), session, workflow.ContributeRequest{
			ProjectID: id,
			Amount:    req.Amount,
		})
		if err != nil {
			writeWorkflowError(w, logger, err)
			return
		}

		logger.Info("contribution made", "project_id", id, "amount", req.Amount, "tx", result.TxHash.Hex())
		writeJSON(w, workflowResponse{
			TxHash:        result.TxHash.Hex(),
			RefreshFailed: result.RefreshFailed,
		}, http.StatusCreated)
	})
}

// handleWithdraw runs the withdrawal workflow.
// POST /api/v1/projects/{id}/withdrawal
func handleWithdraw(runner *workflow.Runner, sessions *sessionState, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessions.get()
		if session == nil {
			writeError(w, "no wallet connected", http.StatusUnauthorized)
			return
		}

		id, err := parseProjectID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := runner.Withdraw(r.Context(), session, id)
		if err != nil {
			writeWorkflowError(w, logger, err)
			return
		}

		logger.Info("funds withdrawn", "project_id", id, "tx", result.TxHash.Hex())
		writeJSON(w, workflowResponse{
			TxHash:        result.TxHash.Hex(),
			RefreshFailed: result.RefreshFailed,
		}, http.StatusOK)
	})
}

// handleRefund runs the refund workflow.
// POST /api/v1/projects/{id}/refund
func handleRefund(runner *workflow.Runner, sessions *sessionState, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessions.get()
		if session == nil {
			writeError(w, "no wallet connected", http.StatusUnauthorized)
			return
		}

		id, err := parseProjectID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := runner.Refund(r.Context(), session, id)
		if err != nil {
			writeWorkflowError(w, logger, err)
			return
		}

		logger.Info("refund processed", "project_id", id, "tx", result.TxHash.Hex())
		writeJSON(w, workflowResponse{
			TxHash:        result.TxHash.Hex(),
			RefreshFailed: result.RefreshFailed,
		}, http.StatusOK)
	})
}

// handleGetUserContribution reads an address's total contribution to a
// project directly from the contract.
// GET /api/v1/projects/{id}/contributions/{address}
func handleGetUserContribution(gateway *chain.Gateway, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseProjectID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		addr := r.PathValue("address")
		if !common.IsHexAddress(addr) {
			writeError(w, "invalid address", http.StatusBadRequest)
			return
		}

		amount, err := gateway.GetUserContribution(r.Context(), new(big.Int).SetUint64(id), common.HexToAddress(addr))
		if err != nil {
			logger.Error("failed to read user contribution", "project_id", id, "address", addr, "error", err)
			writeError(w, "failed to read contribution from chain", http.StatusBadGateway)
			return
		}

		writeJSON(w, map[string]interface{}{
			"project_id": id,
			"address":    common.HexToAddress(addr).Hex(),
			"amount":     chain.FormatAmount(amount, cfg.TargetNetwork.Currency.Decimals),
		}, http.StatusOK)
	})
}

type connectWalletRequest struct {
	Account    string `json:"account"`
	Passphrase string `json:"passphrase"`
}

// handleConnectWallet unlocks a keystore account and binds the session.
// POST /api/v1/session
func handleConnectWallet(connector *wallet.Connector, sessions *sessionState, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req connectWalletRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		session, err := connector.Connect(r.Context(), req.Account, req.Passphrase)
		if err != nil {
			switch {
			case errors.Is(err, wallet.ErrNoWalletFound):
				writeError(w, "no wallet found", http.StatusNotFound)
			case errors.Is(err, wallet.ErrUserRejected):
				writeError(w, "wallet unlock rejected", http.StatusUnauthorized)
			case errors.Is(err, wallet.ErrNetworkSwitchFailed):
				logger.Error("network activation failed", "error", err)
				writeError(w, "failed to activate target network", http.StatusBadGateway)
			default:
				logger.Error("wallet connect failed", "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		sessions.set(session)
		logger.Info("wallet connected",
			"address", session.Account.Hex(),
			"network", session.Network.Name,
		)
		writeJSON(w, sessionToResponse(session), http.StatusOK)
	})
}

// handleGetSession reports the current wallet session.
// GET /api/v1/session
func handleGetSession(sessions *sessionState, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessions.get()
		if session == nil {
			writeJSON(w, map[string]interface{}{
				"connected": false,
				"network":   cfg.TargetNetwork.Name,
			}, http.StatusOK)
			return
		}
		writeJSON(w, sessionToResponse(session), http.StatusOK)
	})
}

// handleDisconnectWallet clears the session.
// DELETE /api/v1/session
func handleDisconnectWallet(sessions *sessionState, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions.set(nil)
		logger.Info("wallet disconnected")
		w.WriteHeader(http.StatusNoContent)
	})
}

func sessionToResponse(session *wallet.Session) map[string]interface{} {
	return map[string]interface{}{
		"connected":     true,
		"address":       session.Account.Hex(),
		"short_address": wallet.ShortAddress(session.Account),
		"network": map[string]interface{}{
			"name":     session.Network.Name,
			"chain_id": session.Network.ChainID,
			"currency": session.Network.Currency.Symbol,
		},
	}
}

func parseProjectID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid project id")
	}
	return id, nil
}

// writeWorkflowError maps a workflow failure onto an HTTP status and a
// JSON body carrying the failure kind.
func writeWorkflowError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		logger.Error("workflow failed", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusBadGateway
	switch werr.Kind {
	case workflow.FailureValidation:
		status = http.StatusBadRequest
	case workflow.FailureWalletRejected:
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": werr.Err.Error(),
		"kind":  string(werr.Kind),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
