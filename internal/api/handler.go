package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
	"github.com/mtlprog/vaultstat/internal/snapshot"
	"github.com/mtlprog/vaultstat/internal/subgraph"
)

// Earnings is the live earnings surface served by the API.
type Earnings interface {
	ProtocolEarnings(ctx context.Context) (domain.ProtocolEarningsReport, error)
	AssetEarnings(ctx context.Context, vault common.Address) (domain.EarningsReport, error)
	AccountEarnings(ctx context.Context, account common.Address) (domain.AccountEarningsReport, error)
}

// Handler provides HTTP endpoints for the earnings API.
type Handler struct {
	snapshots *snapshot.Service
	earnings  Earnings
	network   string
}

// NewHandler creates a new API handler serving network.
func NewHandler(snapshots *snapshot.Service, earnings Earnings, network string) *Handler {
	if snapshots == nil {
		panic("api.NewHandler: snapshots is nil")
	}
	if earnings == nil {
		panic("api.NewHandler: earnings is nil")
	}
	return &Handler{snapshots: snapshots, earnings: earnings, network: network}
}

// GetProtocolEarnings handles GET /api/v1/earnings/protocol.
// A report with faults is still a 200; callers inspect the faults list.
func (h *Handler) GetProtocolEarnings(w http.ResponseWriter, r *http.Request) {
	report, err := h.earnings.ProtocolEarnings(r.Context())
	if err != nil {
		h.writeEarningsError(w, "protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetVaultEarnings handles GET /api/v1/earnings/vaults/{vault}.
func (h *Handler) GetVaultEarnings(w http.ResponseWriter, r *http.Request) {
	vault, ok := pathAddress(w, r, "vault")
	if !ok {
		return
	}
	report, err := h.earnings.AssetEarnings(r.Context(), vault)
	if err != nil {
		h.writeEarningsError(w, vault.Hex(), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetAccountEarnings handles GET /api/v1/earnings/accounts/{account}.
func (h *Handler) GetAccountEarnings(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "account")
	if !ok {
		return
	}
	report, err := h.earnings.AccountEarnings(r.Context(), account)
	if err != nil {
		h.writeEarningsError(w, account.Hex(), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetLatestSnapshot handles GET /api/v1/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.GetLatest(r.Context(), h.network)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshots found")
			return
		}
		slog.Error("failed to get latest snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetSnapshotByDate handles GET /api/v1/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := r.PathValue("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	s, err := h.snapshots.GetByDate(r.Context(), h.network, date)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found for date")
			return
		}
		slog.Error("failed to get snapshot by date", "date", dateStr, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListSnapshots handles GET /api/v1/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 365
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}

	snapshots, err := h.snapshots.List(r.Context(), h.network, limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GenerateSnapshot handles POST /api/v1/snapshots/generate.
func (h *Handler) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := h.snapshots.Generate(r.Context(), h.network, time.Now())
	if err != nil {
		slog.Error("failed to generate snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate snapshot")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := r.PathValue(name)
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, "invalid "+name+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// writeEarningsError maps calculation failures onto HTTP statuses.
func (h *Handler) writeEarningsError(w http.ResponseWriter, item string, err error) {
	status, msg := earningsErrorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("earnings request failed", "item", item, "error", err)
	} else {
		slog.Debug("earnings request rejected", "item", item, "error", err)
	}
	writeError(w, status, msg)
}

func earningsErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, subgraph.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrEarningsUnderflow), errors.Is(err, fixedpoint.ErrUnderflow):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusBadGateway, "price unavailable"
	case errors.Is(err, domain.ErrSubgraphUnreachable):
		return http.StatusBadGateway, "subgraph unreachable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
