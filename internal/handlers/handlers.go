package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vendhub/vendhub-backend/internal/httputil"
	"github.com/vendhub/vendhub-backend/internal/logging"
	"github.com/vendhub/vendhub-backend/internal/models"
	"github.com/vendhub/vendhub-backend/internal/repository"
	"github.com/vendhub/vendhub-backend/internal/service"
)

const dateLayout = "2006-01-02"

// Handler serves the HTTP API for the sync engine and its read surfaces.
type Handler struct {
	sync         *service.SyncService
	transactions *service.TransactionService
	terminals    *service.TerminalService
	logger       *logging.Logger
}

func New(sync *service.SyncService, transactions *service.TransactionService, terminals *service.TerminalService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		sync:         sync,
		transactions: transactions,
		terminals:    terminals,
		logger:       logger,
	}
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TriggerSync handles POST /api/v1/sync. A failed run still answers 200 with
// the full ledger row; only rejected parameters produce an error status.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var params service.SyncParams

	start, err := parseDateParam(r, "period_start")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "period_start must be YYYY-MM-DD")
		return
	}
	params.PeriodStart = start

	end, err := parseDateParam(r, "period_end")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "period_end must be YYYY-MM-DD")
		return
	}
	params.PeriodEnd = end

	if raw := r.URL.Query().Get("items_per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "items_per_page must be a positive integer")
			return
		}
		params.ItemsPerPage = n
	}

	if raw := r.URL.Query().Get("order_desc"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "order_desc must be a boolean")
			return
		}
		params.OrderDesc = &v
	}

	run, err := h.sync.RunSync(r.Context(), params)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPeriod) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if run == nil {
			httputil.WriteError(w, http.StatusInternalServerError, "sync failed")
			return
		}
		// Run failures are reported through the row itself.
		h.logger.ErrorContext(r.Context(), "sync run failed", "error", err)
	}

	httputil.WriteJSON(w, http.StatusOK, run)
}

// RerunSync handles POST /api/v1/sync/runs/{id}/rerun.
func (h *Handler) RerunSync(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.sync.Rerun(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSyncRunNotFound), errors.Is(err, service.ErrRunNotReplayable):
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		case run == nil:
			httputil.WriteError(w, http.StatusInternalServerError, "rerun failed")
			return
		}
		h.logger.ErrorContext(r.Context(), "sync rerun failed", "run_id", id, "error", err)
	}

	httputil.WriteJSON(w, http.StatusOK, run)
}

// ListSyncRuns handles GET /api/v1/sync/runs.
func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	var filter repository.SyncRunFilter

	from, err := parseDateParam(r, "date_from")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "date_from must be YYYY-MM-DD")
		return
	}
	filter.DateFrom = from

	to, err := parseDateParam(r, "date_to")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "date_to must be YYYY-MM-DD")
		return
	}
	filter.DateTo = to

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}

	runs, err := h.sync.ListRuns(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list sync runs", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []*models.SyncRun{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetSyncRun handles GET /api/v1/sync/runs/{id}.
func (h *Handler) GetSyncRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.sync.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSyncRunNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "sync run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get sync run", "run_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get sync run")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, run)
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get sync status", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get sync status")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// SyncHealth handles GET /api/v1/sync/health: a live probe of the source API.
func (h *Handler) SyncHealth(w http.ResponseWriter, r *http.Request) {
	if !h.sync.CheckSourceConnection(r.Context()) {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ok":      false,
			"message": "vendista API is unreachable",
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ListTransactions handles GET /api/v1/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var req models.ListTransactionsRequest

	if raw := r.URL.Query().Get("term_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "term_id must be an integer")
			return
		}
		req.TermID = &id
	}

	from, err := parseDateParam(r, "from")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	req.From = from

	to, err := parseDateParam(r, "to")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	req.To = to

	if raw := r.URL.Query().Get("page"); raw != "" {
		req.Page, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		req.Limit, _ = strconv.Atoi(raw)
	}

	resp, err := h.transactions.List(r.Context(), &req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list transactions", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if resp.Transactions == nil {
		resp.Transactions = []*models.RawTransaction{}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListTerminals handles GET /api/v1/terminals.
func (h *Handler) ListTerminals(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		activeOnly, _ = strconv.ParseBool(raw)
	}

	terminals, err := h.terminals.List(r.Context(), activeOnly)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list terminals", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list terminals")
		return
	}
	if terminals == nil {
		terminals = []*models.Terminal{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"terminals": terminals})
}

// UpdateTerminal handles PUT /api/v1/terminals/{id}.
func (h *Handler) UpdateTerminal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid terminal id")
		return
	}

	var req models.UpdateTerminalRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	term, err := h.terminals.Update(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, repository.ErrTerminalNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "terminal not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update terminal", "terminal_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update terminal")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, term)
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
