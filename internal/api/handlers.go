package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/costbasis"
	"github.com/trogers1052/portfolio-tracker/internal/models"
	"github.com/trogers1052/portfolio-tracker/internal/positions"
)

// PositionService is the position orchestrator as seen by HTTP handlers
type PositionService interface {
	RecordPurchase(ctx context.Context, owner string, req positions.PurchaseRequest) (*positions.Result, error)
	RecordSale(ctx context.Context, owner string, req positions.SaleRequest) (*positions.Result, error)
	EditPosition(ctx context.Context, owner string, req positions.EditRequest) (*positions.Result, error)
	DeletePosition(ctx context.Context, owner string, id int) error
	GetPosition(ctx context.Context, owner string, id int, currentPrice *decimal.Decimal) (*positions.PositionView, error)
	SetCurrentPrice(ctx context.Context, owner string, id int, price decimal.Decimal) (*positions.PositionView, error)
	ListTransactions(ctx context.Context, owner string, positionID int) ([]*models.Transaction, error)
	Reconcile(ctx context.Context, owner string, id int, repair bool) (*positions.Reconciliation, error)
}

// Repository covers the reads and administrative writes that bypass the orchestrator
type Repository interface {
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	ListPortfolios(ctx context.Context, owner string) ([]*models.Portfolio, error)
	ListPositions(ctx context.Context, owner string, portfolioID int) ([]*models.Position, error)
	DeleteTransaction(ctx context.Context, owner string, id int) error
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service PositionService
	repo    Repository
	log     zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(service PositionService, repo Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// CreatePortfolio handles POST /portfolios
func (h *Handler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	p := &models.Portfolio{UserID: ownerFrom(r), Name: req.Name}
	if err := h.repo.CreatePortfolio(r.Context(), p); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// ListPortfolios handles GET /portfolios
func (h *Handler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.repo.ListPortfolios(r.Context(), ownerFrom(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, portfolios)
}

// ListPositions handles GET /portfolios/{portfolioID}/positions
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	list, err := h.repo.ListPositions(r.Context(), ownerFrom(r), portfolioID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// RecordPurchase handles POST /portfolios/{portfolioID}/positions
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}

	var req positions.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.PortfolioID = portfolioID

	res, err := h.service.RecordPurchase(r.Context(), ownerFrom(r), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == models.MutationCreated {
		status = http.StatusCreated
	}
	respondJSON(w, status, res)
}

// GetPosition handles GET /positions/{id}?price=
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var price *decimal.Decimal
	if raw := r.URL.Query().Get("price"); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			http.Error(w, "invalid price", http.StatusBadRequest)
			return
		}
		price = &p
	}

	view, err := h.service.GetPosition(r.Context(), ownerFrom(r), id, price)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// EditPosition handles PATCH /positions/{id}
func (h *Handler) EditPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Quantity        *decimal.Decimal `json:"quantity"`
		Price           *decimal.Decimal `json:"price"`
		TransactionDate time.Time        `json:"transaction_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// An absent quantity would otherwise read as zero and close the position.
	if req.Quantity == nil {
		http.Error(w, "quantity is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.EditPosition(r.Context(), ownerFrom(r), positions.EditRequest{
		PositionID:      id,
		NewQuantity:     *req.Quantity,
		NewPrice:        req.Price,
		TransactionDate: req.TransactionDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// DeletePosition handles DELETE /positions/{id}
func (h *Handler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePosition(r.Context(), ownerFrom(r), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordSale handles POST /positions/{id}/sell
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Quantity        decimal.Decimal `json:"quantity"`
		Price           decimal.Decimal `json:"price"`
		TransactionDate time.Time       `json:"transaction_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.service.RecordSale(r.Context(), ownerFrom(r), positions.SaleRequest{
		PositionID:      id,
		Quantity:        req.Quantity,
		Price:           req.Price,
		TransactionDate: req.TransactionDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// SetCurrentPrice handles PUT /positions/{id}/price
func (h *Handler) SetCurrentPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	view, err := h.service.SetCurrentPrice(r.Context(), ownerFrom(r), id, req.Price)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ListTransactions handles GET /positions/{id}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), ownerFrom(r), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

// Reconcile handles POST /positions/{id}/reconcile?repair=true
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	repair := false
	if raw := r.URL.Query().Get("repair"); raw != "" {
		var err error
		if repair, err = strconv.ParseBool(raw); err != nil {
			http.Error(w, "invalid repair flag", http.StatusBadRequest)
			return
		}
	}

	rec, err := h.service.Reconcile(r.Context(), ownerFrom(r), id, repair)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// DeleteTransaction handles DELETE /transactions/{id}. The owning position
// is not recalculated; run a reconcile with repair afterwards.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	owner := ownerFrom(r)
	if err := h.repo.DeleteTransaction(r.Context(), owner, id); err != nil {
		h.respondError(w, err)
		return
	}
	h.log.Warn().Int("transaction_id", id).Str("owner", owner).Msg("ledger entry deleted")
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, costbasis.ErrInvalidQuantity),
		errors.Is(err, costbasis.ErrInvalidPrice),
		errors.Is(err, costbasis.ErrMissingPrice),
		errors.Is(err, models.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, costbasis.ErrOversell):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicatePosition),
		errors.Is(err, models.ErrDuplicateTransaction),
		errors.Is(err, models.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
