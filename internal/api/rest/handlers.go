package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	apperrors "github.com/bidhaus/auction-backend/internal/domain/errors"
	"github.com/bidhaus/auction-backend/internal/domain/values"
	auctionsvc "github.com/bidhaus/auction-backend/internal/service/auction"
)

const maxBodySize = 1 << 20 // 1MB

// Handler serves the auction API
type Handler struct {
	auctions        auctionsvc.Service
	validate        *validator.Validate
	logger          *slog.Logger
	defaultCurrency string
}

// NewHandler creates the REST handler
func NewHandler(auctions auctionsvc.Service, defaultCurrency string, logger *slog.Logger) *Handler {
	return &Handler{
		auctions:        auctions,
		validate:        validator.New(),
		logger:          logger,
		defaultCurrency: defaultCurrency,
	}
}

// handleCreateAuction creates a new auction owned by the caller
func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Authorization required")
		return
	}

	var req CreateAuctionRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	startPrice, err := values.NewMoneyFromFloat(req.StartPrice, h.currency(req.Currency))
	if err != nil {
		writeError(w, r, h.logger, apperrors.NewValidationError("INVALID_START_PRICE", err.Error()))
		return
	}

	a, err := h.auctions.CreateAuction(r.Context(), actor, auctionsvc.CreateAuctionRequest{
		Title:       req.Title,
		Description: req.Description,
		StartPrice:  startPrice,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

// handleListAuctions returns a filtered, paginated auction listing
func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auctions, total, err := h.auctions.ListAuctions(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	perPage := filter.PerPage
	if perPage == 0 {
		perPage = len(auctions)
	}
	resp := AuctionListResponse{
		Auctions: make([]AuctionResponse, len(auctions)),
		Total:    total,
		Page:     filter.Page,
		PerPage:  perPage,
	}
	for i, a := range auctions {
		resp.Auctions[i] = toAuctionResponse(a)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handleGetAuction returns a single auction with its bid history
func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// handleUpdateAuction edits an auction that has not started yet
func (h *Handler) handleUpdateAuction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Authorization required")
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req UpdateAuctionRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	patch := auctionsvc.UpdateAuctionRequest{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if req.StartPrice != nil {
		price, err := values.NewMoneyFromFloat(*req.StartPrice, h.defaultCurrency)
		if err != nil {
			writeError(w, r, h.logger, apperrors.NewValidationError("INVALID_START_PRICE", err.Error()))
			return
		}
		patch.StartPrice = &price
	}

	a, err := h.auctions.UpdateAuction(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// handleDeleteAuction removes an auction that has not started yet
func (h *Handler) handleDeleteAuction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Authorization required")
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.auctions.DeleteAuction(r.Context(), actor, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePlaceBid places a bid on behalf of the caller
func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Authorization required")
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req PlaceBidRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	amount, err := values.NewMoneyFromFloat(req.Amount, h.currency(req.Currency))
	if err != nil {
		writeError(w, r, h.logger, apperrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	placed, err := h.auctions.PlaceBid(r.Context(), actor.ID, id, amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toBidResponse(*placed))
}

// decode reads, unmarshals and validates a JSON request body
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperrors.NewValidationError("INVALID_BODY", "Failed to read request body")
	}
	if len(body) == 0 {
		return apperrors.NewValidationError("EMPTY_BODY", "Request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.NewValidationError("INVALID_JSON", "Invalid JSON in request body")
	}
	return h.validate.Struct(v)
}

func (h *Handler) currency(requested string) string {
	if requested != "" {
		return strings.ToUpper(requested)
	}
	return h.defaultCurrency
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("INVALID_ID", "Invalid auction ID")
	}
	return id, nil
}

func parseListFilter(r *http.Request) (auctionsvc.ListFilter, error) {
	q := r.URL.Query()
	filter := auctionsvc.ListFilter{
		Search: strings.TrimSpace(q.Get("search")),
		SortBy: q.Get("sort"),
	}

	if raw := q.Get("status"); raw != "" {
		status, ok := auction.ParseStatus(raw)
		if !ok {
			return filter, apperrors.NewValidationError("INVALID_STATUS", "Unknown auction status")
		}
		filter.Status = &status
	}

	if raw := q.Get("owner_id"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("INVALID_OWNER_ID", "Invalid owner ID")
		}
		filter.OwnerID = &ownerID
	}

	filter.Ascending = q.Get("order") == "asc"

	var err error
	if filter.Page, err = queryInt(q.Get("page"), 1); err != nil {
		return filter, apperrors.NewValidationError("INVALID_PAGE", "Invalid page number")
	}
	if filter.PerPage, err = queryInt(q.Get("per_page"), 0); err != nil {
		return filter, apperrors.NewValidationError("INVALID_PER_PAGE", "Invalid page size")
	}

	return filter, nil
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
