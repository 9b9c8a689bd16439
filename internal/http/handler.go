package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/niota4/ageless-literature-sub006/internal/auction"
	"github.com/niota4/ageless-literature-sub006/internal/bids"
	"github.com/niota4/ageless-literature-sub006/internal/claims"
	"github.com/niota4/ageless-literature-sub006/internal/feed"
	"github.com/niota4/ageless-literature-sub006/internal/models"
	"github.com/niota4/ageless-literature-sub006/internal/store"
)

type Handler struct {
	Engine *auction.Engine
	Ledger *bids.Ledger
	Claims *claims.Service
	Store  *store.Store
	Hub    *feed.Hub // nil when the feed is disabled

	validate *validator.Validate
}

func NewHandler(engine *auction.Engine, ledger *bids.Ledger, claimsSvc *claims.Service, st *store.Store, hub *feed.Hub) *Handler {
	return &Handler{
		Engine:   engine,
		Ledger:   ledger,
		Claims:   claimsSvc,
		Store:    st,
		Hub:      hub,
		validate: validator.New(),
	}
}

type createAuctionRequest struct {
	ItemID             string    `json:"itemId" validate:"required,uuid"`
	ItemType           string    `json:"itemType" validate:"required,oneof=book product"`
	StartingBid        string    `json:"startingBid" validate:"required"`
	ReservePrice       string    `json:"reservePrice" validate:"omitempty"`
	StartsAt           time.Time `json:"startsAt" validate:"required"`
	EndsAt             time.Time `json:"endsAt" validate:"required"`
	PaymentWindowHours int       `json:"paymentWindowHours" validate:"gte=0"`
	EndPolicyOnNoSale  string    `json:"endPolicyOnNoSale" validate:"omitempty,oneof=none relist convert_fixed unlist"`
	RelistDelayHours   int       `json:"relistDelayHours" validate:"gte=0"`
	RelistMaxCount     int       `json:"relistMaxCount" validate:"gte=0"`
	ConvertPriceSource string    `json:"convertPriceSource" validate:"omitempty,oneof=manual reserve highest_bid starting_bid"`
	ConvertManualPrice *string   `json:"convertManualPrice"`
	ConvertMarkupBps   int       `json:"convertMarkupBasisPoints" validate:"gte=0"`
}

type auctionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ItemID             uuid.UUID  `json:"itemId"`
	ItemType           string     `json:"itemType"`
	SellerID           uuid.UUID  `json:"sellerId"`
	StartingBid        string     `json:"startingBid"`
	ReservePrice       string     `json:"reservePrice"`
	StartsAt           time.Time  `json:"startsAt"`
	EndsAt             time.Time  `json:"endsAt"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
	PaymentWindowHours int        `json:"paymentWindowHours"`
	PaymentDeadline    *time.Time `json:"paymentDeadline,omitempty"`
	Status             string     `json:"status"`
	EndOutcomeReason   string     `json:"endOutcomeReason,omitempty"`
	WinnerBidID        *uuid.UUID `json:"winnerBidId,omitempty"`
	CurrentHighAmount  string     `json:"currentHighAmount,omitempty"`
	RelistCount        int        `json:"relistCount"`
	ParentAuctionID    *uuid.UUID `json:"parentAuctionId,omitempty"`
	EndPolicyOnNoSale  string     `json:"endPolicyOnNoSale"`
}

func toAuctionResponse(a *models.Auction) auctionResponse {
	resp := auctionResponse{
		ID:                 a.ID,
		ItemID:             a.ItemID,
		ItemType:           string(a.ItemType),
		SellerID:           a.SellerID,
		StartingBid:        a.StartingBid.String(),
		ReservePrice:       a.ReservePrice.String(),
		StartsAt:           a.StartsAt,
		EndsAt:             a.EndsAt,
		EndedAt:            a.EndedAt,
		PaymentWindowHours: a.PaymentWindowHours,
		PaymentDeadline:    a.PaymentDeadline,
		Status:             string(a.Status),
		EndOutcomeReason:   string(a.EndOutcome),
		WinnerBidID:        a.WinnerBidID,
		RelistCount:        a.RelistCount,
		ParentAuctionID:    a.ParentAuctionID,
		EndPolicyOnNoSale:  string(a.EndPolicy),
	}
	if a.CurrentHighAmount != nil {
		resp.CurrentHighAmount = a.CurrentHighAmount.String()
	}
	return resp
}

func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	startingBid, err := decimal.NewFromString(req.StartingBid)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startingBid")
		return
	}
	reserve := decimal.Zero
	if req.ReservePrice != "" {
		if reserve, err = decimal.NewFromString(req.ReservePrice); err != nil {
			writeError(w, http.StatusBadRequest, "invalid reservePrice")
			return
		}
	}
	var manualPrice *decimal.Decimal
	if req.ConvertManualPrice != nil {
		d, err := decimal.NewFromString(*req.ConvertManualPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid convertManualPrice")
			return
		}
		manualPrice = &d
	}

	a, err := h.Engine.Create(r.Context(), auction.CreateParams{
		ItemRef:            models.ItemRef{Type: models.ItemType(req.ItemType), ID: uuid.MustParse(req.ItemID)},
		StartingBid:        startingBid,
		ReservePrice:       reserve,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		PaymentWindowHours: req.PaymentWindowHours,
		EndPolicy:          models.EndPolicy(req.EndPolicyOnNoSale),
		RelistDelayHours:   req.RelistDelayHours,
		RelistMaxCount:     req.RelistMaxCount,
		ConvertPriceSource: models.PriceSource(req.ConvertPriceSource),
		ConvertManualPrice: manualPrice,
		ConvertMarkupBps:   req.ConvertMarkupBps,
	})
	if err != nil {
		switch err {
		case auction.ErrInvalidSchedule, auction.ErrInvalidStartingBid, auction.ErrManualPriceRequired:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeDomainError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "auctionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	a, err := h.Store.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

type bidResponse struct {
	ID       uuid.UUID `json:"id"`
	BidderID uuid.UUID `json:"bidderId"`
	Amount   string    `json:"amount"`
	PlacedAt time.Time `json:"placedAt"`
}

func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "auctionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	list, err := h.Store.ListBids(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]bidResponse, 0, len(list))
	for _, b := range list {
		out = append(out, bidResponse{ID: b.ID, BidderID: b.BidderID, Amount: b.Amount.String(), PlacedAt: b.PlacedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListRelists walks the relist chain one generation forward.
func (h *Handler) ListRelists(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "auctionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	list, err := h.Store.ListRelists(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]auctionResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAuctionResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type placeBidRequest struct {
	Amount string `json:"amount" validate:"required"`
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(chi.URLParam(r, "auctionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	bidderID, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	bid, err := h.Ledger.PlaceBid(r.Context(), auctionID, bidderID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bidResponse{ID: bid.ID, BidderID: bid.BidderID, Amount: bid.Amount.String(), PlacedAt: bid.PlacedAt})
}

type winResponse struct {
	ID            uuid.UUID  `json:"id"`
	AuctionID     uuid.UUID  `json:"auctionId"`
	WinningAmount string     `json:"winningAmount"`
	Status        string     `json:"status"`
	OrderID       *uuid.UUID `json:"orderId,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

func toWinResponse(win *models.AuctionWin) winResponse {
	return winResponse{
		ID:            win.ID,
		AuctionID:     win.AuctionID,
		WinningAmount: win.WinningAmount.String(),
		Status:        string(win.Status),
		OrderID:       win.OrderID,
		PaidAt:        win.PaidAt,
	}
}

func (h *Handler) winID(w http.ResponseWriter, r *http.Request) (winID, buyerID uuid.UUID, ok bool) {
	winID, err := uuid.Parse(chi.URLParam(r, "winId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid win id")
		return uuid.Nil, uuid.Nil, false
	}
	buyerID, hasUser := userID(r)
	if !hasUser {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return uuid.Nil, uuid.Nil, false
	}
	return winID, buyerID, true
}

func (h *Handler) GetWin(w http.ResponseWriter, r *http.Request) {
	winID, buyerID, ok := h.winID(w, r)
	if !ok {
		return
	}
	win, err := h.Store.GetWin(r.Context(), winID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if win.UserID != buyerID {
		writeDomainError(w, models.ErrNotWinOwner)
		return
	}
	writeJSON(w, http.StatusOK, toWinResponse(win))
}

func (h *Handler) ClaimWin(w http.ResponseWriter, r *http.Request) {
	winID, buyerID, ok := h.winID(w, r)
	if !ok {
		return
	}
	win, err := h.Claims.Claim(r.Context(), winID, buyerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWinResponse(win))
}

func (h *Handler) PayWin(w http.ResponseWriter, r *http.Request) {
	winID, buyerID, ok := h.winID(w, r)
	if !ok {
		return
	}
	win, err := h.Claims.Pay(r.Context(), winID, buyerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWinResponse(win))
}

// Feed streams an auction's live events over a websocket.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "auctionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	h.Hub.ServeWS(w, r, id.String())
}
