package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"launchpad-indexer/internal/cache"
	"launchpad-indexer/internal/domain"
	"launchpad-indexer/internal/storage"
)

type tokenResponse struct {
	Address        string               `json:"address"`
	Name           string               `json:"name"`
	Symbol         string               `json:"symbol"`
	Creator        string               `json:"creator,omitempty"`
	TotalSupply    string               `json:"totalSupply"`
	ReserveRatio   uint32               `json:"reserveRatio"`
	ContentURI     string               `json:"contentUri,omitempty"`
	LogoURL        string               `json:"logoUrl,omitempty"`
	Description    string               `json:"description,omitempty"`
	Links          domain.SocialLinks   `json:"links"`
	CreatedBlock   uint64               `json:"createdBlock,omitempty"`
	CreatedTxHash  string               `json:"createdTxHash,omitempty"`
	CreatedAt      *time.Time           `json:"createdAt,omitempty"`
	TradingEnabled bool                 `json:"tradingEnabled"`
	Metrics        tokenMetricsResponse `json:"metrics"`
}

type tokenMetricsResponse struct {
	CurrentPrice   float64    `json:"currentPrice"`
	MarketCap      float64    `json:"marketCap"`
	CurrentSupply  string     `json:"currentSupply"`
	ReserveBalance string     `json:"reserveBalance"`
	HolderCount    int64      `json:"holderCount"`
	Volume24h      float64    `json:"volume24h"`
	PriceChange24h float64    `json:"priceChange24h"`
	UpdatedAt      *time.Time `json:"updatedAt"`
}

func newTokenResponse(t *domain.Token) tokenResponse {
	resp := tokenResponse{
		Address:        t.Address,
		Name:           t.Name,
		Symbol:         t.Symbol,
		Creator:        t.Creator,
		TotalSupply:    t.TotalSupply,
		ReserveRatio:   t.ReserveRatio,
		ContentURI:     t.ContentURI,
		LogoURL:        t.LogoURL,
		Description:    t.Description,
		Links:          t.Links,
		CreatedBlock:   t.CreatedBlock,
		CreatedTxHash:  t.CreatedTxHash,
		TradingEnabled: t.TradingEnabled,
		Metrics: tokenMetricsResponse{
			CurrentPrice:   t.Metrics.CurrentPrice,
			MarketCap:      t.Metrics.MarketCap,
			CurrentSupply:  t.Metrics.CurrentSupply,
			ReserveBalance: t.Metrics.ReserveBalance,
			HolderCount:    t.Metrics.HolderCount,
			Volume24h:      t.Metrics.Volume24h,
			PriceChange24h: t.Metrics.PriceChange24h,
			UpdatedAt:      t.Metrics.UpdatedAt,
		},
	}
	if !t.CreatedAt.IsZero() {
		at := t.CreatedAt
		resp.CreatedAt = &at
	}
	return resp
}

// addressVar returns the normalized {address} route variable, writing a 400
// when it is not a hex address.
func addressVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return "", false
	}
	return domain.NormalizeAddress(raw), true
}

// handleGetToken serves a token read-through the cache. A cache failure
// falls back to the store.
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	address, ok := addressVar(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var resp tokenResponse
	err := cache.GetJSON(ctx, s.cache, cache.TokenKey(address), &resp)
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Debug("token cache read failed", zap.String("address", address), zap.Error(err))
	}

	tok, err := s.tokens.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		s.logger.Error("token read failed", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token read failed")
		return
	}

	resp = newTokenResponse(tok)
	if err := cache.SetJSON(ctx, s.cache, cache.TokenKey(address), resp, TokenCacheTTL); err != nil {
		s.logger.Debug("token cache write failed", zap.String("address", address), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}
