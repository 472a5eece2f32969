package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/models"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
)

// PortfolioReader reads a user's holdings and ledger
type PortfolioReader interface {
	ListInvestmentsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Investment, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
}

// CatalogReader reads the product catalog
type CatalogReader interface {
	ListActive(ctx context.Context) ([]*models.Product, error)
}

// DashboardHandler serves the portal dashboard reads
type DashboardHandler struct {
	portfolio PortfolioReader
	catalog   CatalogReader
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(portfolio PortfolioReader, catalog CatalogReader) *DashboardHandler {
	return &DashboardHandler{
		portfolio: portfolio,
		catalog:   catalog,
	}
}

// ListInvestments returns the authenticated user's holdings, newest first.
func (h *DashboardHandler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	investments, err := h.portfolio.ListInvestmentsByUser(r.Context(), userID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"investments": investments,
	})
}

// ListTransactions returns the authenticated user's ledger, newest first.
func (h *DashboardHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	transactions, err := h.portfolio.ListTransactionsByUser(r.Context(), userID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// ListProducts returns the active product catalog.
func (h *DashboardHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListActive(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
	})
}

// authenticatedUserID pulls the session user id out of the request context.
func authenticatedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return uuid.Nil, false
	}

	return userID, true
}
