package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/ledger"
)

type CreditsHandler struct {
	ledger *ledger.Service
}

func NewCreditsHandler(led *ledger.Service) *CreditsHandler {
	return &CreditsHandler{ledger: led}
}

// GetBalance returns the caller's current credit balance
func (h *CreditsHandler) GetBalance(c *gin.Context) {
	userID := getUserID(c)

	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// ListTransactions returns the caller's credit transaction history, newest
// first. The optional limit query parameter caps the page size at 200.
func (h *CreditsHandler) ListTransactions(c *gin.Context) {
	userID := getUserID(c)

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	transactions, err := h.ledger.ListTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch transactions"})
		return
	}

	c.JSON(http.StatusOK, transactions)
}
