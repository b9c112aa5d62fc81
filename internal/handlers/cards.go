package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zistudy/zistudy-backend/internal/middleware"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/services"
)

type CardsHandler struct {
	cards services.StudyCardService
}

func NewCardsHandler(cards services.StudyCardService) *CardsHandler {
	return &CardsHandler{cards: cards}
}

// GET /api/cards/:id
func (h *CardsHandler) GetCardByID(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", fmt.Errorf("not authenticated"))
		return
	}
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_card_id", err)
		return
	}
	card, err := h.cards.GetCard(dbctx.Context{Ctx: c.Request.Context()}, requesterID, cardID)
	if err != nil {
		respondCardError(c, err)
		return
	}
	RespondOK(c, gin.H{"card": card})
}

// GET /api/cards
func (h *CardsHandler) ListCards(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", fmt.Errorf("not authenticated"))
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}
	cards, err := h.cards.ListCards(dbctx.Context{Ctx: c.Request.Context()}, requesterID, c.Query("card_type"), limit)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "card_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"cards": cards})
}

// DELETE /api/cards/:id
func (h *CardsHandler) DeleteCard(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", fmt.Errorf("not authenticated"))
		return
	}
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_card_id", err)
		return
	}
	if err := h.cards.DeleteCard(dbctx.Context{Ctx: c.Request.Context()}, requesterID, cardID); err != nil {
		respondCardError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondCardError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCardNotFound):
		RespondError(c, http.StatusNotFound, "card_not_found", err)
	case errors.Is(err, services.ErrForbidden):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	default:
		RespondError(c, http.StatusInternalServerError, "card_operation_failed", err)
	}
}
