package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"provably-fair-dice/internal/middleware"
	"provably-fair-dice/internal/models"
	"provably-fair-dice/internal/services"
)

// TokenIssuer is satisfied by *services.JWTService.
type TokenIssuer interface {
	GenerateToken(playerID string) (string, *services.Claims, error)
}

type UserHandler struct {
	tokens  TokenIssuer
	ledgers LedgerProvider
	log     *zap.Logger
}

func NewUserHandler(tokens TokenIssuer, ledgers LedgerProvider, log *zap.Logger) *UserHandler {
	return &UserHandler{
		tokens:  tokens,
		ledgers: ledgers,
		log:     log,
	}
}

// GuestLogin creates a fresh player identity. The ledger is created lazily on
// first use.
func (h *UserHandler) GuestLogin(c *gin.Context) {
	playerID := models.GeneratePlayerID()

	token, claims, err := h.tokens.GenerateToken(playerID)
	if err != nil {
		h.log.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"player_id":  playerID,
		"session_id": claims.SessionID,
		"expires_at": claims.ExpiresAt.Time.Unix(),
	})
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	playerID := c.GetString(middleware.ContextPlayerID)
	if playerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ledger, err := h.ledgers.Get(c.Request.Context(), playerID)
	if err != nil {
		h.log.Error("failed to load ledger", zap.String("player_id", playerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"player_id":  playerID,
		"session_id": c.GetString(middleware.ContextSessionID),
		"state":      ledger.PublicState(),
	})
}
