package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"provably-fair-dice/internal/fair"
	"provably-fair-dice/internal/middleware"
	"provably-fair-dice/internal/models"
	"provably-fair-dice/internal/services"
)

// LedgerProvider is satisfied by *services.LedgerRegistry.
type LedgerProvider interface {
	Get(ctx context.Context, playerID string) (*services.RoundLedger, error)
}

type GameHandler struct {
	ledgers LedgerProvider
	log     *zap.Logger
}

func NewGameHandler(ledgers LedgerProvider, log *zap.Logger) *GameHandler {
	return &GameHandler{
		ledgers: ledgers,
		log:     log,
	}
}

func (h *GameHandler) ledger(c *gin.Context) (*services.RoundLedger, bool) {
	playerID := c.GetString(middleware.ContextPlayerID)

	ledger, err := h.ledgers.Get(c.Request.Context(), playerID)
	if err != nil {
		h.log.Error("failed to load ledger", zap.String("player_id", playerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load game",
			"details": err.Error(),
		})
		return nil, false
	}
	return ledger, true
}

func (h *GameHandler) respondLedgerError(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidBet),
		errors.Is(err, services.ErrInvalidClientSeed),
		errors.Is(err, services.ErrInvalidAdjustMode):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConcurrentBet),
		errors.Is(err, services.ErrRollInProgress):
		status = http.StatusConflict
	default:
		h.log.Error(action, zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   action,
		"details": err.Error(),
	})
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *GameHandler) GetState(c *gin.Context) {
	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   ledger.PublicState(),
		"game": gin.H{
			"win_chance":    fair.WinChance,
			"multiplier":    fair.Multiplier,
			"win_threshold": fair.WinThreshold,
		},
	})
}

func (h *GameHandler) GetHistory(c *gin.Context) {
	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	limitStr := c.DefaultQuery("limit", strconv.Itoa(models.MaxHistory))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > models.MaxHistory {
		limit = models.MaxHistory
	}

	rolls := ledger.History()
	if len(rolls) > limit {
		rolls = rolls[:limit]
	}
	wins, losses := models.HistoryResult(rolls)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rolls":   rolls,
		"count":   len(rolls),
		"wins":    wins,
		"losses":  losses,
	})
}

func (h *GameHandler) PlaceBet(c *gin.Context) {
	var req models.BetRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	var round *models.PendingRound
	var err error
	if req.Amount == nil {
		round, err = ledger.PlaceCurrentBet()
	} else {
		round, err = ledger.PlaceBet(*req.Amount)
	}
	if err != nil {
		h.respondLedgerError(c, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"round":   round,
	})
}

func (h *GameHandler) AdjustBet(c *gin.Context) {
	var req models.AdjustBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	amount, err := ledger.AdjustBet(req.Mode, req.Value)
	if err != nil {
		h.respondLedgerError(c, "Failed to adjust bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"bet_amount": amount,
	})
}

func (h *GameHandler) SetClientSeed(c *gin.Context) {
	var req models.ClientSeedRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	seed := req.ClientSeed
	var err error
	if seed == "" {
		seed, err = ledger.RotateClientSeed()
	} else {
		err = ledger.SetClientSeed(seed)
	}
	if err != nil {
		h.respondLedgerError(c, "Failed to set client seed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"client_seed": seed,
	})
}

func (h *GameHandler) Reset(c *gin.Context) {
	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	if err := ledger.Reset(); err != nil {
		h.respondLedgerError(c, "Failed to reset game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   ledger.PublicState(),
	})
}

// VerifyRoll recomputes any roll from its revealed seeds. It does not touch a ledger.
func (h *GameHandler) VerifyRoll(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	roll := fair.Roll(req.ServerSeed, req.ClientSeed, req.Nonce)
	calculated := fair.Commit(req.ServerSeed)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"verification": models.VerifyResponse{
			Valid:               fair.Verify(req.ServerSeed, req.ClientSeed, req.Nonce, req.Commitment),
			CommitmentMatches:   calculated == req.Commitment,
			CalculatedHash:      calculated,
			Roll:                roll,
			Result:              fair.ResultOf(roll),
			ServerSeed:          req.ServerSeed,
			ClientSeed:          req.ClientSeed,
			Nonce:               req.Nonce,
			PublishedCommitment: req.Commitment,
		},
	})
}

// VerifyHistoryRoll audits one of the player's own history entries by nonce.
func (h *GameHandler) VerifyHistoryRoll(c *gin.Context) {
	nonce, err := strconv.ParseInt(c.Param("nonce"), 10, 64)
	if err != nil || nonce < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid nonce"})
		return
	}

	ledger, ok := h.ledger(c)
	if !ok {
		return
	}

	for _, record := range ledger.History() {
		if record.Nonce != nonce {
			continue
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"valid":   fair.VerifyRecord(record),
			"record":  record,
		})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Roll not found in history"})
}
