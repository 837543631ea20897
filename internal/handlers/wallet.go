package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"provably-fair-dice/internal/wallet"
)

type WalletHandler struct {
	watcher *wallet.Watcher
	log     *zap.Logger
}

// NewWalletHandler accepts a nil watcher when no wallet is configured.
func NewWalletHandler(watcher *wallet.Watcher, log *zap.Logger) *WalletHandler {
	return &WalletHandler{
		watcher: watcher,
		log:     log,
	}
}

func (h *WalletHandler) GetWallet(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	balance, ok := h.watcher.Latest()
	if !ok {
		fresh, err := h.watcher.Refresh(c.Request.Context())
		if err != nil {
			h.log.Warn("wallet refresh failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"enabled": true,
				"error":   "Wallet balance unavailable",
			})
			return
		}
		balance = *fresh
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"wallet":  balance,
	})
}
