package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Marker-bit/mrkrbt-chat/internal/catalog"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
	"github.com/Marker-bit/mrkrbt-chat/internal/keys"
)

const keyCookieMaxAge = 365 * 24 * 60 * 60

func setKeyCookie(c *gin.Context, set keys.Set) error {
	encoded, err := keys.Encode(set)
	if err != nil {
		return err
	}
	// HttpOnly keeps page scripts away from raw keys.
	c.SetCookie(keys.CookieName, encoded, keyCookieMaxAge, "/", "", false, true)
	return nil
}

// SetKeys replaces the whole key set. Keys live only in the cookie; the
// server never stores them.
func (h *Handler) SetKeys(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	set := keys.Set{}
	for provider, key := range req {
		// "brave" is not a model provider but holds the web search token.
		if _, ok := catalog.FindProvider(provider); !ok && provider != "brave" {
			common.Fail(c, http.StatusBadRequest, 10015, "unknown provider: "+provider)
			return
		}
		if key != "" {
			set[provider] = key
		}
	}

	if err := setKeyCookie(c, set); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"keys": set.Masked()})
}

// GetKeys echoes the configured providers with masked key tails.
func (h *Handler) GetKeys(c *gin.Context) {
	set := keySetFromRequest(c)
	common.OK(c, gin.H{"keys": set.Masked()})
}

// ExportKeys seals the current key set and returns the encrypted payload
// together with a one-time key. The two travel separately; the server
// keeps neither.
func (h *Handler) ExportKeys(c *gin.Context) {
	set := keySetFromRequest(c)
	if len(set) == 0 {
		common.Fail(c, http.StatusBadRequest, 10016, "no keys to export")
		return
	}

	payload, key, err := keys.Export(set)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"payload": payload,
		"key":     key,
	})
}

type importKeysReq struct {
	Payload string `json:"payload" binding:"required"`
	Key     string `json:"key" binding:"required"`
}

// ImportKeys opens an exported payload and installs the keys in the cookie.
func (h *Handler) ImportKeys(c *gin.Context) {
	var req importKeysReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	set, err := keys.Import(req.Payload, req.Key)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10017, "invalid payload or key")
		return
	}

	if err := setKeyCookie(c, set); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"keys": set.Masked()})
}
