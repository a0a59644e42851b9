package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Marker-bit/mrkrbt-chat/internal/catalog"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
)

// ListModels returns the model catalog with a per-model usable flag based
// on the caller's configured keys.
func (h *Handler) ListModels(c *gin.Context) {
	set := keySetFromRequest(c)

	ms := catalog.Models()
	out := make([]gin.H, 0, len(ms))
	for _, m := range ms {
		_, err := catalog.Resolve(m, set)
		out = append(out, gin.H{
			"id":             m.ID,
			"title":          m.Title,
			"short_title":    m.ShortTitle,
			"icon":           m.Icon,
			"providers":      providerIDs(m),
			"supports_tools": m.SupportsTools,
			"usable":         err == nil,
		})
	}

	ps := catalog.Providers()
	pout := make([]gin.H, 0, len(ps))
	for _, p := range ps {
		pout = append(pout, gin.H{
			"id":           p.ID,
			"title":        p.Title,
			"icon":         p.Icon,
			"key_help":     p.KeyHelp,
			"key_url":      p.KeyURL,
			"requires_key": p.RequiresKey,
			"configured":   !p.RequiresKey || set.Has(p.ID),
		})
	}

	common.OK(c, gin.H{
		"models":    out,
		"providers": pout,
	})
}

func providerIDs(m catalog.Model) []string {
	out := make([]string, 0, len(m.Providers))
	for _, mp := range m.Providers {
		out = append(out, mp.Provider)
	}
	return out
}
