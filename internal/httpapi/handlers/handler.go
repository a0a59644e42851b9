package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Marker-bit/mrkrbt-chat/internal/ai"
	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
	"github.com/Marker-bit/mrkrbt-chat/internal/config"
	"github.com/Marker-bit/mrkrbt-chat/internal/email"
	"github.com/Marker-bit/mrkrbt-chat/internal/httpapi/middleware"
	"github.com/Marker-bit/mrkrbt-chat/internal/keys"
	"github.com/Marker-bit/mrkrbt-chat/internal/models"
	"github.com/Marker-bit/mrkrbt-chat/internal/store/redisstore"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	SMTPSetting email.SMTPConfig
	ChatSvc     *chat.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, titles chat.TitlePublisher) *Handler {
	repo := chat.NewRepo(db)
	chatSvc := chat.NewService(repo, NewProviderRegistry(), rds, titles, chat.ServiceConfig{
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		AnthropicBaseURL:  cfg.AnthropicBaseURL,
		OllamaBaseURL:     cfg.OllamaBaseURL,
		BraveBaseURL:      cfg.BraveBaseURL,
		MaxMessageChars:   cfg.MaxMessageChars,
		TitleMaxWords:     cfg.TitleMaxWords,
	})
	return &Handler{DB: db, Cfg: cfg, Redis: rds, SMTPSetting: email.SMTPConfig{Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom},
		ChatSvc: chatSvc,
	}
}

// NewProviderRegistry wires every supported upstream. The worker uses the
// same registry so routing stays identical on both sides.
func NewProviderRegistry() *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("openai", func(cfg ai.Config) ai.Provider {
		return ai.NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Effort)
	})
	reg.Register("openrouter", func(cfg ai.Config) ai.Provider {
		return ai.NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Effort)
	})
	reg.Register("anthropic", func(cfg ai.Config) ai.Provider {
		return ai.NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Effort)
	})
	reg.Register("google", func(cfg ai.Config) ai.Provider {
		return ai.NewGoogleProvider(cfg.APIKey, cfg.Model)
	})
	reg.Register("ollama", func(cfg ai.Config) ai.Provider {
		return ai.NewOllamaProvider(cfg.BaseURL, cfg.Model)
	})
	return reg
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// currentUser loads the authenticated user's row. Returns nil after writing
// the error response itself.
func (h *Handler) currentUser(c *gin.Context) *models.User {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return nil
	}
	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			return nil
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return nil
	}
	return &user
}

// keySetFromRequest reads the per-user API key cookie. A missing or broken
// cookie is an empty set; keyless providers still work.
func keySetFromRequest(c *gin.Context) keys.Set {
	raw, err := c.Cookie(keys.CookieName)
	if err != nil {
		return keys.Set{}
	}
	set, err := keys.Decode(raw)
	if err != nil {
		return keys.Set{}
	}
	return set
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
