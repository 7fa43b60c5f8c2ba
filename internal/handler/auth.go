package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/api"
	"tradeflow/internal/audit"
	"tradeflow/internal/repository"
	"tradeflow/internal/service"
	"tradeflow/internal/session"
)

const sessionKey = "session"

// ModeratorHeader switches a moderator's request into moderator mode.
const ModeratorHeader = "X-Moderator"

func bearerToken(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	// browsers can't set headers on websocket upgrades
	if strings.HasSuffix(c.Request.URL.Path, "/events") {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

func publicPath(p string) bool {
	switch {
	case p == "/healthz", p == "/readyz", p == "/docs":
		return true
	case strings.HasPrefix(p, "/swagger"):
		return true
	case strings.HasPrefix(p, api.Prefix+"/auth/"):
		return true
	}
	return !strings.HasPrefix(p, "/api/")
}

// RequireSession verifies the bearer JWT of every non-public request and
// stores the resulting session.Context on the gin context.
func RequireSession(j session.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		if publicPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		token := bearerToken(c)
		if token == "" {
			c.Abort()
			Error(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		claims, err := j.Verify(token)
		if err != nil {
			c.Abort()
			Error(c, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		h := strings.TrimSpace(c.GetHeader(ModeratorHeader))
		moderator := h == "1" || strings.EqualFold(h, "true")
		sc := session.Context{User: claims.User(), Moderator: moderator}
		c.Set(sessionKey, sc)
		c.Set(audit.UserIDKey, sc.User.ID)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (session.Context, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return session.Context{}, false
	}
	sc, ok := v.(session.Context)
	return sc, ok && sc.User.ID != ""
}

// mustSession writes 401 and returns false when no session is attached.
func mustSession(c *gin.Context) (session.Context, bool) {
	sc, ok := sessionFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "not logged in", nil)
	}
	return sc, ok
}

type AuthHandler struct {
	Service *service.AuthService
	Users   repository.UserRepository
}

func (h *AuthHandler) Register(r *gin.Engine) {
	group := r.Group(api.Prefix)
	group.POST("/auth/register", h.register)
	group.POST("/auth/login", h.login)
	group.GET("/me", h.me)
}

// @Summary Register a user with its ledger address
// @Tags auth
// @Accept json
// @Produce json
// @Param body body api.RegisterRequest true "registration"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "auth unavailable", nil)
		return
	}
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Name = cleanText(req.Name)
	u, err := h.Service.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, u.Workflow(), nil)
}

// @Summary Exchange a signed login challenge for a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param body body api.LoginRequest true "signed challenge"
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "auth unavailable", nil)
		return
	}
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	resp, err := h.Service.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, resp, nil)
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/v1/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	sc, ok := mustSession(c)
	if !ok {
		return
	}
	u := sc.User
	if h.Users != nil {
		rec, err := h.Users.GetUser(c.Request.Context(), sc.User.ID)
		if err != nil {
			fail(c, err)
			return
		}
		if rec != nil {
			u = rec.Workflow()
		}
	}
	Ok(c, u, map[string]any{"moderator": sc.Party(nil).Moderator})
}
