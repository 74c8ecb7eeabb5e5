package handler

import (
	"net/http" // HTTP status codes and cookies
	"time"     // cookie expiry

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/cinema-screening-room/internal/config"     // app configuration
	"github.com/iliyamo/cinema-screening-room/internal/middleware" // cookie name
	"github.com/iliyamo/cinema-screening-room/internal/utils"      // password check and token issuing
)

// AuthHandler issues admin access tokens.  There is a single administrator
// whose bcrypt password hash comes from ADMIN_PASSWORD_HASH.
type AuthHandler struct {
	Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

type loginReq struct {
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type loginResp struct {
	Role   string    `json:"role"`
	Access tokenPart `json:"access"`
}

// Login checks the password and returns a token with role ADMIN.  The token
// is also set as an HttpOnly cookie so the admin panel's websocket upgrade
// carries it.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
	}
	if !utils.VerifyPassword(h.Cfg.AdminPasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, "admin", utils.RoleAdmin, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    at.Token,
		Path:     "/",
		Expires:  at.Exp,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.Cfg.Env == "prod",
	})
	return c.JSON(http.StatusOK, loginResp{Role: utils.RoleAdmin, Access: tokenPart{Token: at.Token, Expires: at.Exp}})
}

// Logout clears the token cookie.  Tokens already handed out stay valid
// until they expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{Name: middleware.TokenCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	return c.NoContent(http.StatusNoContent)
}
