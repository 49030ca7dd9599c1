package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/web/utils"
	"golang.org/x/crypto/bcrypt"
)

// LoginObserver is told about rejected logins.
type LoginObserver interface {
	ObserveFailedLogin()
}

// Credentials is the single operator account.
type Credentials struct {
	Username     string
	PasswordHash string
}

// AuthHandler 认证处理器
type AuthHandler struct {
	*BaseHandler
	creds    Credentials
	jwt      *utils.JWTConfig
	observer LoginObserver
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(creds Credentials, jwt *utils.JWTConfig, observer LoginObserver) *AuthHandler {
	return &AuthHandler{BaseHandler: &BaseHandler{}, creds: creds, jwt: jwt, observer: observer}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// Login checks the bcrypt hash and issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.creds.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.creds.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		if h.observer != nil {
			h.observer.ObserveFailedLogin()
		}
		log.Info().Str("username", req.Username).Str("client_ip", c.ClientIP()).Msg("login rejected")
		h.ErrorResponse(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, expires, err := utils.GenerateJWT(req.Username, "admin", h.jwt)
	if err != nil {
		h.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.SuccessResponse(c, LoginResponse{Token: token, ExpiresAt: expires, Username: req.Username})
}
