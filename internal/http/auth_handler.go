package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-dashboard/internal/service"
)

// SessionRevoker invalida un token de sesion. TokenService lo implementa.
type SessionRevoker interface {
	RevokeSession(ctx context.Context, token string) error
}

// AuthHandler mantiene dependencias para los endpoints de OTP, signup y login.
type AuthHandler struct {
	logger   *zap.Logger
	otps     *service.OTPService
	accounts *service.AccountService
	sessions SessionRevoker
	cookies  CookieConfig
}

func NewAuthHandler(logger *zap.Logger, otps *service.OTPService, accounts *service.AccountService, sessions SessionRevoker, cookies CookieConfig) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger:   logger,
		otps:     otps,
		accounts: accounts,
		sessions: sessions,
		cookies:  cookies,
	}
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// RequestOTP maneja POST /auth/otp/request.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required,otp_channel"`
		Purpose string `json:"purpose" binding:"required,otp_purpose"`
		Email   string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "otp", err)
		return
	}

	meta := requestMeta(c)
	res, err := h.otps.CreateAndSend(c.Request.Context(), service.CreateOTPInput{
		Channel:   req.Channel,
		Purpose:   req.Purpose,
		Email:     req.Email,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		abortWithError(c, h.logger, "request otp", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// VerifyOTP maneja POST /auth/otp/verify. Los fallos siempre tienen la forma {ok:false,error}.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		OTPID   string `json:"otpId" binding:"required"`
		Code    string `json:"code" binding:"required"`
		Purpose string `json:"purpose" binding:"omitempty,otp_purpose"`
		Email   string `json:"email" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request"})
		return
	}

	res, err := h.otps.Verify(c.Request.Context(), service.VerifyOTPInput{
		OTPID:   req.OTPID,
		Code:    req.Code,
		Purpose: req.Purpose,
		Email:   req.Email,
	})
	if err != nil {
		var otpErr *service.OTPError
		if errors.As(err, &otpErr) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": otpErr.Error()})
			return
		}
		h.logger.Error("verify otp failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "userId": res.UserID})
}

// StartSignup maneja POST /auth/signup.
func (h *AuthHandler) StartSignup(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "signup", err)
		return
	}
	res, err := h.accounts.StartSignup(c.Request.Context(), req.Email, requestMeta(c))
	if err != nil {
		abortWithError(c, h.logger, "start signup", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CompleteSignup maneja POST /auth/signup/verify.
func (h *AuthHandler) CompleteSignup(c *gin.Context) {
	var req struct {
		OTPID            string `json:"otpId" binding:"required"`
		Code             string `json:"code" binding:"required"`
		Email            string `json:"email" binding:"required,email"`
		FullName         string `json:"fullName" binding:"max=200"`
		OrganizationName string `json:"organizationName" binding:"max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "signup verify", err)
		return
	}
	res, err := h.accounts.CompleteSignup(c.Request.Context(), service.CompleteSignupInput{
		OTPID:            req.OTPID,
		Code:             req.Code,
		Email:            req.Email,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		abortWithError(c, h.logger, "complete signup", err)
		return
	}
	setSessionCookie(c, h.cookies, res.Token, res.ExpiresAt)
	c.JSON(http.StatusCreated, res)
}

// StartLogin maneja POST /auth/login.
func (h *AuthHandler) StartLogin(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "login", err)
		return
	}
	res, err := h.accounts.StartLogin(c.Request.Context(), req.Email, requestMeta(c))
	if err != nil {
		abortWithError(c, h.logger, "start login", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CompleteLogin maneja POST /auth/login/verify.
func (h *AuthHandler) CompleteLogin(c *gin.Context) {
	var req struct {
		OTPID string `json:"otpId" binding:"required"`
		Code  string `json:"code" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "login verify", err)
		return
	}
	res, err := h.accounts.CompleteLogin(c.Request.Context(), req.OTPID, req.Code, req.Email)
	if err != nil {
		abortWithError(c, h.logger, "complete login", err)
		return
	}
	setSessionCookie(c, h.cookies, res.Token, res.ExpiresAt)
	c.JSON(http.StatusOK, res)
}

// Logout maneja POST /auth/logout: revoca el jti y borra la cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		abortWithError(c, h.logger, "logout", service.ErrUnauthenticated)
		return
	}
	if h.sessions != nil {
		if err := h.sessions.RevokeSession(c.Request.Context(), token); err != nil {
			clearSessionCookie(c, h.cookies)
			abortWithError(c, h.logger, "logout", err)
			return
		}
	}
	clearSessionCookie(c, h.cookies)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me maneja GET /me.
func (h *AuthHandler) Me(c *gin.Context) {
	scope, ok := GetUserOrg(c)
	if !ok {
		abortWithError(c, h.logger, "me", service.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, scope)
}

// CompleteOnboarding maneja POST /me/onboarding.
func (h *AuthHandler) CompleteOnboarding(c *gin.Context) {
	scope, ok := GetUserOrg(c)
	if !ok {
		abortWithError(c, h.logger, "onboarding", service.ErrUnauthenticated)
		return
	}
	if err := h.accounts.CompleteOnboarding(c.Request.Context(), scope.UserID); err != nil {
		abortWithError(c, h.logger, "onboarding", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
