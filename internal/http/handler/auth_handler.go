package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	authsvc "github.com/smallbiznis/valora-onboard/internal/service/auth"
)

// Static pages served outside this service.
const (
	successPage = "/auth-success.html"
	failurePage = "/invalid-code.html"
)

// AuthHandler serves the authorization entry point and callback.
type AuthHandler struct {
	Auth *authsvc.Service
}

func NewAuthHandler(auth *authsvc.Service) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// Start returns a fresh authorization URL as JSON.
func (h *AuthHandler) Start(c *gin.Context) {
	out, err := h.Auth.Start(c.Request.Context(), startInput(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": out.AuthorizationURL,
		"state":             out.State,
	})
}

// Authorize redirects the browser straight to the platform consent screen.
func (h *AuthHandler) Authorize(c *gin.Context) {
	out, err := h.Auth.Start(c.Request.Context(), startInput(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// Callback completes the authorization and redirects to the result page.
func (h *AuthHandler) Callback(c *gin.Context) {
	result, err := h.Auth.HandleCallback(c.Request.Context(), authsvc.CallbackInput{
		Code:  c.Query("code"),
		State: c.Query("state"),
	})
	if err != nil {
		reason := callbackFailureReason(err)
		if reason == "failed" {
			zap.L().Error("authorization callback failed", zap.Error(err))
		}
		c.Redirect(http.StatusFound, failurePage+"?error="+reason)
		return
	}

	target := successPage
	if result.InviteCode != "" {
		target += "?" + url.Values{"invite": {result.InviteCode}}.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

func startInput(c *gin.Context) authsvc.StartInput {
	return authsvc.StartInput{
		SubjectID: strings.TrimSpace(c.Query("subject_id")),
		GroupID:   strings.TrimSpace(c.Query("group_id")),
	}
}

func callbackFailureReason(err error) string {
	switch {
	case errors.Is(err, onboard.ErrMissingCode):
		return "cancelled"
	case errors.Is(err, onboard.ErrInvalidState):
		return "expired"
	case errors.Is(err, onboard.ErrIdentityMismatch):
		return "mismatch"
	default:
		return "failed"
	}
}
