package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lifesync/internal/credential"
)

type CredentialStore interface {
	List(ctx context.Context) ([]credential.SecretInfo, error)
	Save(ctx context.Context, secret *credential.Secret) error
	Update(ctx context.Context, service string, partial map[string]any, expiresAt *time.Time) error
	Delete(ctx context.Context, service string) (bool, error)
}

// TokenInvalidator drops cached access tokens after a credential change.
type TokenInvalidator interface {
	Invalidate(service string)
}

// CredentialsHandler manages stored credentials. Values are write-only; reads
// return key names and metadata.
type CredentialsHandler struct {
	Vault CredentialStore
	Cache TokenInvalidator
}

type credentialRequest struct {
	AuthType    string         `json:"auth_type"`
	Credentials map[string]any `json:"credentials" binding:"required"`
	ExpiresAt   *time.Time     `json:"expires_at"`
}

func (h *CredentialsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/credentials")
	g.GET("", h.list)
	g.PUT("/:service", h.put)
	g.PATCH("/:service", h.patch)
	g.DELETE("/:service", h.delete)
}

// @Summary List stored credentials
// @Tags credentials
// @Produce json
// @Success 200 {array} credential.SecretInfo
// @Router /api/credentials [get]
func (h *CredentialsHandler) list(c *gin.Context) {
	if h.Vault == nil {
		Error(c, http.StatusInternalServerError, "vault unavailable", nil)
		return
	}
	items, err := h.Vault.List(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if items == nil {
		items = []credential.SecretInfo{}
	}
	Ok(c, items, nil)
}

// @Summary Replace service credentials
// @Tags credentials
// @Accept json
// @Produce json
// @Param service path string true "service id"
// @Param body body credentialRequest true "credentials"
// @Success 200 {object} map[string]string
// @Router /api/credentials/{service} [put]
func (h *CredentialsHandler) put(c *gin.Context) {
	if h.Vault == nil {
		Error(c, http.StatusInternalServerError, "vault unavailable", nil)
		return
	}
	svc := strings.TrimSpace(c.Param("service"))
	if svc == "" {
		Error(c, http.StatusBadRequest, "invalid service", nil)
		return
	}
	var body credentialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	secret := &credential.Secret{
		Service:     svc,
		AuthType:    strings.TrimSpace(body.AuthType),
		Credentials: body.Credentials,
		ExpiresAt:   body.ExpiresAt,
	}
	if err := h.Vault.Save(c.Request.Context(), secret); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	h.invalidate(svc)
	Ok(c, gin.H{"service": svc}, nil)
}

// @Summary Merge into service credentials
// @Tags credentials
// @Accept json
// @Produce json
// @Param service path string true "service id"
// @Param body body credentialRequest true "partial credentials"
// @Success 200 {object} map[string]string
// @Router /api/credentials/{service} [patch]
func (h *CredentialsHandler) patch(c *gin.Context) {
	if h.Vault == nil {
		Error(c, http.StatusInternalServerError, "vault unavailable", nil)
		return
	}
	svc := strings.TrimSpace(c.Param("service"))
	if svc == "" {
		Error(c, http.StatusBadRequest, "invalid service", nil)
		return
	}
	var body credentialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Vault.Update(c.Request.Context(), svc, body.Credentials, body.ExpiresAt); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	h.invalidate(svc)
	Ok(c, gin.H{"service": svc}, nil)
}

// @Summary Delete service credentials
// @Tags credentials
// @Produce json
// @Param service path string true "service id"
// @Success 200 {object} map[string]any
// @Router /api/credentials/{service} [delete]
func (h *CredentialsHandler) delete(c *gin.Context) {
	if h.Vault == nil {
		Error(c, http.StatusInternalServerError, "vault unavailable", nil)
		return
	}
	svc := strings.TrimSpace(c.Param("service"))
	deleted, err := h.Vault.Delete(c.Request.Context(), svc)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !deleted {
		Error(c, http.StatusNotFound, "credentials not found", nil)
		return
	}
	h.invalidate(svc)
	Ok(c, gin.H{"service": svc, "deleted": true}, nil)
}

func (h *CredentialsHandler) invalidate(service string) {
	if h.Cache != nil {
		h.Cache.Invalidate(service)
	}
}
