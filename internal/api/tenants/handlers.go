// Package tenants implements the tenant management HTTP handlers: signup,
// lookup, rename-capable update, deletion, and admin login.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tenant-registry/tenant-registry/internal/auth"
	"github.com/tenant-registry/tenant-registry/internal/config"
	"github.com/tenant-registry/tenant-registry/internal/db/models"
	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
	"github.com/tenant-registry/tenant-registry/internal/middleware"
)

// CredentialLookup resolves a tenant by its admin email for login.
// TenantRepository implements it.
type CredentialLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.Tenant, error)
}

// Handlers serves the tenant API over the lifecycle manager.
type Handlers struct {
	cfg     *config.Config
	manager *lifecycle.Manager
	creds   CredentialLookup
}

// NewHandlers creates the tenant handlers.
func NewHandlers(cfg *config.Config, manager *lifecycle.Manager, creds CredentialLookup) *Handlers {
	return &Handlers{cfg: cfg, manager: manager, creds: creds}
}

// CreateTenantRequest is the signup payload.
type CreateTenantRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateTenantRequest carries a partial update; omitted fields stay unchanged.
type UpdateTenantRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// LoginRequest is the admin login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Create handles POST /api/v1/tenants: provision a tenant record plus its
// data partition.
func (h *Handlers) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email, and password are required"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if msg := h.validateName(name); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address"})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	hash, err := auth.HashPassword(req.Password, h.cfg.Auth.BcryptCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	tenant, err := h.manager.Create(c.Request.Context(), name, req.Email, hash)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tenant.Projection())
}

// Get handles GET /api/v1/tenants/:name: resolve a tenant by name,
// case-insensitively.
func (h *Handlers) Get(c *gin.Context) {
	tenant, err := h.manager.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant.Projection())
}

// Update handles PUT /api/v1/tenants: apply a partial update to the
// authenticated tenant. A name change migrates the data partition.
func (h *Handlers) Update(c *gin.Context) {
	tenantID := middleware.AuthenticatedTenantID(c)
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == nil && req.Email == nil && req.Password == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	params := lifecycle.UpdateParams{Email: req.Email}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if msg := h.validateName(name); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		params.Name = &name
	}
	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address"})
		return
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
			return
		}
		hash, err := auth.HashPassword(*req.Password, h.cfg.Auth.BcryptCost)
		if err != nil {
			slog.Error("failed to hash password", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		params.CredentialHash = &hash
	}

	tenant, err := h.manager.Update(c.Request.Context(), tenantID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant.Projection())
}

// Delete handles DELETE /api/v1/tenants/:name: remove the named tenant and
// drop its partition. Only the tenant's own token may delete it.
func (h *Handlers) Delete(c *gin.Context) {
	callerID := middleware.AuthenticatedTenantID(c)
	if callerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	tenant, err := h.manager.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	if tenant.ID.Hex() != callerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "token does not belong to this tenant"})
		return
	}

	if err := h.manager.Delete(c.Request.Context(), tenant.ID.Hex()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "tenant deleted"})
}

// Login handles POST /api/v1/auth/login: verify the admin credential and
// issue a tenant-scoped JWT.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	tenant, err := h.creds.FindByEmail(c.Request.Context(), email)
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	// Same response for unknown email and wrong password, so login cannot be
	// used to probe which emails exist.
	if tenant == nil || !auth.VerifyPassword(req.Password, tenant.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := auth.GenerateJWT(tenant.ID.Hex(), tenant.Name, tenant.Email, h.cfg.Auth.TokenTTL)
	if err != nil {
		slog.Error("failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"tenant": tenant.Projection(),
	})
}

func (h *Handlers) validateName(name string) string {
	min := h.cfg.Tenancy.NameMinLength
	max := h.cfg.Tenancy.NameMaxLength
	if len(name) < min || len(name) > max {
		return fmt.Sprintf("tenant name must be between %d and %d characters", min, max)
	}
	return ""
}

// respondError maps a lifecycle error kind to an HTTP status. Inconsistency
// details never leak to the caller; the full record goes to the log where the
// lifecycle manager already wrote it.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": "a tenant with this name already exists"})
	case errors.Is(err, lifecycle.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
	case errors.Is(err, lifecycle.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, lifecycle.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, lifecycle.ErrInconsistentState):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable, please retry"})
	default:
		slog.Error("unhandled error in tenant handler", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
