package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"acquiring-gateway/internal/adapter/http/dto"
	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"
	"acquiring-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TeamHandler exposes the operator-only team management endpoints.
type TeamHandler struct {
	teams ports.TeamStore
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(teams ports.TeamStore) *TeamHandler {
	return &TeamHandler{teams: teams}
}

// Register handles POST /api/team/register (admin JWT required).
func (h *TeamHandler) Register(c *gin.Context) {
	var req dto.RegisterTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	existing, err := h.teams.Lookup(c.Request.Context(), req.TeamSlug)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if existing != nil {
		response.Error(c, apperror.Validation("TeamSlug already registered"))
		return
	}

	// The token scheme signs with the hex SHA-256 of the shared password.
	sum := sha256.Sum256([]byte(req.Password))
	now := time.Now().UTC()
	team := &domain.Team{
		ID:              uuid.New(),
		Slug:            req.TeamSlug,
		PasswordHash:    hex.EncodeToString(sum[:]),
		DisplayName:     req.DisplayName,
		Active:          true,
		SuccessURL:      req.SuccessURL,
		FailURL:         req.FailURL,
		NotificationURL: req.NotificationURL,
		Currencies:      req.Currencies,
		MinAmount:       req.MinAmount,
		MaxAmount:       req.MaxAmount,
		DailyLimit:      req.DailyLimit,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.teams.Register(c.Request.Context(), team); err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, "", gin.H{
		"TeamSlug": team.Slug,
		"Active":   team.Active,
	})
}
