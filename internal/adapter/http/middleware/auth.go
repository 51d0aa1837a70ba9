package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"
	"acquiring-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// TokenAuth verifies the merchant request token. It reads the body once,
// recomputes the SHA-256 token over the scalar fields plus the merchant
// password hash, attaches the resolved team to the context, and restores
// the body for the handler to bind.
func TokenAuth(teams ports.TeamStore, verifier ports.TokenVerifier, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var params map[string]any
		if err := json.Unmarshal(body, &params); err != nil {
			response.Error(c, apperror.Validation("request body is not valid JSON"))
			c.Abort()
			return
		}

		teamSlug, _ := params["TeamSlug"].(string)
		if teamSlug == "" {
			response.Error(c, apperror.ErrMissingField("TeamSlug"))
			c.Abort()
			return
		}
		providedToken, _ := params["Token"].(string)
		if providedToken == "" {
			response.Error(c, apperror.ErrAuthRequired())
			c.Abort()
			return
		}

		team, err := teams.Lookup(c.Request.Context(), teamSlug)
		if err != nil {
			log.Error().Err(err).Str("team_slug", maskSlugForLog(teamSlug)).Msg("team lookup failed")
			response.Error(c, apperror.ErrInternalAuth(err))
			c.Abort()
			return
		}
		if team == nil {
			response.Error(c, apperror.ErrMerchantNotFound())
			c.Abort()
			return
		}
		if !team.Active {
			response.Error(c, apperror.ErrMerchantInactive())
			c.Abort()
			return
		}

		if !verifier.Verify(params, providedToken, team.PasswordHash) {
			log.Warn().Str("team_slug", team.Slug).Msg("invalid request token")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxTeam, team)
		c.Set(CtxTeamSlug, team.Slug)
		c.Next()
	}
}

// TeamFromContext returns the authenticated team attached by TokenAuth.
func TeamFromContext(c *gin.Context) (*domain.Team, bool) {
	v, ok := c.Get(CtxTeam)
	if !ok {
		return nil, false
	}
	team, ok := v.(*domain.Team)
	return team, ok
}

// JWTAuth validates the operator bearer token for admin routes.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Error(c, apperror.ErrAuthRequired())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Warn().Err(err).Msg("admin token rejected")
			response.Error(c, apperror.ErrAuthRequired())
			c.Abort()
			return
		}

		c.Set(CtxAdmin, claims.Subject)
		c.Next()
	}
}

// maskSlugForLog bounds what an unauthenticated caller can inject into logs.
func maskSlugForLog(slug string) string {
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return strings.Map(func(r rune) rune {
		if r >= 32 && r < 127 {
			return r
		}
		return '?'
	}, slug)
}
