package service

import (
	"context"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// AdminAuthService implements ports.AdminAuthService against the configured
// operator credential. There is a single operator account; its password
// hash lives in configuration, not the database.
type AdminAuthService struct {
	cfg      config.AdminConfig
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAdminAuthService creates the operator authentication service.
func NewAdminAuthService(cfg config.AdminConfig, hashSvc ports.HashService, tokenSvc ports.TokenService, log zerolog.Logger) *AdminAuthService {
	return &AdminAuthService{cfg: cfg, hashSvc: hashSvc, tokenSvc: tokenSvc, log: log}
}

// Login verifies the operator credential and issues a bearer token.
func (s *AdminAuthService) Login(_ context.Context, username, password string) (string, time.Time, error) {
	if s.cfg.PasswordHash == "" {
		return "", time.Time{}, apperror.ErrInternalAuth(nil)
	}
	if username != s.cfg.Username {
		return "", time.Time{}, apperror.ErrAuthRequired()
	}

	ok, err := s.hashSvc.Verify(password, s.cfg.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.ErrInternalAuth(err)
	}
	if !ok {
		s.log.Warn().Str("username", username).Msg("admin login rejected")
		return "", time.Time{}, apperror.ErrAuthRequired()
	}

	token, expiresAt, err := s.tokenSvc.Generate(username)
	if err != nil {
		return "", time.Time{}, apperror.ErrInternalAuth(err)
	}
	s.log.Info().Str("username", username).Msg("admin login")
	return token, expiresAt, nil
}
