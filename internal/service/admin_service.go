package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"vehicle-anpr/internal/domain/anpr"
	"vehicle-anpr/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid admin id or password")

type AdminService struct {
	repo *repository.ANPRRepository
	cost int
	log  zerolog.Logger
}

func NewAdminService(repo *repository.ANPRRepository, log zerolog.Logger) *AdminService {
	return &AdminService{
		repo: repo,
		cost: bcrypt.DefaultCost,
		log:  log,
	}
}

// Authenticate checks id and password against the stored bcrypt hash.
func (s *AdminService) Authenticate(ctx context.Context, id, password string) error {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return ErrInvalidCredentials
	}

	admin, err := s.repo.GetAdmin(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return anpr.NewError(anpr.KindPersistenceFailure, "get admin", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.log.Warn().Str("admin_id", id).Msg("admin login rejected")
		return ErrInvalidCredentials
	}
	return nil
}

// EnsureAdmin creates the admin account when it does not exist. An existing
// account keeps its password.
func (s *AdminService) EnsureAdmin(ctx context.Context, id, password string) error {
	_, err := s.repo.GetAdmin(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get admin %s: %w", id, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.repo.CreateAdmin(ctx, id, string(hash)); err != nil {
		return fmt.Errorf("create admin %s: %w", id, err)
	}

	s.log.Info().Str("admin_id", id).Msg("created admin account")
	return nil
}
