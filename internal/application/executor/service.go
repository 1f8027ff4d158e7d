package executor

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

// ErrInvalidToken is returned by Authenticate for malformed, unknown, expired
// or mismatched tokens.
var ErrInvalidToken = errors.New("executor token invalid or expired")

// Service handles executor operations and the availability gate.
type Service struct {
	repo      executor.Repository
	tokenRepo executor.TokenRepository
	tokenTTL  time.Duration
	logger    zerolog.Logger
}

func NewService(repo executor.Repository, tokenRepo executor.TokenRepository, tokenTTL time.Duration, logger zerolog.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		tokenRepo: tokenRepo,
		tokenTTL:  tokenTTL,
		logger:    logger.With().Str("service", "executor").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, exec *executor.Executor) error {
	exec.TenantID = strings.TrimSpace(exec.TenantID)
	exec.ExecutorID = strings.TrimSpace(exec.ExecutorID)
	if exec.TenantID == "" {
		return apperr.Validation("tenantId is required")
	}
	if exec.ExecutorID == "" {
		return apperr.Validation("executorId is required")
	}
	existing, err := s.repo.GetByID(ctx, exec.TenantID, exec.ExecutorID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Validation("executor already exists: %s", exec.ExecutorID)
	}
	exec.Status = executor.StatusRegistered
	now := time.Now().UTC()
	exec.CreatedAt = now
	exec.UpdatedAt = now
	if err := s.repo.Create(ctx, exec); err != nil {
		return err
	}
	s.logger.Info().Str("tenant_id", exec.TenantID).Str("executor_id", exec.ExecutorID).Msg("executor registered")
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID, executorID string) (*executor.Executor, error) {
	exec, err := s.repo.GetByID(ctx, tenantID, executorID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, apperr.NotFound("executor", executorID)
	}
	return exec, nil
}

func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]*executor.Executor, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

func (s *Service) UpdateStatus(ctx context.Context, tenantID, executorID string, status executor.Status) error {
	if !executor.ValidStatus(status) {
		return apperr.Validation("invalid executor status: %s", status)
	}
	if _, err := s.Get(ctx, tenantID, executorID); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, tenantID, executorID, status)
}

// ResolveOptional passes a nil executor ID through; otherwise it requires the
// executor to be available.
func (s *Service) ResolveOptional(ctx context.Context, tenantID string, executorID *string) (*string, error) {
	if executorID == nil {
		return nil, nil
	}
	if err := s.EnsureAvailable(ctx, tenantID, *executorID); err != nil {
		return nil, err
	}
	return executorID, nil
}

// EnsureAvailable fails unless the tenant owns the executor and its status is
// dispatchable.
func (s *Service) EnsureAvailable(ctx context.Context, tenantID, executorID string) error {
	exec, err := s.Get(ctx, tenantID, executorID)
	if err != nil {
		return err
	}
	if !exec.Status.IsDispatchable() {
		return apperr.Validation("executor %s is not available: status %s", executorID, exec.Status)
	}
	return nil
}

// IssueToken creates an access token for an executor and returns the token
// record together with the plaintext value, which is never stored.
func (s *Service) IssueToken(ctx context.Context, tenantID, executorID string) (*executor.Token, string, error) {
	if _, err := s.Get(ctx, tenantID, executorID); err != nil {
		return nil, "", err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	tok := &executor.Token{
		TokenID:    uuid.New(),
		TenantID:   tenantID,
		ExecutorID: executorID,
		SecretHash: string(hash),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.tokenTTL),
	}
	if err := s.tokenRepo.Create(ctx, tok); err != nil {
		return nil, "", err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("executor_id", executorID).Str("token_id", tok.TokenID.String()).Msg("executor token issued")
	return tok, tok.TokenID.String() + "." + secret, nil
}

// Authenticate validates a "<tokenId>.<secret>" value and returns the executor it belongs to.
func (s *Service) Authenticate(ctx context.Context, value string) (*executor.Executor, error) {
	idPart, secret, ok := strings.Cut(strings.TrimSpace(value), ".")
	if !ok || secret == "" {
		return nil, ErrInvalidToken
	}
	tokenID, err := uuid.Parse(idPart)
	if err != nil {
		return nil, ErrInvalidToken
	}
	tok, err := s.tokenRepo.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.IsExpired(time.Now().UTC()) {
		return nil, ErrInvalidToken
	}
	if bcrypt.CompareHashAndPassword([]byte(tok.SecretHash), []byte(secret)) != nil {
		return nil, ErrInvalidToken
	}
	return s.Get(ctx, tok.TenantID, tok.ExecutorID)
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
