// Package devicetoken manages the registry of push device tokens.
package devicetoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/repository"
)

// RegisterRequest registers or refreshes a device token.
type RegisterRequest struct {
	UserID      string          `json:"userId" validate:"required,max=128"`
	DeviceToken string          `json:"deviceToken" validate:"required,max=4096"`
	Platform    entity.Platform `json:"platform" validate:"required,oneof=IOS ANDROID WEB"`
	DeviceModel string          `json:"deviceModel,omitempty" validate:"omitempty,max=128"`
	OSVersion   string          `json:"osVersion,omitempty" validate:"omitempty,max=64"`
	AppVersion  string          `json:"appVersion,omitempty" validate:"omitempty,max=64"`
	Language    string          `json:"language,omitempty" validate:"omitempty,max=16"`
}

// Validate checks the request. Web tokens must be browser subscription JSON.
func (r *RegisterRequest) Validate() error {
	if err := entity.ValidateStruct(r); err != nil {
		return err
	}
	if r.Platform == entity.PlatformWeb {
		if _, err := entity.ParseWebSubscription(r.DeviceToken); err != nil {
			return err
		}
	}
	return nil
}

// Service registers, lists, deactivates and deletes device tokens.
type Service struct {
	repo repository.DeviceTokenRepository
	now  func() time.Time
}

// NewService creates a device token service.
func NewService(repo repository.DeviceTokenRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register upserts the token. A known token is re-assigned to the request's
// user and reactivated.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*entity.DeviceToken, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	token, err := s.repo.FindByToken(ctx, req.DeviceToken)
	switch {
	case err == nil:
		token.UserID = req.UserID
		token.Platform = req.Platform
		token.DeviceModel = req.DeviceModel
		token.OSVersion = req.OSVersion
		token.AppVersion = req.AppVersion
		token.Language = req.Language
		token.Active = true
		token.UpdatedAt = now
	case errors.Is(err, entity.ErrDeviceTokenNotFound):
		token = &entity.DeviceToken{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Token:       req.DeviceToken,
			Platform:    req.Platform,
			DeviceModel: req.DeviceModel,
			OSVersion:   req.OSVersion,
			AppVersion:  req.AppVersion,
			Language:    req.Language,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	default:
		return nil, fmt.Errorf("find device token: %w", err)
	}

	if err := s.repo.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("save device token: %w", err)
	}
	slog.Info("device token registered",
		slog.String("user_id", token.UserID),
		slog.String("platform", string(token.Platform)),
		slog.String("token_id", token.ID))
	return token, nil
}

// ListActive returns the active tokens of userID.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*entity.DeviceToken, error) {
	if userID == "" {
		return nil, &entity.ValidationError{Field: "userId", Message: "is required"}
	}
	tokens, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens for user %s: %w", userID, err)
	}
	return tokens, nil
}

// ActiveByToken returns the token record if it exists and is active.
func (s *Service) ActiveByToken(ctx context.Context, value string) (*entity.DeviceToken, error) {
	token, err := s.repo.FindByToken(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("find device token: %w", err)
	}
	if !token.Active {
		return nil, fmt.Errorf("device token %s is inactive: %w", token.ID, entity.ErrDeviceTokenNotFound)
	}
	return token, nil
}

// Deactivate marks the token inactive.
func (s *Service) Deactivate(ctx context.Context, value string) error {
	if err := s.repo.Deactivate(ctx, value); err != nil {
		return fmt.Errorf("deactivate device token: %w", err)
	}
	return nil
}

// Delete removes the token.
func (s *Service) Delete(ctx context.Context, value string) error {
	if err := s.repo.Delete(ctx, value); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}
