package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
	"github.com/bookden/library-service/pkg/auth"
)

const bcryptCost = 12

func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return model.AuthResponse{}, errors.Wrap(err, "hash password")
	}

	role := req.Role
	if role == "" {
		role = model.RoleReader
	}
	user, err := s.repo.CreateUser(ctx, model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return model.AuthResponse{}, err
	}
	return s.issueToken(user)
}

func (s *Service) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.AuthResponse{}, errs.ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return model.AuthResponse{}, errs.ErrInvalidCredentials
	}
	return s.issueToken(user)
}

func (s *Service) issueToken(user model.User) (model.AuthResponse, error) {
	token, _, err := auth.NewToken(user.ID, user.Name, string(user.Role), user.Email)
	if err != nil {
		return model.AuthResponse{}, errors.Wrap(err, "sign token")
	}
	return model.AuthResponse{
		AccessToken: token,
		ExpiresIn:   int(auth.TokenTTL.Seconds()),
		User:        user,
	}, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id, name, email string) (model.User, error) {
	return s.repo.UpdateUser(ctx, id, name, email)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.repo.DeleteUser(ctx, id)
}

// RecordEvent lands a consumed borrow event in the audit table.
func (s *Service) RecordEvent(ctx context.Context, event model.BorrowEvent) error {
	return s.repo.RecordEvent(ctx, event)
}
