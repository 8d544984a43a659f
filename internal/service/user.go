package service

import (
	"context"
	"errors"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/repository"

	"github.com/google/uuid"
)

// UserService expõe as consultas ao registro de identidades
type UserService struct {
	store repository.IdentityStore
}

// NewUserService cria um novo serviço de usuário
func NewUserService(store repository.IdentityStore) *UserService {
	return &UserService{store: store}
}

// GetUserPublicKey busca as chaves públicas de um handle
func (s *UserService) GetUserPublicKey(ctx context.Context, handle string) (*models.User, error) {
	user, err := s.store.GetUserByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("usuário não encontrado")
		}
		return nil, apperrors.Internal("falha ao buscar usuário", err)
	}
	return user, nil
}

// GetUserByID busca um usuário pelo ID
func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("usuário não encontrado")
		}
		return nil, apperrors.Internal("falha ao buscar usuário", err)
	}
	return user, nil
}
