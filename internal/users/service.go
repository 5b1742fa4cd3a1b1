package users

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

const maxFullNameLength = 200

// Service exposes the signed-in user's profile and the admin user listing.
type Service interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error)
	ListUsers(ctx context.Context, input ListInput) (*UserList, error)
}

// UpdateProfileInput carries optional profile edits. An empty string clears
// the avatar.
type UpdateProfileInput struct {
	FullName  *string
	AvatarURL *string
}

type ListInput struct {
	Role  *enums.UserRole
	Page  int
	Limit int
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error) {
	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" || len(name) > maxFullNameLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name must be 1-200 characters")
		}
		input.FullName = &name
	}
	if input.AvatarURL != nil {
		avatar := strings.TrimSpace(*input.AvatarURL)
		if avatar != "" {
			if u, err := url.Parse(avatar); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "avatar_url must be an absolute http(s) url")
			}
		}
		input.AvatarURL = &avatar
	}

	ok, err := s.repo.UpdateProfile(ctx, userID, input.FullName, input.AvatarURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.GetProfile(ctx, userID)
}

func (s *service) ListUsers(ctx context.Context, input ListInput) (*UserList, error) {
	if input.Role != nil && !input.Role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", *input.Role)
	}
	params := pagination.NormalizePage(input.Page, input.Limit)
	rows, total, err := s.repo.List(ctx, input.Role, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	items := make([]UserDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &UserList{Items: items, Page: params.Page, Limit: params.Limit, Total: total}, nil
}
