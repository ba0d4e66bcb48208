package service

import (
	"time"

	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/dto"
)

func newAuthResponse(user *domain.User, pair *domain.TokenPair) *dto.AuthResponse {
	return &dto.AuthResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        pair.ExpiresIn,
		RefreshExpiresIn: pair.RefreshExpiresIn,
		User: dto.UserInfo{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      string(user.Role),
			TenantID:  user.TenantID,
		},
	}
}

func newUserResponse(user *domain.User) *dto.UserResponse {
	response := &dto.UserResponse{
		ID:                    user.ID,
		Email:                 user.Email,
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		Role:                  string(user.Role),
		TenantID:              user.TenantID,
		Phone:                 user.Phone,
		IsEmailVerified:       user.IsEmailVerified,
		RequiresRoleSelection: user.IsPending(),
		CreatedAt:             user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             user.UpdatedAt.Format(time.RFC3339),
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	return response
}
