package repository

import (
	"github.com/prperemyshlev/care-auth/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User         UserRepository
	LoginAttempt LoginAttemptRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres, redis *database.Redis) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		LoginAttempt: NewLoginAttemptRepository(redis),
	}
}
