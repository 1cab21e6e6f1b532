package datastore

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tphakala/fishnet-go/internal/errors"
)

const tableUsers = "user_profiles"

// CreateUserProfile stores a new user with a bcrypt hashed password.
func (ds *DataStore) CreateUserProfile(ctx context.Context, user NewUser) (*UserProfile, error) {
	username := strings.TrimSpace(user.Username)
	if username == "" {
		return nil, validationError("username is required", "username")
	}
	if user.Password == "" {
		return nil, validationError("password is required", "password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, validationError("password cannot be hashed", "password")
	}

	profile := &UserProfile{
		Username: username,
		Password: string(hash),
		Fullname: strings.TrimSpace(user.Fullname),
		Email:    strings.TrimSpace(user.Email),
	}

	start := time.Now()
	err = ds.DB.WithContext(ctx).Create(profile).Error
	ds.observe("db_insert", tableUsers, start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.New(ErrDuplicateUser).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("table", tableUsers).
				Build()
		}
		return nil, dbError(err, "create_user", tableUsers)
	}
	return profile, nil
}

// GetUserProfile looks a user up by username.
func (ds *DataStore) GetUserProfile(ctx context.Context, username string) (*UserProfile, error) {
	var profile UserProfile
	start := time.Now()
	err := ds.DB.WithContext(ctx).Where("username = ?", username).First(&profile).Error
	ds.observe("db_query", tableUsers, start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("get_user", tableUsers)
		}
		return nil, dbError(err, "get_user", tableUsers)
	}
	return &profile, nil
}
