// Package profile manages the business details printed on a user's invoices.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
)

// Store is the persistence required by Service.
type Store interface {
	GetBusinessProfile(ctx context.Context, userID pgtype.UUID) (db.BusinessProfile, error)
	UpsertBusinessProfile(ctx context.Context, arg db.UpsertBusinessProfileParams) (db.BusinessProfile, error)
}

// Profile is the API representation of a business profile.
type Profile struct {
	BusinessName string     `json:"business_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	GST          string     `json:"gst"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// Input carries the writable profile fields.
type Input struct {
	BusinessName string `json:"business_name" validate:"max=200"`
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	Phone        string `json:"phone" validate:"max=32"`
	Address      string `json:"address" validate:"max=1000"`
	GST          string `json:"gst" validate:"max=32"`
}

// Service reads and writes business profiles.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the user's profile. A user without one gets an empty profile.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Profile{}, err
	}
	row, err := s.store.GetBusinessProfile(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return toProfile(row), nil
}

// Update replaces every profile field with in.
func (s *Service) Update(ctx context.Context, userID string, in Input) (Profile, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Profile{}, err
	}
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.GST = strings.ToUpper(strings.TrimSpace(in.GST))
	if err := common.ValidateStruct(in); err != nil {
		return Profile{}, err
	}
	row, err := s.store.UpsertBusinessProfile(ctx, db.UpsertBusinessProfileParams{
		UserID:       owner,
		BusinessName: in.BusinessName,
		Email:        in.Email,
		Phone:        in.Phone,
		Address:      in.Address,
		Gst:          in.GST,
	})
	if err != nil {
		return Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return toProfile(row), nil
}

func toProfile(row db.BusinessProfile) Profile {
	updated := row.UpdatedAt
	return Profile{
		BusinessName: row.BusinessName,
		Email:        row.Email,
		Phone:        row.Phone,
		Address:      row.Address,
		GST:          row.Gst,
		UpdatedAt:    &updated,
	}
}
