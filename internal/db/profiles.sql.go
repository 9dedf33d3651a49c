package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getBusinessProfile = `SELECT user_id, business_name, email, phone, address, gst, updated_at
FROM business_profiles WHERE user_id = $1`

func (q *Queries) GetBusinessProfile(ctx context.Context, userID pgtype.UUID) (BusinessProfile, error) {
	var p BusinessProfile
	err := q.db.QueryRow(ctx, getBusinessProfile, userID).Scan(&p.UserID, &p.BusinessName, &p.Email, &p.Phone, &p.Address, &p.Gst, &p.UpdatedAt)
	return p, err
}

const upsertBusinessProfile = `INSERT INTO business_profiles (user_id, business_name, email, phone, address, gst)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE
SET business_name = EXCLUDED.business_name,
    email = EXCLUDED.email,
    phone = EXCLUDED.phone,
    address = EXCLUDED.address,
    gst = EXCLUDED.gst,
    updated_at = now()
RETURNING user_id, business_name, email, phone, address, gst, updated_at`

type UpsertBusinessProfileParams struct {
	UserID       pgtype.UUID
	BusinessName string
	Email        string
	Phone        string
	Address      string
	Gst          string
}

func (q *Queries) UpsertBusinessProfile(ctx context.Context, arg UpsertBusinessProfileParams) (BusinessProfile, error) {
	var p BusinessProfile
	err := q.db.QueryRow(ctx, upsertBusinessProfile, arg.UserID, arg.BusinessName, arg.Email, arg.Phone, arg.Address, arg.Gst).
		Scan(&p.UserID, &p.BusinessName, &p.Email, &p.Phone, &p.Address, &p.Gst, &p.UpdatedAt)
	return p, err
}
