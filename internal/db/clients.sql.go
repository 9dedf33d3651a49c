package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const clientColumns = `id, user_id, name, email, phone, address, gst, created_at, updated_at`

func scanClient(row scanner) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Gst, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const createClient = `INSERT INTO clients (user_id, name, email, phone, address, gst)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + clientColumns

type CreateClientParams struct {
	UserID  pgtype.UUID
	Name    string
	Email   string
	Phone   string
	Address string
	Gst     string
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	return scanClient(q.db.QueryRow(ctx, createClient, arg.UserID, arg.Name, arg.Email, arg.Phone, arg.Address, arg.Gst))
}

const getClient = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND user_id = $2`

type GetClientParams struct {
	ID     pgtype.UUID
	UserID pgtype.UUID
}

func (q *Queries) GetClient(ctx context.Context, arg GetClientParams) (Client, error) {
	return scanClient(q.db.QueryRow(ctx, getClient, arg.ID, arg.UserID))
}

const listClients = `SELECT ` + clientColumns + ` FROM clients
WHERE user_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
ORDER BY lower(name), created_at
LIMIT $3 OFFSET $4`

type ListClientsParams struct {
	UserID pgtype.UUID
	Search string
	Limit  int32
	Offset int32
}

func (q *Queries) ListClients(ctx context.Context, arg ListClientsParams) ([]Client, error) {
	rows, err := q.db.Query(ctx, listClients, arg.UserID, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const countClients = `SELECT COUNT(*) FROM clients
WHERE user_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')`

type CountClientsParams struct {
	UserID pgtype.UUID
	Search string
}

func (q *Queries) CountClients(ctx context.Context, arg CountClientsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countClients, arg.UserID, arg.Search).Scan(&count)
	return count, err
}

const updateClient = `UPDATE clients
SET name = $3, email = $4, phone = $5, address = $6, gst = $7, updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING ` + clientColumns

type UpdateClientParams struct {
	ID      pgtype.UUID
	UserID  pgtype.UUID
	Name    string
	Email   string
	Phone   string
	Address string
	Gst     string
}

func (q *Queries) UpdateClient(ctx context.Context, arg UpdateClientParams) (Client, error) {
	return scanClient(q.db.QueryRow(ctx, updateClient, arg.ID, arg.UserID, arg.Name, arg.Email, arg.Phone, arg.Address, arg.Gst))
}

const deleteClient = `DELETE FROM clients WHERE id = $1 AND user_id = $2`

type DeleteClientParams struct {
	ID     pgtype.UUID
	UserID pgtype.UUID
}

func (q *Queries) DeleteClient(ctx context.Context, arg DeleteClientParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteClient, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
