// Package client manages the customers invoices are billed to.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
)

// Store is the persistence the client service needs.
type Store interface {
	CreateClient(ctx context.Context, arg db.CreateClientParams) (db.Client, error)
	GetClient(ctx context.Context, arg db.GetClientParams) (db.Client, error)
	ListClients(ctx context.Context, arg db.ListClientsParams) ([]db.Client, error)
	CountClients(ctx context.Context, arg db.CountClientsParams) (int64, error)
	UpdateClient(ctx context.Context, arg db.UpdateClientParams) (db.Client, error)
	DeleteClient(ctx context.Context, arg db.DeleteClientParams) (int64, error)
}

// Client is the API representation of a client.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	GST       string    `json:"gst"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable client fields.
type Input struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"max=254"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=1000"`
	GST     string `json:"gst" validate:"max=32"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.GST = strings.ToUpper(strings.TrimSpace(in.GST))
}

// ListParams filters the client list.
type ListParams struct {
	Query   string
	Page    int
	PerPage int
}

// ListResult is one page of clients.
type ListResult struct {
	Items   []Client
	Total   int64
	Page    int
	PerPage int
}

// Service implements client management for a single user at a time.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create adds a client owned by userID.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Client, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Client{}, err
	}
	in.normalize()
	if err := common.ValidateStruct(in); err != nil {
		return Client{}, err
	}
	row, err := s.store.CreateClient(ctx, db.CreateClientParams{
		UserID:  owner,
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Address: in.Address,
		Gst:     in.GST,
	})
	if err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	return toClient(row), nil
}

// Get returns one client.
func (s *Service) Get(ctx context.Context, userID, clientID string) (Client, error) {
	owner, id, err := parseIDs(userID, clientID)
	if err != nil {
		return Client{}, err
	}
	row, err := s.store.GetClient(ctx, db.GetClientParams{ID: id, UserID: owner})
	if err != nil {
		return Client{}, notFoundOr(err, "get client")
	}
	return toClient(row), nil
}

// List returns a page of clients ordered by name, optionally filtered by a
// case-insensitive name search.
func (s *Service) List(ctx context.Context, userID string, params ListParams) (ListResult, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return ListResult{}, err
	}
	search := common.EscapeLike(strings.TrimSpace(params.Query))
	limit, offset := common.Offset(params.Page, params.PerPage)
	rows, err := s.store.ListClients(ctx, db.ListClientsParams{UserID: owner, Search: search, Limit: limit, Offset: offset})
	if err != nil {
		return ListResult{}, fmt.Errorf("list clients: %w", err)
	}
	total, err := s.store.CountClients(ctx, db.CountClientsParams{UserID: owner, Search: search})
	if err != nil {
		return ListResult{}, fmt.Errorf("count clients: %w", err)
	}
	items := make([]Client, 0, len(rows))
	for _, row := range rows {
		items = append(items, toClient(row))
	}
	return ListResult{Items: items, Total: total, Page: max(params.Page, 1), PerPage: int(limit)}, nil
}

// Update replaces the client's fields.
func (s *Service) Update(ctx context.Context, userID, clientID string, in Input) (Client, error) {
	owner, id, err := parseIDs(userID, clientID)
	if err != nil {
		return Client{}, err
	}
	in.normalize()
	if err := common.ValidateStruct(in); err != nil {
		return Client{}, err
	}
	row, err := s.store.UpdateClient(ctx, db.UpdateClientParams{
		ID:      id,
		UserID:  owner,
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Address: in.Address,
		Gst:     in.GST,
	})
	if err != nil {
		return Client{}, notFoundOr(err, "update client")
	}
	return toClient(row), nil
}

// Delete removes a client. Clients that still have invoices cannot be deleted.
func (s *Service) Delete(ctx context.Context, userID, clientID string) error {
	owner, id, err := parseIDs(userID, clientID)
	if err != nil {
		return err
	}
	n, err := s.store.DeleteClient(ctx, db.DeleteClientParams{ID: id, UserID: owner})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return common.NewAppError("CLIENT_IN_USE", "client has invoices and cannot be deleted", http.StatusConflict, err)
		}
		return fmt.Errorf("delete client: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound("client")
	}
	return nil
}

func parseIDs(userID, clientID string) (owner, id pgtype.UUID, err error) {
	if owner, err = common.UserUUID(userID); err != nil {
		return
	}
	id, err = common.ResourceUUID(clientID, "client")
	return
}

func notFoundOr(err error, op string) error {
	if db.IsNotFound(err) {
		return common.ErrNotFound("client")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toClient(row db.Client) Client {
	return Client{
		ID:        db.UUIDString(row.ID),
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Address:   row.Address,
		GST:       row.Gst,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
