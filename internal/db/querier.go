package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Querier lists every query the application runs.
type Querier interface {
	CountClients(ctx context.Context, arg CountClientsParams) (int64, error)
	CountInvoices(ctx context.Context, arg CountInvoicesParams) (int64, error)
	CountPayments(ctx context.Context, arg CountPaymentsParams) (int64, error)
	CreateClient(ctx context.Context, arg CreateClientParams) (Client, error)
	CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error)
	CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error)
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error)
	DashboardSummary(ctx context.Context, userID pgtype.UUID) (DashboardSummaryRow, error)
	DeleteClient(ctx context.Context, arg DeleteClientParams) (int64, error)
	DeleteInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) error
	GetBusinessProfile(ctx context.Context, userID pgtype.UUID) (BusinessProfile, error)
	GetClient(ctx context.Context, arg GetClientParams) (Client, error)
	GetInvoice(ctx context.Context, arg GetInvoiceParams) (InvoiceRow, error)
	GetInvoiceForUpdate(ctx context.Context, arg GetInvoiceParams) (InvoiceRow, error)
	ListClients(ctx context.Context, arg ListClientsParams) ([]Client, error)
	ListDueInvoices(ctx context.Context, arg ListDueInvoicesParams) ([]InvoiceRow, error)
	ListDistinctInvoiceUsers(ctx context.Context) ([]pgtype.UUID, error)
	ListInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) ([]InvoiceItem, error)
	ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]InvoiceRow, error)
	MaxInvoiceNumberSequence(ctx context.Context, arg MaxInvoiceNumberSequenceParams) (int64, error)
	ListPayments(ctx context.Context, arg ListPaymentsParams) ([]PaymentRow, error)
	ListPaymentsByInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]Payment, error)
	ListPaymentsByInvoices(ctx context.Context, invoiceIDs []pgtype.UUID) ([]Payment, error)
	SetInvoiceStatus(ctx context.Context, arg SetInvoiceStatusParams) error
	UpdateClient(ctx context.Context, arg UpdateClientParams) (Client, error)
	UpdateInvoice(ctx context.Context, arg UpdateInvoiceParams) (Invoice, error)
	UpsertBusinessProfile(ctx context.Context, arg UpsertBusinessProfileParams) (BusinessProfile, error)
}

var _ Querier = (*Queries)(nil)
