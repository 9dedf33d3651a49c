package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const dashboardSummary = `WITH paid AS (
    SELECT invoice_id, SUM(amount) AS amount FROM payments WHERE user_id = $1 GROUP BY invoice_id
)
SELECT
    COUNT(*) AS total_invoices,
    COUNT(*) FILTER (WHERE i.status = 'paid') AS paid_invoices,
    COUNT(*) FILTER (WHERE i.status = 'unpaid') AS unpaid_invoices,
    COUNT(*) FILTER (WHERE i.status = 'cancelled') AS cancelled_invoices,
    COALESCE(SUM(i.total_amount) FILTER (WHERE i.status <> 'cancelled'), 0) AS billed_amount,
    COALESCE(SUM(paid.amount) FILTER (WHERE i.status <> 'cancelled'), 0) AS collected_amount,
    COALESCE(SUM(GREATEST(i.total_amount - COALESCE(paid.amount, 0), 0)) FILTER (WHERE i.status = 'unpaid'), 0) AS unpaid_amount
FROM invoices i
LEFT JOIN paid ON paid.invoice_id = i.id
WHERE i.user_id = $1`

// DashboardSummary aggregates invoice counts and amounts for one user.
// Cancelled invoices are counted but never contribute to amounts.
func (q *Queries) DashboardSummary(ctx context.Context, userID pgtype.UUID) (DashboardSummaryRow, error) {
	var r DashboardSummaryRow
	err := q.db.QueryRow(ctx, dashboardSummary, userID).Scan(
		&r.TotalInvoices, &r.PaidInvoices, &r.UnpaidInvoices, &r.CancelledInvoices,
		&r.BilledAmount, &r.CollectedAmount, &r.UnpaidAmount,
	)
	return r, err
}
