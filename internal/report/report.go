// Package report runs read-only aggregate queries with hand-written SQL over
// the same connection pool gorm uses.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/ansel1/merry"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"quotations/internal/apperr"
	"quotations/internal/db"
)

const monthLayout = "2006-01"

// MonthSummary aggregates the quotations created in one calendar month.
type MonthSummary struct {
	Month      string          `db:"month" json:"month"`
	Quotations int64           `db:"quotations" json:"quotations"`
	Subtotal   decimal.Decimal `db:"subtotal" json:"subtotal"`
}

type Reporter struct {
	db        *sqlx.DB
	monthExpr string
}

func New(gdb *gorm.DB) (*Reporter, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	expr, err := monthExpr(gdb.Dialector.Name())
	if err != nil {
		return nil, err
	}
	return &Reporter{db: sqlx.NewDb(sqlDB, db.DriverName(gdb)), monthExpr: expr}, nil
}

func monthExpr(dialect string) (string, error) {
	switch dialect {
	case "postgres":
		return "to_char(q.created_at, 'YYYY-MM')", nil
	case "sqlite":
		return "strftime('%Y-%m', q.created_at)", nil
	case "mysql":
		return "DATE_FORMAT(q.created_at, '%Y-%m')", nil
	}
	return "", fmt.Errorf("report: unsupported dialect %q", dialect)
}

// Summary returns one row per month between from and to (inclusive, YYYY-MM,
// either may be empty) with the number of quotations and the sum of their
// line totals, oldest month first.
func (r *Reporter) Summary(ctx context.Context, from, to string) ([]MonthSummary, error) {
	for _, m := range []string{from, to} {
		if m == "" {
			continue
		}
		if _, err := time.Parse(monthLayout, m); err != nil {
			return nil, apperr.Validation(fmt.Sprintf("month %q must look like YYYY-MM", m))
		}
	}
	if from != "" && to != "" && from > to {
		return nil, apperr.Validation("from must not be after to")
	}

	query := r.db.Rebind(`
SELECT m.month AS month, COUNT(*) AS quotations, COALESCE(SUM(m.total), 0) AS subtotal
FROM (
	SELECT ` + r.monthExpr + ` AS month,
		(SELECT COALESCE(SUM(li.total), 0) FROM quotation_items li WHERE li.quotation_id = q.id) AS total
	FROM quotations q
) m
WHERE (? = '' OR m.month >= ?) AND (? = '' OR m.month <= ?)
GROUP BY m.month
ORDER BY m.month`)

	out := []MonthSummary{}
	if err := r.db.SelectContext(ctx, &out, query, from, from, to, to); err != nil {
		return nil, merry.Wrap(err)
	}
	return out, nil
}
