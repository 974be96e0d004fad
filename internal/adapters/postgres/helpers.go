package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// SQLSTATE codes the repositories react to
const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// nullText creates a pgtype.Text with empty string handling
func nullText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// numeric converts a decimal into a pgtype.Numeric parameter
func numeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return n, fmt.Errorf("convert %s to numeric: %w", d.String(), err)
	}
	return n, nil
}

// pgNumericToDecimal converts pgtype.Numeric to decimal.Decimal. NULL maps to zero.
func pgNumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	str, err := n.MarshalJSON()
	if err != nil {
		return decimal.Zero, fmt.Errorf("marshal numeric: %w", err)
	}
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	return decimal.NewFromString(string(str))
}

// numericScanner collects decimal columns scanned as pgtype.Numeric and
// converts them after Scan, keeping the first conversion error.
type numericScanner struct {
	targets []*decimal.Decimal
	values  []*pgtype.Numeric
}

func (s *numericScanner) dest(target *decimal.Decimal) *pgtype.Numeric {
	n := &pgtype.Numeric{}
	s.targets = append(s.targets, target)
	s.values = append(s.values, n)
	return n
}

func (s *numericScanner) convert() error {
	for i := range s.values {
		d, err := pgNumericToDecimal(*s.values[i])
		if err != nil {
			return err
		}
		*s.targets[i] = d
	}
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == uniqueViolation
}

func isRetryableTxError(err error) bool {
	code := pgErrorCode(err)
	return code == serializationFailure || code == deadlockDetected
}
