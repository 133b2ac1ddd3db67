package transactions

import (
	"context"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/types"
)

// Store is the relational table of transactions the poller drains.
type Store interface {
	// FindUnprocessed returns every row whose status is UNPROCESSED.
	FindUnprocessed(ctx context.Context) ([]types.TransactionRow, error)
	// UpdateStatus sets the status and processed timestamp of a row and reports
	// how many rows matched.
	UpdateStatus(ctx context.Context, id string, status types.RowStatus, ts time.Time) (int64, error)
	// ClaimRow moves a row from UNPROCESSED to IN_PROGRESS and stamps the claim
	// time. A false result means another worker got there first.
	ClaimRow(ctx context.Context, id string, now time.Time) (bool, error)
	// ReleaseRow returns a claimed row to UNPROCESSED.
	ReleaseRow(ctx context.Context, id string) error
	// ReclaimExpired returns rows claimed before the given time to UNPROCESSED
	// and reports how many moved.
	ReclaimExpired(ctx context.Context, before time.Time) (int64, error)
	// Insert adds a row.
	Insert(ctx context.Context, row types.TransactionRow) error
}

// QueryStrategy selects how FindUnprocessed maps result rows.
type QueryStrategy string

const (
	// StrategyMapped maps columns onto a struct by name.
	StrategyMapped QueryStrategy = "mapped"
	// StrategyRaw scans columns positionally.
	StrategyRaw QueryStrategy = "raw"
)
