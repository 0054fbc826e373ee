package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/basisrun/internal/backtest"
)

// RunRecord is one persisted backtest run. Summary holds the full
// summary.json document so a run can be re-rendered without its artifacts.
type RunRecord struct {
	ID          string    `json:"run_id" db:"run_id"`
	Name        string    `json:"name" db:"name"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
	Days        int       `json:"days" db:"days"`
	FinalEquity float64   `json:"final_equity" db:"final_equity"`
	Sharpe      float64   `json:"sharpe" db:"sharpe"`
	MaxDrawdown float64   `json:"max_drawdown" db:"max_drawdown"`
	Transitions int       `json:"transitions" db:"transitions"`
	DataGaps    int       `json:"data_gaps" db:"data_gaps"`
	Summary     []byte    `json:"-" db:"summary"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DayRecord is one simulated day of a persisted run
type DayRecord struct {
	RunID   string    `json:"run_id" db:"run_id"`
	Date    time.Time `json:"date" db:"day"`
	Regime  string    `json:"regime" db:"regime"`
	Gross   float64   `json:"total_gross" db:"total_gross"`
	PnL     float64   `json:"pnl" db:"pnl"`
	Cost    float64   `json:"cost" db:"cost"`
	Funding float64   `json:"funding" db:"funding"`
	RLSNet  float64   `json:"rls_net" db:"rls_net"`
	Equity  float64   `json:"equity" db:"equity"`
}

// RunRepo persists completed runs. A run is written atomically with its days.
type RunRepo interface {
	// SaveRun inserts the run header and every daily record in one transaction
	SaveRun(ctx context.Context, res *backtest.Result) error

	// GetRun returns nil when the run does not exist
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs first
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Days returns a run's daily records in date order
	Days(ctx context.Context, id string) ([]DayRecord, error)
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
