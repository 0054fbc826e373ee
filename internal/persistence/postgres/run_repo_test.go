package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/basisrun/internal/backtest"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	config := DefaultConfig()
	config.Enabled = true
	return NewManagerWithDB(sqlx.NewDb(mockDB, "postgres"), config), mock
}

func sampleResult() *backtest.Result {
	return &backtest.Result{
		RunID:      "run-1",
		Name:       "basis",
		StartedAt:  day0,
		FinishedAt: day0.Add(2 * time.Second),
		KPI:        backtest.KPI{FinalEquity: 1.01, Sharpe: 0.8, MaxDrawdown: 0.02},
		Quality:    backtest.NewDataQuality(),
		Records: []backtest.DailyRecord{
			{Date: day0, Regime: "BALANCED", Equity: 1},
			{Date: day0.AddDate(0, 0, 1), Regime: "RISK_ON_MAJORS", PnL: 0.01, RLSNet: 0.01, Equity: 1.01},
		},
	}
}

func TestRunRepo_SaveRun(t *testing.T) {
	m, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO backtest_days").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, m.Runs().SaveRun(context.Background(), sampleResult()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_SaveRunRollsBack(t *testing.T) {
	m, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO backtest_days").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := m.Runs().SaveRun(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_SaveRunWithoutDays(t *testing.T) {
	m, mock := newMock(t)
	res := sampleResult()
	res.Records = nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Runs().SaveRun(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func runRow(columns ...string) *sqlmock.Rows {
	base := []string{"run_id", "name", "started_at", "finished_at", "days", "final_equity", "sharpe",
		"max_drawdown", "transitions", "data_gaps", "created_at"}
	return sqlmock.NewRows(append(base, columns...))
}

func TestRunRepo_GetRun(t *testing.T) {
	m, mock := newMock(t)

	rows := runRow("summary").
		AddRow("run-1", "basis", day0, day0, 2, 1.01, 0.8, 0.02, 1, 0, day0, []byte(`{"run_id":"run-1"}`))
	mock.ExpectQuery("SELECT .* FROM backtest_runs WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(rows)

	rec, err := m.Runs().GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "basis", rec.Name)
	assert.Equal(t, 1.01, rec.FinalEquity)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(rec.Summary))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_GetRunMissing(t *testing.T) {
	m, mock := newMock(t)

	mock.ExpectQuery("SELECT .* FROM backtest_runs WHERE run_id").
		WithArgs("nope").
		WillReturnRows(runRow("summary"))

	rec, err := m.Runs().GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunRepo_ListRuns(t *testing.T) {
	m, mock := newMock(t)

	rows := runRow().
		AddRow("run-2", "b", day0.AddDate(0, 0, 1), day0, 5, 1.1, 1.2, 0.01, 0, 0, day0).
		AddRow("run-1", "a", day0, day0, 5, 0.9, -0.4, 0.12, 3, 2, day0)
	mock.ExpectQuery("SELECT .* FROM backtest_runs ORDER BY started_at DESC LIMIT").
		WithArgs(50).
		WillReturnRows(rows)

	runs, err := m.Runs().ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 2, runs[1].DataGaps)
	assert.Nil(t, runs[0].Summary)
}

func TestRunRepo_Days(t *testing.T) {
	m, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"run_id", "day", "regime", "total_gross", "pnl", "cost", "funding", "rls_net", "equity"}).
		AddRow("run-1", day0, "BALANCED", 0.0, 0.0, 0.0, 0.0, 0.0, 1.0)
	mock.ExpectQuery("FROM backtest_days").WithArgs("run-1").WillReturnRows(rows)

	days, err := m.Runs().Days(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "BALANCED", days[0].Regime)
	assert.Equal(t, 1.0, days[0].Equity)
}

func TestManager_MigrateAndHealth(t *testing.T) {
	m, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backtest_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, m.Migrate(context.Background()))

	mock.ExpectPing()
	check := m.Health().Health(context.Background())
	assert.True(t, check.Healthy)
	assert.Empty(t, check.Errors)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	check = m.Health().Health(context.Background())
	assert.False(t, check.Healthy)
	require.Len(t, check.Errors, 1)
	assert.Contains(t, check.Errors[0], "connection refused")

	assert.True(t, m.IsEnabled())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewManager_Disabled(t *testing.T) {
	m, err := NewManager(context.Background(), DefaultConfig())
	require.NoError(t, err)

	assert.False(t, m.IsEnabled())
	assert.Nil(t, m.Runs())
	assert.NoError(t, m.Health().Ping(context.Background()))
	assert.True(t, m.Health().Health(context.Background()).Healthy)
	assert.NoError(t, m.Migrate(context.Background()))
	assert.NoError(t, m.Close())
}

func TestNewManager_MissingDSN(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true

	_, err := NewManager(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled)
}
