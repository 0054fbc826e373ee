package postgres

// Schema creates the run tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	days         INTEGER NOT NULL,
	final_equity DOUBLE PRECISION NOT NULL,
	sharpe       DOUBLE PRECISION NOT NULL,
	max_drawdown DOUBLE PRECISION NOT NULL,
	transitions  INTEGER NOT NULL,
	data_gaps    INTEGER NOT NULL,
	summary      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS backtest_days (
	run_id      TEXT NOT NULL REFERENCES backtest_runs (run_id) ON DELETE CASCADE,
	day         DATE NOT NULL,
	regime      TEXT NOT NULL,
	total_gross DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	cost        DOUBLE PRECISION NOT NULL,
	funding     DOUBLE PRECISION NOT NULL,
	rls_net     DOUBLE PRECISION NOT NULL,
	equity      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, day)
);

CREATE INDEX IF NOT EXISTS backtest_runs_started_at_idx ON backtest_runs (started_at DESC);
`
