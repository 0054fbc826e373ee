package data

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1704067200000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T08:00:00Z", time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), tt.in)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)

	d, err := ParseDate("2024-01-02T23:59:00+00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d)
}

func TestLoadFunding(t *testing.T) {
	in := `asset_id,timestamp,rate
SOL,1704067200000,0.0001
SOL,1704096000000,-0.00005
ARB,2024-01-01,
ARB,2024-01-02,0.0002
`
	prints, err := LoadFunding(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, prints, 3, "blank rates are skipped")
	assert.Equal(t, "SOL", prints[0].AssetID)
	assert.Equal(t, -0.00005, prints[1].Rate)

	daily := DailyFunding(prints)
	v, ok := daily.Get(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "SOL")
	require.True(t, ok)
	assert.InDelta(t, 0.00005, v, 1e-15)
}

func TestLoadFunding_Errors(t *testing.T) {
	_, err := LoadFunding(strings.NewReader(""))
	assert.Error(t, err)

	_, err = LoadFunding(strings.NewReader("asset_id,rate\nSOL,0.1\n"))
	assert.ErrorContains(t, err, "timestamp")

	_, err = LoadFunding(strings.NewReader("asset_id,timestamp,rate\nSOL,2024-01-01,abc\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestLoadFeatures(t *testing.T) {
	in := `date,btc_dominance,funding_skew,composite_score
2024-01-02,0.4,,0.2
2024-01-01,0.1,-0.3,0.0
`
	rows, err := LoadFeatures(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, map[string]float64{"btc_dominance": 0.1, "funding_skew": -0.3}, rows[0].Features)

	_, ok := rows[1].Features["funding_skew"]
	assert.False(t, ok)
	_, ok = rows[1].Features["composite_score"]
	assert.False(t, ok, "the precomputed composite is not a feature")
}

func TestLoadUniverse(t *testing.T) {
	in := `date,symbol,market_cap,volume_7d_median,beta_btc,beta_eth,realized_vol,momentum_7d
2024-01-08,SOL,50,1000,1.2,0.3,0.6,0.05
2024-01-01,SOL,40,900,1.1,0.3,0.7,
2024-01-01,AVAX,10,,0.9,,0.8,0.01
`
	snaps, err := LoadUniverse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), snaps[0].Date)
	require.Len(t, snaps[0].Assets, 2)
	assert.Equal(t, "AVAX", snaps[0].Assets[0].Symbol)
	assert.True(t, math.IsNaN(snaps[0].Assets[0].BetaETH))
	assert.Zero(t, snaps[0].Assets[0].Volume7dMedian)
	assert.True(t, math.IsNaN(snaps[0].Assets[1].Momentum7d))
	assert.Equal(t, 50.0, snaps[1].Assets[0].MarketCap)
}

func TestLoadReturns(t *testing.T) {
	in := "date,asset_id,simple_return\n2024-01-02,BTC,0.01\n2024-01-02,ETH,NaN\n"
	tbl, err := LoadReturns(strings.NewReader(in))
	require.NoError(t, err)

	v, ok := tbl.Get(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "BTC")
	require.True(t, ok)
	assert.Equal(t, 0.01, v)
	_, ok = tbl.Get(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "ETH")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}
	paths := Paths{
		Features: write("features.csv", "date,f\n2024-01-01,0.1\n"),
		Universe: write("universe.csv", "date,symbol,market_cap,beta_btc,beta_eth,realized_vol\n2024-01-01,SOL,1,1,0,0.5\n"),
		Returns:  write("returns.csv", "date,asset_id,simple_return\n2024-01-01,SOL,0.01\n"),
		Funding:  write("funding.csv", "asset_id,timestamp,rate\nSOL,2024-01-01,0.0001\n"),
	}

	d, err := Load(paths)
	require.NoError(t, err)
	assert.Len(t, d.Features, 1)
	assert.Len(t, d.Snapshots, 1)
	assert.Equal(t, 1, d.Returns.Len())
	assert.Equal(t, 1, d.Funding.Len())

	prints, err := LoadFundingFile(paths.Funding)
	require.NoError(t, err)
	assert.Len(t, prints, 1)

	paths.Funding = ""
	d, err = Load(paths)
	require.NoError(t, err)
	assert.Zero(t, d.Funding.Len())

	paths.Returns = filepath.Join(dir, "nope.csv")
	_, err = Load(paths)
	assert.ErrorContains(t, err, "nope.csv")
}
