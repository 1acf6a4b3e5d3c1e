package db

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    PoolOptions
		wantErr bool
	}{
		{"defaults", *DefaultPoolOptions(), false},
		{"zero max", PoolOptions{MaxConns: 0}, true},
		{"min above max", PoolOptions{MaxConns: 2, MinConns: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnect_NotConfigured(t *testing.T) {
	_, err := Connect(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestConnect_BadConnString(t *testing.T) {
	_, err := Connect(context.Background(), "host=db port=notaport", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse connection string")
}

func TestCheck_NilPool(t *testing.T) {
	status := Check(context.Background(), nil)
	assert.False(t, status.Healthy)
	assert.Equal(t, "pool is nil", status.Error)
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "groupprep", "postgres")

	ch := make(chan *prometheus.Desc, 10)
	collector.Describe(ch)
	close(ch)

	var names []string
	for desc := range ch {
		names = append(names, desc.String())
	}
	require.Len(t, names, 3)
	assert.True(t, strings.Contains(names[0], "groupprep_db_pool_total_conns"))
	assert.True(t, strings.Contains(names[2], "groupprep_db_pool_acquires_total"))
}

func TestPoolStatsCollector_NilPoolCollectsNothing(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "groupprep", "postgres")
	assert.Equal(t, 0, testutil.CollectAndCount(collector))
}

func TestRegisterPoolStats_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolStats(reg, nil, "groupprep", "postgres"))
	require.NoError(t, RegisterPoolStats(reg, nil, "groupprep", "postgres"))
}

func TestConnect_Integration(t *testing.T) {
	dbURL := os.Getenv("GROUPPREP_TEST_DATABASE_URL")
	if testing.Short() || dbURL == "" {
		t.Skip("Skipping integration test: GROUPPREP_TEST_DATABASE_URL not set")
	}

	pool, err := Connect(context.Background(), dbURL, nil)
	require.NoError(t, err)
	defer Close(pool)

	status := Check(context.Background(), pool)
	assert.True(t, status.Healthy)
}
