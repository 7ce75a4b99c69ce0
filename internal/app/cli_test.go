package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nba-temporal-panel/internal/storage"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"676684800000", 676684800000},
		{"1991-06-12", 676684800000},
		{"1991-06-12T00:00:00Z", 676684800000},
		{"1991-06-12T02:00:00+02:00", 676684800000},
		{"now", storage.Unbounded},
		{"", storage.Unbounded},
		{"-", storage.Beginning},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseTime("june 12")
	assert.Error(t, err)
}

func TestParseTimes(t *testing.T) {
	got, err := ParseTimes("1991-06-12, 1000,")
	require.NoError(t, err)
	assert.Equal(t, []int64{676684800000, 1000}, got)
}

func TestLoadEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	data := `{"entity_id":"P1","event_time":676684800000,"precision_level":"day","source":"espn","payload":{"kind":"delta","stats":{"pts":9}}}
{"entity_id":"P1","event_time":676684800000,"precision_level":"fortnight","source":"espn","payload":{"kind":"delta","stats":{"pts":9}}}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	a, err := Open(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	stats, err := a.LoadEvents(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Rejected["malformed"])
}
