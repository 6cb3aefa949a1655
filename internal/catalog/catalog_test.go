package catalog

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/oclfilt/internal/ocl"
)

func station(idx int64, bottom ocl.BottomDepth, codes ...int64) *ocl.Station {
	st := &ocl.Station{
		Index: idx, StationID: 100 + idx, RecordLength: 90, Year: 1994, Month: 5,
		Time: math.NaN(), Latitude: 41.5, Longitude: -20.25, LevelCount: 4, Bottom: bottom,
	}
	for _, c := range codes {
		st.Variables = append(st.Variables, ocl.VariableColumn{Code: c})
	}
	return st
}

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	cat, err := Open(filepath.Join(t.TempDir(), "stations.db"))
	require.NoError(t, err)
	defer cat.Close()

	batch, err := cat.BeginRun(ctx, "run-1", "sample.ocl")
	require.NoError(t, err)
	require.NoError(t, batch.WriteStation(station(0, ocl.BottomDepth{Value: 1200, Source: ocl.SourceHeader}, 1, 2)))
	require.NoError(t, batch.WriteStation(station(1, ocl.BottomDepth{Value: math.NaN()}, 1)))
	require.NoError(t, batch.WriteStation(station(2, ocl.BottomDepth{Value: 80, Source: ocl.SourceProfile}, 2, 25)))
	assert.EqualValues(t, 3, batch.Count())
	require.NoError(t, batch.Commit())

	rows, err := cat.Stations(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{1, 2}, rows[0].Variables)
	assert.Equal(t, 1200.0, rows[0].BottomDepth)
	assert.True(t, math.IsNaN(rows[1].BottomDepth))
	assert.Equal(t, "none", rows[1].BottomSource)

	sal, err := cat.Stations(ctx, "run-1", 2)
	require.NoError(t, err)
	require.Len(t, sal, 2)
	assert.EqualValues(t, 2, sal[1].Index)

	counts, err := cat.SourceCounts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"header": 1, "none": 1, "profile": 1}, counts)
}

func TestRollbackDiscardsRun(t *testing.T) {
	ctx := context.Background()
	cat, err := Open(filepath.Join(t.TempDir(), "stations.db"))
	require.NoError(t, err)
	defer cat.Close()

	batch, err := cat.BeginRun(ctx, "run-2", "x.ocl")
	require.NoError(t, err)
	require.NoError(t, batch.WriteStation(station(0, ocl.BottomDepth{Value: 10, Source: ocl.SourceDatabase}, 1)))
	require.NoError(t, batch.Rollback())

	rows, err := cat.Stations(ctx, "run-2", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	batch, err = cat.BeginRun(ctx, "run-2", "x.ocl")
	require.NoError(t, err)
	require.NoError(t, batch.Commit())
}
