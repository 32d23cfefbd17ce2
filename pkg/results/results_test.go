package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{Source: 1, Target: 2, Distance: 10, TimeNS: 2_000_000, Relaxed: 5},
		{Source: 3, Target: 1, Distance: Unreachable, TimeNS: 1500, Relaxed: 0},
		{Source: 1, Target: 2, Distance: 10, TimeNS: 1_999_999, Relaxed: 5},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regular", "dijkstra_results.csv")
	records := sampleRecords()

	require.NoError(t, Write(path, records, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "source,target,distance,time_ns,relaxed\n"))

	table, err := Read(path, "dijkstra")
	require.NoError(t, err)

	assert.Equal(t, "dijkstra", table.Label)
	assert.Equal(t, path, table.Path)
	assert.Equal(t, records, table.Records)
}

func TestWrite_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, Write(path, sampleRecords(), nil))
	require.NoError(t, Write(path, sampleRecords()[:1], nil))

	table, err := Read(path, "x")
	require.NoError(t, err)
	assert.Len(t, table.Records, 1)
}

func TestDecode_ColumnOrderFree(t *testing.T) {
	input := "relaxed,time_ns,distance,target,source\n7,500000,3,2,1\n"

	records, err := Decode(strings.NewReader(input), "reordered.csv")
	require.NoError(t, err)
	assert.Equal(t, []Record{{Source: 1, Target: 2, Distance: 3, TimeNS: 500000, Relaxed: 7}}, records)
}

func TestDecode_SchemaErrors(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantUnexpected []string
		wantMissing    []string
	}{
		{
			name:        "missing relaxed",
			input:       "source,target,distance,time_ns\n1,2,3,4\n",
			wantMissing: []string{"relaxed"},
		},
		{
			name:           "extra column",
			input:          "source,target,distance,time_ns,relaxed,algo\n1,2,3,4,5,x\n",
			wantUnexpected: []string{"algo"},
		},
		{
			name:           "renamed column",
			input:          "source,target,distance,time_ms,relaxed\n",
			wantUnexpected: []string{"time_ms"},
			wantMissing:    []string{"time_ns"},
		},
		{
			name:        "empty file",
			input:       "",
			wantMissing: Columns,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), "bad.csv")

			var schemaErr *SchemaError

			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, "bad.csv", schemaErr.Path)
			assert.Equal(t, tt.wantUnexpected, schemaErr.Unexpected)
			assert.Equal(t, tt.wantMissing, schemaErr.Missing)
			assert.Contains(t, err.Error(), "bad.csv")
		})
	}
}

func TestDecode_BadCell(t *testing.T) {
	input := "source,target,distance,time_ns,relaxed\n1,2,3,4,5\n1,2,x,4,5\n"

	_, err := Decode(strings.NewReader(input), "cells.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3 column distance")
}

func TestRead_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.csv")

	_, err := Read(path, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
