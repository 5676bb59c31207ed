package output

import (
	"bytes"
	"encoding/csv"
	"flag"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DataDog/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildstyl3r/lpt/internal/constants"
	"github.com/wildstyl3r/lpt/internal/model"
	"gonum.org/v1/gonum/spatial/r3"
)

func parseFlags(t *testing.T, args ...string) DataFlags {
	fs := flag.NewFlagSet("lpt", flag.ContinueOnError)
	df := NewDataFlags(fs)
	require.NoError(t, fs.Parse(args))
	df.SetOutputPath(t.TempDir())
	return df
}

func readCSV(t *testing.T, data []byte) [][]string {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func readFile(t *testing.T, path ...string) []byte {
	data, err := os.ReadFile(filepath.Join(path...))
	require.NoError(t, err)
	return data
}

var collisions = []model.CollisionInfo{
	{ParticleID: 7, Time: 0.3, SurfaceID: 5, Normal: r3.Vec{Z: -1}, Wear: 3},
	{ParticleID: 2, Time: 0.2, SurfaceID: 5, Normal: r3.Vec{Z: -1}, Wear: 1},
	{ParticleID: 2, Time: 0.1, SurfaceID: 1, Normal: r3.Vec{X: -1}, Wear: 4},
	{ParticleID: 7, Time: 0.1, SurfaceID: 5, Normal: r3.Vec{Z: -1}, Wear: 2},
}

func TestDataFlags(t *testing.T) {
	df := parseFlags(t)
	assert.False(t, df.Snapshots())
	assert.False(t, df.Tracks())
	assert.True(t, df.save(df.collisions))
	assert.True(t, df.save(df.wear))

	df = parseFlags(t, "-all", "-wear=false")
	assert.True(t, df.Snapshots())
	assert.True(t, df.Tracks())
	assert.True(t, df.save(df.wear), "-all wins over a single switch")

	assert.False(t, DataFlags{}.Snapshots())
}

func TestSummarizeWear(t *testing.T) {
	summary := SummarizeWear(collisions)
	require.Len(t, summary, 2)

	assert.Equal(t, SurfaceWear{SurfaceID: 1, Count: 1, Total: 4, Mean: 4}, summary[0])

	floor := summary[1]
	assert.Equal(t, 5, floor.SurfaceID)
	assert.Equal(t, 3, floor.Count)
	assert.InDelta(t, 6, floor.Total, 1e-12)
	assert.InDelta(t, 2, floor.Mean, 1e-12)
	assert.InDelta(t, constants.Quantile95*math.Sqrt(1./3), floor.Confidence, 1e-12)

	assert.Empty(t, SummarizeWear(nil))

	worst, ok := MostWorn(summary)
	require.True(t, ok)
	assert.Equal(t, 5, worst.SurfaceID)
	_, ok = MostWorn(nil)
	assert.False(t, ok)
}

func TestSave(t *testing.T) {
	df := parseFlags(t, "-tracks")
	de := NewDataExtractor("gyre", true, []string{model.FieldCollisions, model.FieldWear}, df, nil)

	var wg sync.WaitGroup
	for rank := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range 3 {
				records := []model.Record{{ID: 10*rank + 1, Time: float64(step), Position: r3.Vec{X: float64(step)}, Alive: true}}
				assert.NoError(t, de.Record(rank, step, records))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, de.Save(collisions))

	tracks := readCSV(t, readFile(t, df.GetOutputPath(), "tracks", "gyre.csv"))
	assert.Equal(t, stateColumns, tracks[0])
	require.Len(t, tracks, 7)
	assert.Equal(t, []string{"1", "0", "0", "0", "0", "0", "0", "0"}, tracks[1])
	assert.Equal(t, "11", tracks[4][0])
	assert.Equal(t, "2", tracks[6][2])

	rows := readCSV(t, readFile(t, df.GetOutputPath(), "collisions", "gyre.csv"))
	assert.Equal(t, collisionColumns, rows[0])
	require.Len(t, rows, 5)
	var order [][2]string
	for _, row := range rows[1:] {
		order = append(order, [2]string{row[0], row[1]})
	}
	assert.Equal(t, [][2]string{{"2", "0.1"}, {"2", "0.2"}, {"7", "0.1"}, {"7", "0.3"}}, order)
	assert.Equal(t, []string{"-1", "0", "0"}, rows[1][11:14])

	wear := readCSV(t, readFile(t, df.GetOutputPath(), "wear", "gyre.csv"))
	assert.Equal(t, [][]string{wearColumns, {"1", "1", "4", "4", "0"}, {"5", "3", "6", "2", wear[2][4]}}, wear)

	_, err := os.Stat(filepath.Join(df.GetOutputPath(), "snapshots"))
	assert.True(t, os.IsNotExist(err), "snapshots were not requested")
}

func TestCompressedSnapshot(t *testing.T) {
	df := parseFlags(t, "-snap", "-zst", "-coll=false", "-wear=false")
	de := NewDataExtractor("settling", false, []string{model.FieldWear, "Temperature"}, df, nil)
	records := []model.Record{
		{ID: 3, Time: 0.5, Velocity: r3.Vec{Z: -0.25}, Fields: map[string]float64{model.FieldWear: 1e-9, "Temperature": 300}},
		{ID: 1, Time: 0.5, Alive: true, Fields: map[string]float64{}},
	}
	require.NoError(t, de.Record(2, 40, records))
	require.NoError(t, de.Save(nil))

	packed := readFile(t, df.GetOutputPath(), "settling_r2_000040_snapshots.csv.zst")
	data, err := zstd.Decompress(nil, packed)
	require.NoError(t, err)
	rows := readCSV(t, data)
	assert.Equal(t, []string{"id", "time", "x", "y", "z", "vx", "vy", "vz", "alive", model.FieldWear, "Temperature"}, rows[0])
	assert.Equal(t, []string{"1", "0.5", "0", "0", "0", "0", "0", "0", "true", "0", "0"}, rows[1])
	assert.Equal(t, []string{"3", "0.5", "0", "0", "0", "0", "0", "-0.25", "false", "1e-09", "300"}, rows[2])

	entries, err := os.ReadDir(df.GetOutputPath())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
