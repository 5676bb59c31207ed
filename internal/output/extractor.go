package output

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/DataDog/zstd"
	"github.com/wildstyl3r/lpt/internal/constants"
	"github.com/wildstyl3r/lpt/internal/logging"
	"github.com/wildstyl3r/lpt/internal/model"
	"github.com/wildstyl3r/lpt/internal/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	stateColumns     = []string{"id", "time", "x", "y", "z", "vx", "vy", "vz"}
	collisionColumns = []string{
		"particle", "time", "x", "y", "z",
		"vx_in", "vy_in", "vz_in", "vx_out", "vy_out", "vz_out",
		"nx", "ny", "nz", "surface", "face", "angle", "wear",
	}
	wearColumns = []string{"surface", "collisions", "total", "mean", "conf_interval"}
)

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func appendVec(row []string, v r3.Vec) []string {
	return append(row, format(v.X), format(v.Y), format(v.Z))
}

func stateRow(r model.Record) []string {
	row := []string{strconv.Itoa(r.ID), format(r.Time)}
	row = appendVec(row, r.Position)
	return appendVec(row, r.Velocity)
}

// DataExtractor turns bucket states and collision logs into files. Record
// may be called from several ranks at once.
type DataExtractor struct {
	runName string
	makeDir bool
	fields  []string
	flags   DataFlags
	logger  logging.Logger

	mu     sync.Mutex
	tracks map[int][]model.Record
}

func NewDataExtractor(runName string, makeDir bool, fields []string, flags DataFlags, logger logging.Logger) *DataExtractor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &DataExtractor{
		runName: runName,
		makeDir: makeDir,
		fields:  fields,
		flags:   flags,
		logger:  logger,
		tracks:  map[int][]model.Record{},
	}
}

func (de *DataExtractor) write(item DataItem, name string, rows utils.CSV, columns []string, compress bool) error {
	var buf bytes.Buffer
	if err := utils.WriteAsCSV(&buf, rows, columns); err != nil {
		return err
	}
	data, ext := buf.Bytes(), ".csv"
	if compress {
		var err error
		if data, err = zstd.CompressLevel(nil, data, 1); err != nil {
			return err
		}
		ext += ".zst"
	}
	file, err := utils.OpenFile(de.makeDir, de.flags.outputPath, item.fileSuffix, name, ext)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Record handles the states of one rank after a step: they go to a snapshot
// file and to the trajectories, as selected by the flags.
func (de *DataExtractor) Record(rank, step int, records []model.Record) error {
	if de.flags.Tracks() {
		de.mu.Lock()
		for _, r := range records {
			de.tracks[r.ID] = append(de.tracks[r.ID], r)
		}
		de.mu.Unlock()
	}
	if !de.flags.Snapshots() {
		return nil
	}
	rows := make(utils.CSV, len(records))
	for i, r := range records {
		row := stateRow(r)
		row = append(row, strconv.FormatBool(r.Alive))
		for _, name := range de.fields {
			row = append(row, format(r.Fields[name]))
		}
		rows[i] = row
	}
	columns := append(append(slices.Clone(stateColumns), "alive"), de.fields...)
	name := fmt.Sprintf("%s_r%d_%06d", de.runName, rank, step)
	if err := de.write(de.flags.snapshots, name, rows, columns, de.flags.compressed()); err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}
	return nil
}

// Save writes the run-level artifacts: trajectories, the collision log and
// the wear summary.
func (de *DataExtractor) Save(collisions []model.CollisionInfo) error {
	var errs []error
	if de.flags.Tracks() {
		errs = append(errs, de.saveTracks())
	}
	if de.flags.save(de.flags.collisions) {
		errs = append(errs, de.saveCollisions(collisions))
	}
	if de.flags.save(de.flags.wear) {
		errs = append(errs, de.saveWear(collisions))
	}
	return errors.Join(errs...)
}

func (de *DataExtractor) saveTracks() error {
	de.mu.Lock()
	defer de.mu.Unlock()
	var rows utils.CSV
	for _, id := range slices.Sorted(maps.Keys(de.tracks)) {
		for _, r := range de.tracks[id] {
			rows = append(rows, stateRow(r))
		}
	}
	if err := de.write(de.flags.tracks, de.runName, rows, stateColumns, false); err != nil {
		return fmt.Errorf("unable to save tracks: %w", err)
	}
	de.logger.Infof("%d trajectories saved", len(de.tracks))
	return nil
}

func (de *DataExtractor) saveCollisions(collisions []model.CollisionInfo) error {
	sorted := slices.Clone(collisions)
	slices.SortStableFunc(sorted, func(a, b model.CollisionInfo) int {
		if a.ParticleID != b.ParticleID {
			return a.ParticleID - b.ParticleID
		}
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	rows := make(utils.CSV, len(sorted))
	for i, c := range sorted {
		row := []string{strconv.Itoa(c.ParticleID), format(c.Time)}
		row = appendVec(row, c.Position)
		row = appendVec(row, c.VelocityIn)
		row = appendVec(row, c.VelocityOut)
		row = appendVec(row, c.Normal)
		row = append(row, strconv.Itoa(c.SurfaceID), strconv.Itoa(c.Face), format(c.Angle), format(c.Wear))
		rows[i] = row
	}
	if err := de.write(de.flags.collisions, de.runName, rows, collisionColumns, false); err != nil {
		return fmt.Errorf("unable to save collisions: %w", err)
	}
	de.logger.Infof("%d collisions saved", len(collisions))
	return nil
}

type SurfaceWear struct {
	SurfaceID  int
	Count      int
	Total      float64
	Mean       float64
	Confidence float64 // half-width of the 95% confidence interval of Mean
}

// SummarizeWear groups collisions by boundary surface, ordered by surface id.
func SummarizeWear(collisions []model.CollisionInfo) []SurfaceWear {
	bySurface := map[int][]float64{}
	for _, c := range collisions {
		bySurface[c.SurfaceID] = append(bySurface[c.SurfaceID], c.Wear)
	}
	summary := make([]SurfaceWear, 0, len(bySurface))
	for _, id := range slices.Sorted(maps.Keys(bySurface)) {
		wear := bySurface[id]
		mean, variance := utils.MeanAndVariance(wear, true)
		summary = append(summary, SurfaceWear{
			SurfaceID:  id,
			Count:      len(wear),
			Total:      utils.SumSlice(wear),
			Mean:       mean,
			Confidence: constants.Quantile95 * math.Sqrt(variance/float64(len(wear))),
		})
	}
	return summary
}

// MostWorn picks the surface with the largest total wear.
func MostWorn(summary []SurfaceWear) (SurfaceWear, bool) {
	if len(summary) == 0 {
		return SurfaceWear{}, false
	}
	totals := make([]float64, len(summary))
	for i, s := range summary {
		totals[i] = s.Total
	}
	return summary[utils.Argmax(totals)], true
}

func (de *DataExtractor) saveWear(collisions []model.CollisionInfo) error {
	summary := SummarizeWear(collisions)
	var rows utils.CSV
	for _, s := range summary {
		rows = append(rows, []string{
			strconv.Itoa(s.SurfaceID), strconv.Itoa(s.Count),
			format(s.Total), format(s.Mean), format(s.Confidence),
		})
	}
	if err := de.write(de.flags.wear, de.runName, rows, wearColumns, false); err != nil {
		return fmt.Errorf("unable to save wear summary: %w", err)
	}
	if worst, ok := MostWorn(summary); ok {
		de.logger.Infof("wear summary saved, surface %d is the most worn (%g)", worst.SurfaceID, worst.Total)
	}
	return nil
}
