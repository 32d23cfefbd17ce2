// Package results persists per-query solver measurements as CSV tables.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/splidsboel/assignment3/pkg/fsutil"
)

// Unreachable is the distance reported for pairs with no path.
const Unreachable int64 = -1

// Columns is the header of every result table.
var Columns = []string{"source", "target", "distance", "time_ns", "relaxed"}

// Record is a single query measurement.
type Record struct {
	Source   int64
	Target   int64
	Distance int64
	TimeNS   int64
	Relaxed  int64
}

// Reachable reports whether the solver found a path.
func (r Record) Reachable() bool {
	return r.Distance != Unreachable
}

// Table is an ordered set of records produced by one algorithm.
type Table struct {
	Label   string
	Path    string
	Records []Record
}

// SchemaError is returned when a table's header is not exactly Columns.
type SchemaError struct {
	Path       string
	Unexpected []string
	Missing    []string
}

func (e *SchemaError) Error() string {
	var parts []string

	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(e.Unexpected, ", "))
	}

	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}

	return fmt.Sprintf("result table %s: %s", e.Path, strings.Join(parts, "; "))
}

// Write stores records at path, replacing any existing file.
func Write(path string, records []Record, owner *fsutil.OwnerConfig) error {
	f, err := fsutil.Create(path, owner)
	if err != nil {
		return fmt.Errorf("creating result table: %w", err)
	}

	if err := Encode(f, records); err != nil {
		_ = f.Close()

		return fmt.Errorf("writing result table %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing result table %s: %w", path, err)
	}

	return nil
}

// Encode writes the header and records to w.
func Encode(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return err
	}

	row := make([]string, len(Columns))

	for _, r := range records {
		row[0] = strconv.FormatInt(r.Source, 10)
		row[1] = strconv.FormatInt(r.Target, 10)
		row[2] = strconv.FormatInt(r.Distance, 10)
		row[3] = strconv.FormatInt(r.TimeNS, 10)
		row[4] = strconv.FormatInt(r.Relaxed, 10)

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// Read loads the table at path. The header must contain exactly the
// expected columns, in any order.
func Read(path, label string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result table: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := Decode(f, path)
	if err != nil {
		return nil, err
	}

	return &Table{Label: label, Path: path, Records: records}, nil
}

// Decode parses a result table from r. path is used for error context.
func Decode(r io.Reader, path string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{Path: path, Missing: append([]string(nil), Columns...)}
	}

	if err != nil {
		return nil, fmt.Errorf("result table %s: reading header: %w", path, err)
	}

	index, err := columnIndex(header, path)
	if err != nil {
		return nil, err
	}

	var records []Record

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("result table %s: line %d: %w", path, line, err)
		}

		var (
			rec    Record
			values [5]int64
		)

		for i, col := range Columns {
			v, err := strconv.ParseInt(strings.TrimSpace(row[index[i]]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("result table %s: line %d column %s: %w", path, line, col, err)
			}

			values[i] = v
		}

		rec.Source, rec.Target, rec.Distance, rec.TimeNS, rec.Relaxed =
			values[0], values[1], values[2], values[3], values[4]

		records = append(records, rec)
	}

	return records, nil
}

// columnIndex maps each canonical column to its position in header.
func columnIndex(header []string, path string) ([]int, error) {
	pos := make(map[string]int, len(header))

	var unexpected []string

	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))

		if _, dup := pos[name]; dup {
			unexpected = append(unexpected, name)

			continue
		}

		pos[name] = i
	}

	for name := range pos {
		if !slices.Contains(Columns, name) {
			unexpected = append(unexpected, name)
		}
	}

	index := make([]int, len(Columns))

	var missing []string

	for i, col := range Columns {
		p, ok := pos[col]
		if !ok {
			missing = append(missing, col)

			continue
		}

		index[i] = p
	}

	if len(unexpected) > 0 || len(missing) > 0 {
		sort.Strings(unexpected)

		return nil, &SchemaError{Path: path, Unexpected: unexpected, Missing: missing}
	}

	return index, nil
}
