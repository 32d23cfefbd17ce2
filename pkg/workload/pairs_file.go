package workload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WritePairs writes pairs in the solver stdin form: a count line followed
// by one "<source> <target>" line per pair.
func WritePairs(w io.Writer, pairs []Pair) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%d\n", len(pairs)); err != nil {
		return err
	}

	for _, p := range pairs {
		if _, err := fmt.Fprintf(bw, "%d %d\n", p.Source, p.Target); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadPairs parses the form written by WritePairs.
func ReadPairs(r io.Reader) ([]Pair, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading pair count: %w", err)
		}

		return nil, fmt.Errorf("reading pair count: empty input")
	}

	count, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return nil, fmt.Errorf("parsing pair count: %w", err)
	}

	if count < 0 {
		return nil, fmt.Errorf("pair count %d: %w", count, ErrInvalidCount)
	}

	pairs := make([]Pair, 0, count)

	for len(pairs) < count && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			return nil, fmt.Errorf("pair %d: expected 2 fields, got %d", len(pairs)+1, len(fields))
		}

		src, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pair %d source: %w", len(pairs)+1, err)
		}

		dst, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pair %d target: %w", len(pairs)+1, err)
		}

		pairs = append(pairs, Pair{Source: src, Target: dst})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading pairs: %w", err)
	}

	if len(pairs) != count {
		return nil, fmt.Errorf("declared %d pairs but found %d", count, len(pairs))
	}

	return pairs, nil
}
