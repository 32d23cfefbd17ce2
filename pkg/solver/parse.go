package solver

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/splidsboel/assignment3/pkg/results"
	"github.com/splidsboel/assignment3/pkg/workload"
)

var queryLineRe = regexp.MustCompile(`distance=(-?\d+)\s+relaxed=(\d+)\s+time\(ns\)=(\d+)`)

// parseQueryOutput extracts the measurement for pair from single-query
// stdout. When several lines match, the last one wins.
func parseQueryOutput(mode string, pair workload.Pair, stdout []byte, sampleLen int) (results.Record, error) {
	matches := queryLineRe.FindAllSubmatch(stdout, -1)
	if len(matches) == 0 {
		return results.Record{}, &ParseError{
			Mode:   mode,
			Reason: "expected 'distance=.. relaxed=.. time(ns)=..'",
			Sample: sample(stdout, sampleLen),
		}
	}

	m := matches[len(matches)-1]

	var values [3]int64

	for i := range values {
		v, err := strconv.ParseInt(string(m[i+1]), 10, 64)
		if err != nil {
			return results.Record{}, &ParseError{
				Mode:   mode,
				Reason: fmt.Sprintf("value out of range: %v", err),
				Sample: sample(stdout, sampleLen),
			}
		}

		values[i] = v
	}

	return results.Record{
		Source:   pair.Source,
		Target:   pair.Target,
		Distance: values[0],
		Relaxed:  values[1],
		TimeNS:   values[2],
	}, nil
}

// parseBatchOutput reads one "source,target,distance,time_ns,relaxed" line
// per pair. Lines that are not five integers are treated as engine log
// output and skipped.
func parseBatchOutput(mode string, pairs []workload.Pair, stdout []byte, sampleLen int) ([]results.Record, error) {
	records := make([]results.Record, 0, len(pairs))

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		rec, ok := parseBatchLine(sc.Text())
		if !ok {
			continue
		}

		if len(records) == len(pairs) {
			return nil, &ParseError{
				Mode:   mode,
				Reason: fmt.Sprintf("more than %d result lines", len(pairs)),
				Sample: sample(stdout, sampleLen),
			}
		}

		want := pairs[len(records)]
		if rec.Source != want.Source || rec.Target != want.Target {
			return nil, &ParseError{
				Mode: mode,
				Reason: fmt.Sprintf("result %d is for (%d,%d), expected (%d,%d)",
					len(records)+1, rec.Source, rec.Target, want.Source, want.Target),
				Sample: sample(stdout, sampleLen),
			}
		}

		records = append(records, rec)
	}

	if err := sc.Err(); err != nil {
		return nil, &ParseError{Mode: mode, Reason: err.Error(), Sample: sample(stdout, sampleLen)}
	}

	if len(records) != len(pairs) {
		return nil, &ParseError{
			Mode:   mode,
			Reason: fmt.Sprintf("expected %d result lines, got %d", len(pairs), len(records)),
			Sample: sample(stdout, sampleLen),
		}
	}

	return records, nil
}

func parseBatchLine(line string) (results.Record, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != len(results.Columns) {
		return results.Record{}, false
	}

	var values [5]int64

	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return results.Record{}, false
		}

		values[i] = v
	}

	return results.Record{
		Source:   values[0],
		Target:   values[1],
		Distance: values[2],
		TimeNS:   values[3],
		Relaxed:  values[4],
	}, true
}

func sample(stdout []byte, n int) string {
	s := strings.TrimSpace(string(stdout))
	if s == "" {
		return "<no stdout>"
	}

	return truncate(s, n)
}
