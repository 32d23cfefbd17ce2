// Package graphfile reads the vertex section of line-oriented graph files and
// classifies them as plain or ranked.
package graphfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Format identifies the vertex record layout of a graph file.
type Format string

const (
	// FormatPlain vertex records carry id and two coordinate fields.
	FormatPlain Format = "plain"
	// FormatRanked vertex records additionally carry a hierarchy rank.
	FormatRanked Format = "ranked"
)

// Field counts per vertex record.
const (
	plainFields  = 3
	rankedFields = 4
)

var (
	ErrMissingHeader = errors.New("missing vertex/edge count header")
	ErrUnknownFormat = errors.New("vertex rows must have 3 (plain) or 4 (ranked) columns")
	ErrMixedFormats  = errors.New("mixed vertex formats")
	ErrTruncated     = errors.New("file ended before all vertex records were read")
	ErrEmptyLine     = errors.New("empty vertex line")
	ErrNoVertices    = errors.New("no vertex ids found")
)

// Header is the first line of a graph file.
type Header struct {
	Vertices int64
	Edges    int64
}

// Descriptor is the parsed vertex section of a graph file. It is either a
// *Plain or a *Ranked; the concrete type is fixed at parse time.
type Descriptor interface {
	Format() Format
	VertexIDs() []int64
	Path() string
	Header() Header
}

// Plain describes a graph without rank metadata.
type Plain struct {
	IDs []int64

	path   string
	header Header
}

var _ Descriptor = (*Plain)(nil)

func (p *Plain) Format() Format     { return FormatPlain }
func (p *Plain) VertexIDs() []int64 { return p.IDs }
func (p *Plain) Path() string       { return p.path }
func (p *Plain) Header() Header     { return p.header }

// Ranked describes a graph whose vertices carry a contraction rank.
// Ranks[i] belongs to IDs[i].
type Ranked struct {
	IDs   []int64
	Ranks []int64

	path   string
	header Header
}

var _ Descriptor = (*Ranked)(nil)

func (r *Ranked) Format() Format     { return FormatRanked }
func (r *Ranked) VertexIDs() []int64 { return r.IDs }
func (r *Ranked) Path() string       { return r.path }
func (r *Ranked) Header() Header     { return r.header }

// RoleError reports a graph file whose format does not match the role it
// was supplied for.
type RoleError struct {
	Path string
	Want Format
	Got  Format
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("graph %s: expected %s vertex records, file is %s", e.Path, e.Want, e.Got)
}

// Expect checks that d has the wanted format.
func Expect(d Descriptor, want Format) error {
	if d.Format() != want {
		return &RoleError{Path: d.Path(), Want: want, Got: d.Format()}
	}

	return nil
}

// Load opens path and parses its vertex section.
func Load(path string) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening graph: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f, path)
}

// Parse reads the header and exactly header.Vertices vertex lines from r.
// Edge lines that follow are not consumed. path is used for error context
// only.
func Parse(r io.Reader, path string) (Descriptor, error) {
	br := bufio.NewReaderSize(r, 1<<20)

	line, err := readLine(br)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("graph %s: reading header: %w", path, err)
	}

	header, err := parseHeader(line)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", path, err)
	}

	if header.Vertices == 0 {
		return nil, fmt.Errorf("graph %s: %w", path, ErrNoVertices)
	}

	// The header count is untrusted until the vertex lines are read.
	ids := make([]int64, 0, min(header.Vertices, maxPrealloc))

	var (
		ranks    []int64
		expected int
	)

	for i := int64(0); i < header.Vertices; i++ {
		line, err := readLine(br)
		if errors.Is(err, io.EOF) && line == "" {
			return nil, fmt.Errorf("graph %s: read %d of %d vertices: %w", path, i, header.Vertices, ErrTruncated)
		}

		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("graph %s: reading vertex %d: %w", path, i, err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil, fmt.Errorf("graph %s: vertex %d: %w", path, i, ErrEmptyLine)
		}

		if expected == 0 {
			switch len(fields) {
			case plainFields, rankedFields:
				expected = len(fields)
			default:
				return nil, fmt.Errorf("graph %s: got %d columns in line %q: %w",
					path, len(fields), line, ErrUnknownFormat)
			}
		} else if len(fields) != expected {
			return nil, fmt.Errorf("graph %s: vertex %d has %d columns, expected %d: %w",
				path, i, len(fields), expected, ErrMixedFormats)
		}

		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("graph %s: vertex %d id: %w", path, i, err)
		}

		ids = append(ids, id)

		if expected == rankedFields {
			rank, err := strconv.ParseInt(fields[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("graph %s: vertex %d rank: %w", path, i, err)
			}

			ranks = append(ranks, rank)
		}
	}

	if expected == rankedFields {
		return &Ranked{IDs: ids, Ranks: ranks, path: path, header: header}, nil
	}

	return &Plain{IDs: ids, path: path, header: header}, nil
}

// maxPrealloc caps the id slice capacity taken from a header.
const maxPrealloc = 1 << 20

func parseHeader(line string) (Header, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Header{}, ErrMissingHeader
	}

	vertices, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Header{}, fmt.Errorf("parsing vertex count: %w", err)
	}

	edges, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Header{}, fmt.Errorf("parsing edge count: %w", err)
	}

	if vertices < 0 || edges < 0 {
		return Header{}, fmt.Errorf("negative counts in header %q", line)
	}

	return Header{Vertices: vertices, Edges: edges}, nil
}

// readLine returns the next line without its terminator. A final line with
// no newline is returned together with io.EOF.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')

	return strings.TrimRight(line, "\r\n"), err
}
