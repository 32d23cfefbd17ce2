// Package osmgraph converts OpenStreetMap road networks into plain graph
// files: a "vertices edges" header, one "id lon lat" record per vertex and
// one "from to weight" record per undirected edge, weights in meters.
package osmgraph

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/sirupsen/logrus"
)

// Format is the encoding of an OSM input file.
type Format string

const (
	FormatPBF Format = "pbf"
	FormatXML Format = "xml"
)

// FormatFromPath guesses the input format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".osm.pbf"), filepath.Ext(path) == ".pbf":
		return FormatPBF, nil
	case filepath.Ext(path) == ".osm", filepath.Ext(path) == ".xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("cannot infer OSM format of %q (want .pbf, .osm or .xml)", path)
	}
}

// DefaultHighways are the highway tag values treated as roads.
var DefaultHighways = []string{
	"motorway", "motorway_link", "trunk", "trunk_link",
	"primary", "primary_link", "secondary", "secondary_link",
	"tertiary", "tertiary_link", "unclassified", "residential",
	"living_street", "service", "road",
}

// Options tunes the conversion.
type Options struct {
	// Highways overrides DefaultHighways.
	Highways []string
	// Simplify drops way-interior nodes that no other way shares; the
	// removed segments are merged into one weighted edge.
	Simplify bool
}

// Vertex is a graph vertex keyed by its OSM node ID.
type Vertex struct {
	ID  int64
	Lon float64
	Lat float64
}

// Edge is an undirected edge weighted by its length in whole meters.
type Edge struct {
	From   int64
	To     int64
	Weight int64
}

// Graph is a converted road network. Vertices are sorted by ID and edges
// by (From, To), with From < To.
type Graph struct {
	Vertices []Vertex
	Edges    []Edge
}

// ScannerFunc opens a fresh scan over the input. Conversion reads the
// input twice.
type ScannerFunc func(ctx context.Context) (osm.Scanner, error)

// OpenFile returns a ScannerFunc reading path in the given format.
func OpenFile(path string, format Format) ScannerFunc {
	return func(ctx context.Context) (osm.Scanner, error) {
		f, err := os.Open(path) //nolint:gosec // path from operator input
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}

		var sc osm.Scanner

		switch format {
		case FormatPBF:
			sc = osmpbf.New(ctx, f, runtime.GOMAXPROCS(-1))
		case FormatXML:
			sc = osmxml.New(ctx, f)
		default:
			_ = f.Close()

			return nil, fmt.Errorf("unsupported OSM format %q", format)
		}

		return &fileScanner{Scanner: sc, file: f}, nil
	}
}

type fileScanner struct {
	osm.Scanner
	file *os.File
}

func (s *fileScanner) Close() error {
	err := s.Scanner.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}

	return err
}

// Build converts the road network produced by open.
func Build(ctx context.Context, log logrus.FieldLogger, open ScannerFunc, opts Options) (*Graph, error) {
	log = log.WithField("component", "osmgraph")

	highways := opts.Highways
	if len(highways) == 0 {
		highways = DefaultHighways
	}

	allowed := make(map[string]struct{}, len(highways))
	for _, h := range highways {
		allowed[h] = struct{}{}
	}

	ways, refs, err := scanWays(ctx, open, allowed)
	if err != nil {
		return nil, err
	}

	coords, err := scanNodes(ctx, open, refs)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"ways":  len(ways),
		"nodes": len(coords),
	}).Info("Scanned OSM input")

	g, missing := assemble(ways, refs, coords, opts.Simplify)
	if missing > 0 {
		log.WithField("missing_nodes", missing).Warn("Ways reference nodes absent from the input")
	}

	if len(g.Vertices) == 0 {
		return nil, fmt.Errorf("no road vertices found")
	}

	return g, nil
}

// scanWays collects the node lists of road ways and counts how many way
// positions reference each node. Way endpoints count twice so they always
// survive simplification.
func scanWays(
	ctx context.Context, open ScannerFunc, allowed map[string]struct{},
) ([][]int64, map[int64]int, error) {
	sc, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer sc.Close()

	if pbf, ok := underlying(sc).(*osmpbf.Scanner); ok {
		pbf.SkipNodes = true
		pbf.SkipRelations = true
	}

	var (
		ways [][]int64
		refs = make(map[int64]int, 1024)
	)

	for sc.Scan() {
		way, ok := sc.Object().(*osm.Way)
		if !ok || !isRoad(way.Tags, allowed) || len(way.Nodes) < 2 {
			continue
		}

		ids := make([]int64, 0, len(way.Nodes))
		for _, n := range way.Nodes {
			ids = append(ids, int64(n.ID))
			refs[int64(n.ID)]++
		}

		refs[ids[0]]++
		refs[ids[len(ids)-1]]++

		ways = append(ways, ids)
	}

	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanning ways: %w", err)
	}

	return ways, refs, nil
}

// scanNodes records the coordinates of every referenced node.
func scanNodes(ctx context.Context, open ScannerFunc, refs map[int64]int) (map[int64]orb.Point, error) {
	sc, err := open(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	if pbf, ok := underlying(sc).(*osmpbf.Scanner); ok {
		pbf.SkipWays = true
		pbf.SkipRelations = true
	}

	coords := make(map[int64]orb.Point, len(refs))

	for sc.Scan() {
		node, ok := sc.Object().(*osm.Node)
		if !ok {
			continue
		}

		if _, needed := refs[int64(node.ID)]; needed {
			coords[int64(node.ID)] = node.Point()
		}
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning nodes: %w", err)
	}

	return coords, nil
}

func underlying(sc osm.Scanner) osm.Scanner {
	if fs, ok := sc.(*fileScanner); ok {
		return fs.Scanner
	}

	return sc
}

func isRoad(tags osm.Tags, allowed map[string]struct{}) bool {
	if tags.Find("area") == "yes" {
		return false
	}

	_, ok := allowed[tags.Find("highway")]

	return ok
}

type edgeKey struct {
	from, to int64
}

// assemble turns ways into vertices and deduplicated edges. A way is cut
// wherever it references a node without coordinates. Returns the number
// of such references.
func assemble(ways [][]int64, refs map[int64]int, coords map[int64]orb.Point, simplify bool) (*Graph, int) {
	edges := make(map[edgeKey]float64, len(refs))
	used := make(map[int64]struct{}, len(refs))
	missing := 0

	for _, way := range ways {
		start := int64(-1)
		length := 0.0

		var prev orb.Point

		for i, id := range way {
			p, ok := coords[id]
			if !ok {
				missing++
				start = -1

				continue
			}

			if start < 0 {
				start, prev, length = id, p, 0

				continue
			}

			length += geo.Distance(prev, p)
			prev = p

			last := i == len(way)-1
			if simplify && refs[id] < 2 && !last {
				continue
			}

			addEdge(edges, start, id, length)
			used[start] = struct{}{}
			used[id] = struct{}{}

			start, length = id, 0
		}
	}

	g := &Graph{
		Vertices: make([]Vertex, 0, len(used)),
		Edges:    make([]Edge, 0, len(edges)),
	}

	for id := range used {
		p := coords[id]
		g.Vertices = append(g.Vertices, Vertex{ID: id, Lon: p.Lon(), Lat: p.Lat()})
	}

	slices.SortFunc(g.Vertices, func(a, b Vertex) int { return compareInt64(a.ID, b.ID) })

	for k, meters := range edges {
		g.Edges = append(g.Edges, Edge{From: k.from, To: k.to, Weight: weight(meters)})
	}

	slices.SortFunc(g.Edges, func(a, b Edge) int {
		if c := compareInt64(a.From, b.From); c != 0 {
			return c
		}

		return compareInt64(a.To, b.To)
	})

	return g, missing
}

// addEdge keeps the shortest of parallel edges. Self loops are dropped.
func addEdge(edges map[edgeKey]float64, a, b int64, meters float64) {
	if a == b {
		return
	}

	if a > b {
		a, b = b, a
	}

	k := edgeKey{from: a, to: b}
	if cur, ok := edges[k]; !ok || meters < cur {
		edges[k] = meters
	}
}

// weight rounds to whole meters with a floor of 1 so no edge is free.
func weight(meters float64) int64 {
	w := int64(math.Round(meters))
	if w < 1 {
		return 1
	}

	return w
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Write encodes g in the plain graph format.
func Write(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d %d\n", len(g.Vertices), len(g.Edges))

	for _, v := range g.Vertices {
		bw.WriteString(strconv.FormatInt(v.ID, 10))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(v.Lon, 'f', 7, 64))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(v.Lat, 'f', 7, 64))
		bw.WriteByte('\n')
	}

	for _, e := range g.Edges {
		fmt.Fprintf(bw, "%d %d %d\n", e.From, e.To, e.Weight)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing graph: %w", err)
	}

	return nil
}
