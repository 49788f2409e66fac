// Package topology parses the simulation's topology configuration: a
// coordinates file and a links file ("Configuration file"), and
// builds the shared, read-only tables the physical layer and node
// dispatchers consult.
package topology

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ctpnet/ctpsim/internal/ctp"
	"github.com/ctpnet/ctpsim/internal/phy"
)

// ErrMalformedLine indicates a topology input line could not be parsed
// ("Malformed topology input").
var ErrMalformedLine = errors.New("topology: malformed line")

// Coordinates is the node-coordinate table the core consults by ID
// ("Node identity"): read-only after [Load].
type Coordinates struct {
	points []point
}

type point struct{ x, y float64 }

// Coordinates implements [ctp.Topology]. Nodes outside the parsed range
// report (0, 0); callers are expected to only ever ask about nodes present
// in the topology.
func (c *Coordinates) Coordinates(id ctp.NodeID) (x, y float64) {
	if int(id) < 0 || int(id) >= len(c.points) {
		return 0, 0
	}
	p := c.points[id]
	return p.x, p.y
}

// NodeCount returns the number of nodes the coordinates file described.
func (c *Coordinates) NodeCount() int { return len(c.points) }

// ParseCoordinates reads one `x,y` line per node, in ID order.
func ParseCoordinates(r io.Reader) (*Coordinates, error) {
	c := &Coordinates{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("coordinates line %d %q: %w", lineNo, line, ErrMalformedLine)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinates line %d %q: %w", lineNo, line, ErrMalformedLine)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinates line %d %q: %w", lineNo, line, ErrMalformedLine)
		}
		c.points = append(c.points, point{x: x, y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read coordinates: %w", err)
	}
	if len(c.points) == 0 {
		return nil, fmt.Errorf("coordinates file has no nodes: %w", ErrMalformedLine)
	}
	return c, nil
}

// Links is the parsed second configuration file: a per-source gain table
// and a per-node noise table ("A second file describes links:
// for each source node, one line per outgoing edge listing sink gain_dBm;
// and per-node lines noise_floor white_noise_range.").
//
// Nodes are described in blocks separated by a blank line, one block per
// node in ID order: zero or more "sink gain_dBm" edge lines, followed by
// exactly one "noise_floor white_noise_range" line. Every node must have at
// least one entry , which here means at least the trailing
// noise line.
type Links struct {
	Gains map[ctp.NodeID][]phy.GainEntry
	Noise map[ctp.NodeID]phy.NoiseParams
}

// ParseLinks reads the links file described above.
func ParseLinks(r io.Reader) (*Links, error) {
	l := &Links{
		Gains: make(map[ctp.NodeID][]phy.GainEntry),
		Noise: make(map[ctp.NodeID]phy.NoiseParams),
	}

	scanner := bufio.NewScanner(r)
	var block []string
	var nodeID ctp.NodeID
	lineNo := 0

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if err := parseBlock(nodeID, block, l); err != nil {
			return err
		}
		nodeID++
		block = nil
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(l.Noise) == 0 {
		return nil, fmt.Errorf("links file has no nodes: %w", ErrMalformedLine)
	}
	return l, nil
}

// parseBlock interprets one node's block: every line but the last is a
// "sink gain_dBm" edge; the last line is "noise_floor white_noise_range".
func parseBlock(id ctp.NodeID, lines []string, l *Links) error {
	last := lines[len(lines)-1]
	noiseFields := strings.Fields(last)
	if len(noiseFields) != 2 {
		return fmt.Errorf("links block for node %d, noise line %q: %w", id, last, ErrMalformedLine)
	}
	noiseFloor, err := strconv.ParseFloat(noiseFields[0], 64)
	if err != nil {
		return fmt.Errorf("links block for node %d, noise line %q: %w", id, last, ErrMalformedLine)
	}
	noiseRange, err := strconv.ParseFloat(noiseFields[1], 64)
	if err != nil {
		return fmt.Errorf("links block for node %d, noise line %q: %w", id, last, ErrMalformedLine)
	}
	l.Noise[id] = phy.NoiseParams{NoiseFloorDBm: noiseFloor, Range: noiseRange}

	for _, edge := range lines[:len(lines)-1] {
		fields := strings.Fields(edge)
		if len(fields) != 2 {
			return fmt.Errorf("links block for node %d, edge %q: %w", id, edge, ErrMalformedLine)
		}
		sink, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return fmt.Errorf("links block for node %d, edge %q: %w", id, edge, ErrMalformedLine)
		}
		gain, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("links block for node %d, edge %q: %w", id, edge, ErrMalformedLine)
		}
		l.Gains[id] = append(l.Gains[id], phy.GainEntry{Sink: ctp.NodeID(sink), GainDBm: gain})
	}
	return nil
}

// Load reads the coordinates file and the links file at the given paths and
// returns the topology's coordinate table and a ready-to-use [phy.Channel].
func Load(coordinatesPath, linksPath string, cfg ctp.PhysicalConfig) (*Coordinates, *phy.Channel, error) {
	coordFile, err := os.Open(coordinatesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open coordinates file: %w", err)
	}
	defer coordFile.Close()

	coords, err := ParseCoordinates(coordFile)
	if err != nil {
		return nil, nil, err
	}

	linksFile, err := os.Open(linksPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open links file: %w", err)
	}
	defer linksFile.Close()

	links, err := ParseLinks(linksFile)
	if err != nil {
		return nil, nil, err
	}

	channel := phy.NewChannel(links.Gains, links.Noise, cfg)
	return coords, channel, nil
}
