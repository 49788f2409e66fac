package engine_test

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/ctpnet/ctpsim/internal/ctp"
	"github.com/ctpnet/ctpsim/internal/engine"
	"github.com/ctpnet/ctpsim/internal/phy"
	"github.com/ctpnet/ctpsim/internal/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// twoNodeTopology builds a minimal two-node scenario: a root and one
// sender, symmetric gain, a quiet channel.
func twoNodeTopology(t *testing.T) (*topology.Coordinates, *phy.Channel) {
	t.Helper()
	coords, err := topology.ParseCoordinates(strings.NewReader("0,0\n1,0\n"))
	if err != nil {
		t.Fatalf("ParseCoordinates() error: %v", err)
	}
	links, err := topology.ParseLinks(strings.NewReader("1 0\n-100 1\n\n0 0\n-100 1\n"))
	if err != nil {
		t.Fatalf("ParseLinks() error: %v", err)
	}
	channel := phy.NewChannel(links.Gains, links.Noise, ctp.DefaultPhysicalConfig())
	return coords, channel
}

func TestEngineCollectsGoal(t *testing.T) {
	t.Parallel()

	coords, channel := twoNodeTopology(t)
	e := engine.New(engine.Config{
		Coordinates: coords,
		Channel:     channel,
		RootID:      0,
		CSMA:        ctp.DefaultCSMAConfig(),
		Goal:        3,
		MaxTime:     0,
		Seed:        1,
	})

	if !e.Run() {
		t.Fatalf("Run() = false, want true (collected %d)", e.CollectedCount())
	}
	if e.CollectedCount() < 3 {
		t.Errorf("CollectedCount() = %d, want >= 3", e.CollectedCount())
	}
}

func TestEngineMaxTimeStopsDisconnectedTopology(t *testing.T) {
	t.Parallel()

	// Two nodes with no link between them: the non-root node can never reach
	// the root, so the goal is never met.
	coords, err := topology.ParseCoordinates(strings.NewReader("0,0\n1,0\n"))
	if err != nil {
		t.Fatalf("ParseCoordinates() error: %v", err)
	}
	// No edges at all: nodes cannot hear each other.
	links, err := topology.ParseLinks(strings.NewReader("-100 1\n\n-100 1\n"))
	if err != nil {
		t.Fatalf("ParseLinks() error: %v", err)
	}
	channel := phy.NewChannel(links.Gains, links.Noise, ctp.DefaultPhysicalConfig())

	e := engine.New(engine.Config{
		Coordinates: coords,
		Channel:     channel,
		RootID:      0,
		CSMA:        ctp.DefaultCSMAConfig(),
		Goal:        10,
		MaxTime:     ctp.VTime(1e9), // 1 second of virtual time
		Seed:        2,
	})

	if e.Run() {
		t.Fatalf("Run() = true, want false: disconnected topology cannot reach goal")
	}
}

func TestRunBatch(t *testing.T) {
	t.Parallel()

	coords, channel := twoNodeTopology(t)
	results, err := engine.RunBatch(context.Background(), coords, channel, 0, ctp.DefaultCSMAConfig(), 2, 0, 100, 4)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	for _, r := range results {
		if !r.Goal {
			t.Errorf("seed %d: Goal = false, want true", r.Seed)
		}
	}
}
