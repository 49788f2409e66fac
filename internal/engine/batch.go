package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ctpnet/ctpsim/internal/ctp"
	"github.com/ctpnet/ctpsim/internal/phy"
	"github.com/ctpnet/ctpsim/internal/topology"
)

// Result is one run's outcome, reported back from [RunBatch].
type Result struct {
	Seed      uint64
	Collected int
	Goal      bool
}

// RunBatch runs count independent simulations concurrently, one per seed
// baseSeed+i, each against its own freshly built [Engine] sharing the same
// topology and channel model (the channel and coordinates are read-only
// after construction, so concurrent runs over them are safe; each run gets
// its own node set and event queue).
//
// RunBatch is not itself part of the protocol core; it exists to let a
// caller sweep seeds for statistics the same way one might sweep RNG seeds
// over any stochastic simulation.
func RunBatch(ctx context.Context, coords *topology.Coordinates, channel *phy.Channel, rootID ctp.NodeID, csma ctp.CSMAConfig, goal int, maxTime ctp.VTime, baseSeed uint64, count int) ([]Result, error) {
	results := make([]Result, count)

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			seed := baseSeed + uint64(i)
			e := New(Config{
				Coordinates: coords,
				Channel:     channel,
				RootID:      rootID,
				CSMA:        csma,
				Goal:        goal,
				MaxTime:     maxTime,
				Seed:        seed,
			})
			reached := e.Run()
			results[i] = Result{Seed: seed, Collected: e.CollectedCount(), Goal: reached}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
