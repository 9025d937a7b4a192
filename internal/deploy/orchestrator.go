package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/emilejacobs/rollout/internal/history"
	"github.com/emilejacobs/rollout/internal/inventory"
	"github.com/emilejacobs/rollout/pkg/api"
)

// MaxConcurrency bounds the worker pool. Fleet hosts share uplinks at
// each site; hammering more than a handful at once buys nothing.
const MaxConcurrency = 5

// SelectMode is the state-based exclusion applied before a run. The
// modes are mutually exclusive; at most one is active per run.
type SelectMode int

const (
	// SelectAll applies no state-based exclusion.
	SelectAll SelectMode = iota
	// SelectResume excludes hosts whose last recorded status is success.
	SelectResume
	// SelectRetryFailed includes only hosts whose last recorded status
	// is failed. An empty result is a valid zero-work run.
	SelectRetryFailed
)

// ErrEmptyInventory distinguishes "nothing in the inventory" from an
// empty filter match.
var ErrEmptyInventory = errors.New("no valid hosts in inventory")

// Filter narrows the host list before state-based selection.
type Filter struct {
	Host     string // exact host identifier
	Platform string // platform tag
}

// Select applies filters then the state-based mode and returns the
// hosts to deploy. A filter that matches nothing is an error; a mode
// that excludes everything is not (zero work is a valid terminal
// state).
func Select(hosts []inventory.Host, f Filter, mode SelectMode, state *StateStore) ([]inventory.Host, error) {
	if len(hosts) == 0 {
		return nil, ErrEmptyInventory
	}

	if f.Host != "" {
		var matched []inventory.Host
		for _, h := range hosts {
			if h.Name == f.Host {
				matched = append(matched, h)
			}
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("host %q not found in inventory", f.Host)
		}
		hosts = matched
	}

	if f.Platform != "" {
		var matched []inventory.Host
		for _, h := range hosts {
			if h.Platform == f.Platform {
				matched = append(matched, h)
			}
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("no hosts matched platform filter %q", f.Platform)
		}
		hosts = matched
	}

	switch mode {
	case SelectResume:
		var remaining []inventory.Host
		for _, h := range hosts {
			if st, ok := state.Get(h.Name); !ok || st != api.StatusSuccess {
				remaining = append(remaining, h)
			}
		}
		hosts = remaining
	case SelectRetryFailed:
		var failed []inventory.Host
		for _, h := range hosts {
			if st, ok := state.Get(h.Name); ok && st == api.StatusFailed {
				failed = append(failed, h)
			}
		}
		hosts = failed
	}
	return hosts, nil
}

// Orchestrator drives the deployment procedure across a selected host
// list under a bounded worker pool, writing each outcome through to
// the state store (and history, when configured) as it completes.
type Orchestrator struct {
	Proc        *Procedure
	State       *StateStore
	History     *history.Store // optional
	Concurrency int
	// OnOutcome, when set, is called from the collecting goroutine for
	// each completed outcome, in completion order.
	OnOutcome func(api.Outcome)
}

// Run deploys to every host in hosts. It always completes every
// host's attempt: per-host failures and worker panics become failed
// outcomes, never an early return. The only errors Run itself reports
// are state persistence failures surfaced through the log.
func (o *Orchestrator) Run(ctx context.Context, hosts []inventory.Host) *api.RunResult {
	start := time.Now()
	result := &api.RunResult{RunID: uuid.NewString()}

	workers := o.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > MaxConcurrency {
		workers = MaxConcurrency
	}
	if workers > len(hosts) {
		workers = len(hosts)
	}

	jobs := make(chan inventory.Host)
	outcomes := make(chan api.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range jobs {
				outcomes <- o.attempt(ctx, h)
			}
		}()
	}
	go func() {
		for _, h := range hosts {
			jobs <- h
		}
		close(jobs)
		wg.Wait()
		close(outcomes)
	}()

	// Single consumer: all state and history writes happen here, in
	// completion order.
	for oc := range outcomes {
		if err := o.State.Record(oc); err != nil {
			log.Error().Err(err).Str("device", oc.Host).Msg("state write failed")
		}
		if o.History != nil {
			if err := o.History.Record(ctx, result.RunID, oc); err != nil {
				log.Warn().Err(err).Str("device", oc.Host).Msg("history write failed")
			}
		}
		result.Outcomes = append(result.Outcomes, oc)
		if oc.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
		if o.OnOutcome != nil {
			o.OnOutcome(oc)
		}
	}

	result.Duration = time.Since(start)
	return result
}

// attempt runs the procedure for one host, downgrading any panic to a
// failed outcome so a programming error cannot abort the run or lose
// the host's result.
func (o *Orchestrator) attempt(ctx context.Context, h inventory.Host) (oc api.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("device", h.Name).Interface("panic", r).Msg("worker fault")
			oc = api.Outcome{
				Host:     h.Name,
				Platform: h.Platform,
				Error:    fmt.Sprintf("unexpected error: %v", r),
			}
		}
	}()
	return o.Proc.Deploy(ctx, h)
}
