// Package bridge orchestrates bounded execution bursts across all lanes and
// relays SBI-style supervisor calls between guest code and the host.
package bridge

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/infinitemap/pxvm/lane"
)

// Call classes surfaced to the host, numbered after the legacy SBI extension
// ids the guest convention borrows.
const (
	EventConsole = 0x01
	EventReset   = 0x08

	FnConsolePutChar = 0
)

// CallInfo describes one serviced supervisor call, for observability.
type CallInfo struct {
	Lane       int       `json:"lane"`
	EventID    uint32    `json:"event_id"`
	FunctionID uint32    `json:"function_id"`
	Args       [3]uint32 `json:"args"`
	Result     uint32    `json:"result"`
	Handled    bool      `json:"handled"`
}

func (c CallInfo) String() string {
	return fmt.Sprintf("lane %d: event %#x fn %#x args %x handled=%v",
		c.Lane, c.EventID, c.FunctionID, c.Args, c.Handled)
}

// Bridge drives the parallel compute substrate. Every lane runs the same
// step logic independently; the only host-side blocking point is Dispatch.
type Bridge struct {
	log log.Logger

	bursts         uint64
	resetRequested bool
}

func New(logger log.Logger) *Bridge {
	if logger == nil {
		logger = log.Root()
	}
	return &Bridge{log: logger}
}

// Dispatch submits one burst of at most maxSteps instructions to every lane
// and blocks until the whole burst completes. mems is indexed per lane; in a
// shared-memory configuration every entry aliases the same region, which
// leaves cross-lane writes to the same address as documented
// last-writer-wins. Returns the total steps executed across lanes.
func (b *Bridge) Dispatch(ctx context.Context, lanes []*lane.State, mems []*lane.Memory, maxSteps int) (int, error) {
	if len(mems) != len(lanes) {
		return 0, fmt.Errorf("have %d lanes but %d memory regions", len(lanes), len(mems))
	}
	g, _ := errgroup.WithContext(ctx)
	steps := make([]int, len(lanes))
	for i := range lanes {
		i := i
		g.Go(func() error {
			n, err := lanes[i].Run(mems[i], maxSteps)
			steps[i] = n
			if err != nil {
				return fmt.Errorf("lane %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	b.bursts++
	total := 0
	for _, n := range steps {
		total += n
	}
	b.log.Debug("burst complete", "burst", b.bursts, "lanes", len(lanes), "steps", total)
	return total, nil
}

// Poll reports whether any lane holds an unserviced supervisor call.
// Non-blocking.
func (b *Bridge) Poll(lanes []*lane.State) bool {
	for _, st := range lanes {
		if st.Call != nil {
			return true
		}
	}
	return false
}

// HandleCall services exactly one pending call, from the lowest-indexed lane
// holding one. The side-channel is cleared and the result written back into
// the lane's a0 register before the next burst. Callers drain multiple queued
// calls by re-polling. Unrecognized events are logged and dropped; guest
// execution continues.
func (b *Bridge) HandleCall(lanes []*lane.State) (CallInfo, bool) {
	for i, st := range lanes {
		if st.Call == nil {
			continue
		}
		call := *st.Call
		st.Call = nil

		info := CallInfo{
			Lane:       i,
			EventID:    call.EventID,
			FunctionID: call.FunctionID,
			Args:       call.Args,
		}
		switch call.EventID {
		case EventConsole:
			switch call.FunctionID {
			case FnConsolePutChar:
				st.Output = append(st.Output, byte(call.Args[0]))
				info.Handled = true
			default:
				b.log.Warn("unhandled console function", "lane", i, "fn", call.FunctionID)
			}
		case EventReset:
			b.resetRequested = true
			info.Handled = true
			b.log.Info("guest requested reset", "lane", i)
		default:
			b.log.Warn("unhandled guest call", "lane", i, "event", call.EventID, "fn", call.FunctionID)
		}

		st.Registers[10] = info.Result // a0 carries the call result
		return info, true
	}
	return CallInfo{}, false
}

// ResetRequested reports whether a guest asked for session reinitialization
// since the last ClearReset.
func (b *Bridge) ResetRequested() bool {
	return b.resetRequested
}

func (b *Bridge) ClearReset() {
	b.resetRequested = false
}

// Bursts returns how many bursts have been dispatched.
func (b *Bridge) Bursts() uint64 {
	return b.bursts
}
