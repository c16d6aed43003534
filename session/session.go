// Package session is the execution control surface: it turns token sequences
// or raw instruction listings into device buffers, drives the host bridge,
// and exposes lane state and memory for inspection.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/infinitemap/pxvm/bridge"
	"github.com/infinitemap/pxvm/codebook"
	"github.com/infinitemap/pxvm/lane"
)

// ErrUnknownToken is returned when a token sequence references an id the
// codebook cannot resolve. Unlike the codebook's own authoring policy this is
// a hard error: silently executing a partial expansion would corrupt pc and
// register state invisibly.
var ErrUnknownToken = errors.New("unknown token")

// ErrNoProgram is returned when Execute is called before a program is loaded.
var ErrNoProgram = errors.New("no program loaded")

// Session owns one set of execution buffers. Buffers are never shared across
// sessions; the codebook is borrowed and treated as immutable while the
// session is live.
type Session struct {
	cfg  Config
	book *codebook.Codebook
	br   *bridge.Bridge
	log  log.Logger

	program []uint32
	lanes   []*lane.State
	mems    []*lane.Memory
	calls   []bridge.CallInfo
}

// New creates an empty session. book may be nil when only raw programs are
// loaded.
func New(cfg Config, book *codebook.Codebook, logger log.Logger) (*Session, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Session{
		cfg:  cfg,
		book: book,
		br:   bridge.New(logger),
		log:  logger,
	}, nil
}

// LoadProgram provisions device buffers from raw instruction words.
func (s *Session) LoadProgram(words []uint32) error {
	if len(words) == 0 {
		return errors.New("empty program")
	}
	s.provision(append([]uint32(nil), words...))
	return nil
}

// LoadTokens resolves a token sequence against the codebook's flattened image
// and concatenates the expansions in order. The whole sequence is resolved
// before anything is provisioned, so a failure leaves no buffers behind.
func (s *Session) LoadTokens(ids []uint32) error {
	if s.book == nil {
		return errors.New("session has no codebook")
	}
	img := s.book.Flatten()
	var words []uint32
	for _, id := range ids {
		expansion, ok := img.Expand(id)
		if !ok {
			return fmt.Errorf("token %#06x: %w", id, ErrUnknownToken)
		}
		words = append(words, expansion...)
	}
	if len(words) == 0 {
		return errors.New("token sequence expands to an empty program")
	}
	for _, id := range ids {
		s.book.Touch(id)
	}
	s.provision(words)
	return nil
}

func (s *Session) provision(words []uint32) {
	s.program = words
	s.lanes = make([]*lane.State, s.cfg.Lanes)
	s.mems = make([]*lane.Memory, s.cfg.Lanes)
	var shared *lane.Memory
	if s.cfg.Memory == MemoryShared {
		shared = lane.NewMemory(s.cfg.MemorySize)
	}
	for i := range s.lanes {
		s.lanes[i] = lane.NewState(s.program)
		s.lanes[i].FaultOnUnknown = s.cfg.FaultOnUnknown
		if shared != nil {
			s.mems[i] = shared
		} else {
			s.mems[i] = lane.NewMemory(s.cfg.MemorySize)
		}
	}
	s.calls = nil
	s.br.ClearReset()
	s.log.Debug("session provisioned",
		"lanes", s.cfg.Lanes, "words", len(words),
		"memory", s.cfg.Memory, "size", s.mems[0].Usage())
}

// Execute dispatches one burst of at most burstSize steps per lane, then
// drains the pending-call side channel until no call remains. A guest reset
// request reinitializes the buffers after the drain. Cancellation is honored
// between bursts only; a dispatched burst always runs to its step budget.
func (s *Session) Execute(ctx context.Context, burstSize int) error {
	if s.lanes == nil {
		return ErrNoProgram
	}
	if burstSize <= 0 {
		burstSize = s.cfg.MaxSteps
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.br.Dispatch(ctx, s.lanes, s.mems, burstSize); err != nil {
		return err
	}
	for s.br.Poll(s.lanes) {
		info, ok := s.br.HandleCall(s.lanes)
		if !ok {
			break
		}
		s.calls = append(s.calls, info)
	}
	if s.br.ResetRequested() {
		s.log.Info("reinitializing session on guest request")
		s.provision(s.program)
	}
	return nil
}

// Done reports whether every lane has halted.
func (s *Session) Done() bool {
	if s.lanes == nil {
		return false
	}
	for _, st := range s.lanes {
		if !st.Halted {
			return false
		}
	}
	return true
}

// Lanes returns the live lane states for inspection. Read-only by
// convention between bursts.
func (s *Session) Lanes() []*lane.State {
	return s.lanes
}

// Output returns the console bytes accumulated for one lane.
func (s *Session) Output(i int) []byte {
	if i < 0 || i >= len(s.lanes) {
		return nil
	}
	return s.lanes[i].Output
}

// Calls returns every supervisor call serviced so far, in order.
func (s *Session) Calls() []bridge.CallInfo {
	return s.calls
}

// ReadMemory returns a clamped byte range from a lane's data memory. In
// shared mode every lane sees the same region.
func (s *Session) ReadMemory(laneIdx int, addr uint32, length uint32) []byte {
	if laneIdx < 0 || laneIdx >= len(s.mems) {
		return nil
	}
	return s.mems[laneIdx].Range(addr, length)
}

// WriteMemory places data into a lane's data memory, for test harnesses and
// host-side setup (page tables, call results).
func (s *Session) WriteMemory(laneIdx int, addr uint32, data []byte) {
	if laneIdx < 0 || laneIdx >= len(s.mems) {
		return
	}
	s.mems[laneIdx].SetRange(addr, data)
}

// Reset releases all device-side buffers and side-channel state. Safe to call
// from any state; the loaded program is forgotten.
func (s *Session) Reset() {
	s.program = nil
	s.lanes = nil
	s.mems = nil
	s.calls = nil
	s.br.ClearReset()
}
