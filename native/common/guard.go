package common

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrModulePaused is returned when a mutating operation targets a module
	// the protocol admin has paused.
	ErrModulePaused = errors.New("module paused")
	// ErrReentrantCall is returned when a mutating entry point is invoked
	// while another mutating call on the same engine instance is still in
	// flight, including callbacks triggered by asset-transfer hooks.
	ErrReentrantCall = errors.New("reentrant call")
)

// PauseView reports whether a named module is paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a concurrency-safe PauseView with a mutable switch per module.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet returns an empty pause set; all modules start unpaused.
func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

// SetPaused flips the pause switch for the named module.
func (p *PauseSet) SetPaused(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	p.paused[module] = paused
	p.mu.Unlock()
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// CallGuard enforces single-in-flight execution of mutating entry points on
// an engine instance. A mutex would deadlock (or worse, succeed) when an
// asset-transfer hook calls back into the engine on the same goroutine, so
// acquisition must observably fail instead of block.
type CallGuard struct {
	busy atomic.Bool
}

// Enter acquires the guard. It returns the release function on success and
// ErrReentrantCall when another mutating call is already executing. The
// release function must be invoked on every exit path, including failures.
func (g *CallGuard) Enter() (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	return func() { g.busy.Store(false) }, nil
}
