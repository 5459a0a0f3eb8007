package fees

import (
	"errors"
	"math/big"
	"sync"

	"nftsettle/core/events"
)

const maxBps uint32 = 10_000

// ErrBpsOutOfRange rejects fee rates above 100%.
var ErrBpsOutOfRange = errors.New("fees: bps out of range")

// Provider is the read-only fee view consumed by the auction engine. The
// marketplace owns the rates; the auction engine looks them up per
// settlement, mirroring the cross-contract lookup of the source system.
type Provider interface {
	PlatformFeeInCoin() uint32
	PlatformFeeInToken() uint32
	FeeDestination() [20]byte
}

// Policy holds the platform fee configuration: one rate for native-coin
// settlements, one for platform-token settlements, and the destination
// account fees are routed to. Rates are basis points (10000 = 100%).
type Policy struct {
	mu          sync.RWMutex
	coinBps     uint32
	tokenBps    uint32
	destination [20]byte
	emitter     events.Emitter
}

// NewPolicy constructs a fee policy with the given initial rates.
func NewPolicy(coinBps, tokenBps uint32, destination [20]byte) (*Policy, error) {
	if coinBps > maxBps || tokenBps > maxBps {
		return nil, ErrBpsOutOfRange
	}
	return &Policy{
		coinBps:     coinBps,
		tokenBps:    tokenBps,
		destination: destination,
		emitter:     events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (p *Policy) SetEmitter(emitter events.Emitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// UpdateFee replaces both rates. A change event is emitted per rate, and
// only when the new value actually differs from the stored one.
func (p *Policy) UpdateFee(caller [20]byte, coinBps, tokenBps uint32) error {
	if coinBps > maxBps || tokenBps > maxBps {
		return ErrBpsOutOfRange
	}
	p.mu.Lock()
	oldCoin, oldToken := p.coinBps, p.tokenBps
	p.coinBps, p.tokenBps = coinBps, tokenBps
	emitter := p.emitter
	p.mu.Unlock()
	if coinBps != oldCoin {
		emitter.Emit(events.Wrap(NewCoinFeeChangedEvent(caller, coinBps, oldCoin)))
	}
	if tokenBps != oldToken {
		emitter.Emit(events.Wrap(NewTokenFeeChangedEvent(caller, tokenBps, oldToken)))
	}
	return nil
}

// SetDestination updates the fee destination account.
func (p *Policy) SetDestination(destination [20]byte) {
	p.mu.Lock()
	p.destination = destination
	p.mu.Unlock()
}

// PlatformFeeInCoin implements Provider.
func (p *Policy) PlatformFeeInCoin() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coinBps
}

// PlatformFeeInToken implements Provider.
func (p *Policy) PlatformFeeInToken() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tokenBps
}

// FeeDestination implements Provider.
func (p *Policy) FeeDestination() [20]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.destination
}

// Compute returns the fee owed on amount at the given rate, rounding down.
func Compute(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(int64(maxBps)))
}
