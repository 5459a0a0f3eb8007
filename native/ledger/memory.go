package ledger

import (
	"math/big"
	"sync"
)

// MemoryLedger is an in-process Ledger holding native and token balances
// plus token allowances. It backs the daemon's local mode and the engine
// test suites.
type MemoryLedger struct {
	mu         sync.RWMutex
	native     map[[20]byte]*big.Int
	tokens     map[[20]byte]map[[20]byte]*big.Int
	allowances map[[20]byte]map[[20]byte]map[[20]byte]*big.Int
	contracts  map[[20]byte]bool
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		native:     make(map[[20]byte]*big.Int),
		tokens:     make(map[[20]byte]map[[20]byte]*big.Int),
		allowances: make(map[[20]byte]map[[20]byte]map[[20]byte]*big.Int),
		contracts:  make(map[[20]byte]bool),
	}
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// MintNative credits native coin to the account.
func (l *MemoryLedger) MintNative(addr [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.native[addr]
	if balance == nil {
		balance = big.NewInt(0)
	}
	l.native[addr] = new(big.Int).Add(balance, cloneAmount(amount))
}

// MintToken credits token balance to the account.
func (l *MemoryLedger) MintToken(token, addr [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	book := l.tokens[token]
	if book == nil {
		book = make(map[[20]byte]*big.Int)
		l.tokens[token] = book
	}
	balance := book[addr]
	if balance == nil {
		balance = big.NewInt(0)
	}
	book[addr] = new(big.Int).Add(balance, cloneAmount(amount))
}

// Approve sets the spender allowance over owner's token balance.
func (l *MemoryLedger) Approve(token, owner, spender [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byToken := l.allowances[token]
	if byToken == nil {
		byToken = make(map[[20]byte]map[[20]byte]*big.Int)
		l.allowances[token] = byToken
	}
	byOwner := byToken[owner]
	if byOwner == nil {
		byOwner = make(map[[20]byte]*big.Int)
		byToken[owner] = byOwner
	}
	byOwner[spender] = cloneAmount(amount)
}

// MarkContract records the account as a contract for IsContract.
func (l *MemoryLedger) MarkContract(addr [20]byte) {
	l.mu.Lock()
	l.contracts[addr] = true
	l.mu.Unlock()
}

// Send implements Ledger.
func (l *MemoryLedger) Send(from, to [20]byte, amount *big.Int) error {
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.native[from]
	if balance == nil || balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	l.native[from] = new(big.Int).Sub(balance, amt)
	toBalance := l.native[to]
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	l.native[to] = new(big.Int).Add(toBalance, amt)
	return nil
}

// Transfer implements Ledger.
func (l *MemoryLedger) Transfer(token [20]byte, from, to [20]byte, amount *big.Int) error {
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveTokenLocked(token, from, to, amt)
}

// TransferFrom implements Ledger.
func (l *MemoryLedger) TransferFrom(token [20]byte, spender, from, to [20]byte, amount *big.Int) error {
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance := l.allowances[token][from][spender]
	if allowance == nil || allowance.Cmp(amt) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.moveTokenLocked(token, from, to, amt); err != nil {
		return err
	}
	l.allowances[token][from][spender] = new(big.Int).Sub(allowance, amt)
	return nil
}

func (l *MemoryLedger) moveTokenLocked(token [20]byte, from, to [20]byte, amt *big.Int) error {
	book := l.tokens[token]
	if book == nil {
		return ErrInsufficientBalance
	}
	balance := book[from]
	if balance == nil || balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	book[from] = new(big.Int).Sub(balance, amt)
	toBalance := book[to]
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	book[to] = new(big.Int).Add(toBalance, amt)
	return nil
}

// BalanceOf implements Ledger.
func (l *MemoryLedger) BalanceOf(addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneAmount(l.native[addr])
}

// TokenBalanceOf implements Ledger.
func (l *MemoryLedger) TokenBalanceOf(token, addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneAmount(l.tokens[token][addr])
}

// IsContract implements Ledger.
func (l *MemoryLedger) IsContract(addr [20]byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.contracts[addr]
}
