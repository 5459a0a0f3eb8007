package ledger

import (
	"errors"
	"math/big"
)

var (
	// ErrInsufficientBalance is returned when the source account cannot
	// cover the transfer.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInsufficientAllowance is returned when a delegated token pull
	// exceeds the spender's allowance.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	// ErrNegativeAmount rejects negative transfer amounts.
	ErrNegativeAmount = errors.New("ledger: negative amount")
)

// Ledger is the value transfer capability consumed by the settlement
// engines: native coin moves, fungible token moves with allowance
// semantics, and account classification for the direct-caller check.
//
// Token balances are keyed by the token's contract address; the zero
// address is never a token (it is the native-coin sentinel in listings).
type Ledger interface {
	// Send moves native coin between accounts.
	Send(from, to [20]byte, amount *big.Int) error
	// Transfer moves token balance held by from.
	Transfer(token [20]byte, from, to [20]byte, amount *big.Int) error
	// TransferFrom moves token balance from the owner using spender's
	// allowance.
	TransferFrom(token [20]byte, spender, from, to [20]byte, amount *big.Int) error
	// BalanceOf reports the native balance of the account.
	BalanceOf(addr [20]byte) *big.Int
	// TokenBalanceOf reports the token balance of the account.
	TokenBalanceOf(token, addr [20]byte) *big.Int
	// IsContract reports whether the account is a contract rather than an
	// externally controlled one.
	IsContract(addr [20]byte) bool
}
