package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestSendMovesNativeBalance(t *testing.T) {
	l := NewMemoryLedger()
	alice := addr(0x01)
	bob := addr(0x02)
	l.MintNative(alice, big.NewInt(100))

	require.NoError(t, l.Send(alice, bob, big.NewInt(40)))
	require.Equal(t, int64(60), l.BalanceOf(alice).Int64())
	require.Equal(t, int64(40), l.BalanceOf(bob).Int64())

	require.ErrorIs(t, l.Send(alice, bob, big.NewInt(61)), ErrInsufficientBalance)
	require.ErrorIs(t, l.Send(alice, bob, big.NewInt(-1)), ErrNegativeAmount)
	require.NoError(t, l.Send(alice, bob, big.NewInt(0)))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewMemoryLedger()
	token := addr(0xEE)
	owner := addr(0x01)
	spender := addr(0x02)
	sink := addr(0x03)
	l.MintToken(token, owner, big.NewInt(100))

	require.ErrorIs(t, l.TransferFrom(token, spender, owner, sink, big.NewInt(10)), ErrInsufficientAllowance)

	l.Approve(token, owner, spender, big.NewInt(50))
	require.NoError(t, l.TransferFrom(token, spender, owner, sink, big.NewInt(30)))
	require.Equal(t, int64(70), l.TokenBalanceOf(token, owner).Int64())
	require.Equal(t, int64(30), l.TokenBalanceOf(token, sink).Int64())

	// Remaining allowance is 20.
	require.ErrorIs(t, l.TransferFrom(token, spender, owner, sink, big.NewInt(21)), ErrInsufficientAllowance)
	require.NoError(t, l.TransferFrom(token, spender, owner, sink, big.NewInt(20)))
}

func TestTransferRequiresBalance(t *testing.T) {
	l := NewMemoryLedger()
	token := addr(0xEE)
	owner := addr(0x01)
	sink := addr(0x02)

	require.ErrorIs(t, l.Transfer(token, owner, sink, big.NewInt(1)), ErrInsufficientBalance)

	l.MintToken(token, owner, big.NewInt(5))
	require.NoError(t, l.Transfer(token, owner, sink, big.NewInt(5)))
	require.ErrorIs(t, l.Transfer(token, owner, sink, big.NewInt(1)), ErrInsufficientBalance)
}

func TestIsContract(t *testing.T) {
	l := NewMemoryLedger()
	bot := addr(0x0B)
	require.False(t, l.IsContract(bot))
	l.MarkContract(bot)
	require.True(t, l.IsContract(bot))
}
