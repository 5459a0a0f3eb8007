package auction

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusAtIsPureAndMonotonic(t *testing.T) {
	record := &Record{StartTime: 100, Duration: 30, BidAmount: big.NewInt(10)}

	require.Equal(t, StatusPending, record.StatusAt(0))
	require.Equal(t, StatusPending, record.StatusAt(99))
	require.Equal(t, StatusActive, record.StatusAt(100))
	require.Equal(t, StatusActive, record.StatusAt(129))
	require.Equal(t, StatusFinished, record.StatusAt(130))
	require.Equal(t, StatusFinished, record.StatusAt(1_000_000))

	// Repeated queries at the same timestamp agree, and the status never
	// regresses as time advances.
	previous := StatusPending
	for now := int64(0); now <= 200; now++ {
		status := record.StatusAt(now)
		require.Equal(t, status, record.StatusAt(now))
		require.GreaterOrEqual(t, uint8(status), uint8(previous))
		previous = status
	}
}

func TestRecordClone(t *testing.T) {
	bidder := [20]byte{0x01}
	record := &Record{
		TokenID:   7,
		BidAmount: big.NewInt(10),
		Bidder:    &bidder,
		BidCount:  1,
	}

	clone := record.Clone()
	clone.BidAmount.SetInt64(99)
	*clone.Bidder = [20]byte{0x02}
	clone.BidCount = 5

	require.Equal(t, int64(10), record.BidAmount.Int64())
	require.Equal(t, bidder, *record.Bidder)
	require.Equal(t, uint32(1), record.BidCount)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "pending", StatusPending.String())
	require.Equal(t, "active", StatusActive.String())
	require.Equal(t, "finished", StatusFinished.String())
}
