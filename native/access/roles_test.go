package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nftsettle/native/common"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestRolesAreIndependent(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	ctrl := NewController(owner, admin)

	require.NoError(t, ctrl.RequireOwner(owner))
	require.NoError(t, ctrl.RequireAdmin(admin))

	// Owner does not hold the admin capability and vice versa.
	require.ErrorIs(t, ctrl.RequireAdmin(owner), common.ErrUnauthorized)
	require.ErrorIs(t, ctrl.RequireOwner(admin), common.ErrUnauthorized)
}

func TestTransferOwnership(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	next := addr(0x03)
	ctrl := NewController(owner, admin)

	require.ErrorIs(t, ctrl.TransferOwnership(admin, next), common.ErrUnauthorized)
	require.NoError(t, ctrl.TransferOwnership(owner, next))
	require.Equal(t, next, ctrl.Owner())
	require.ErrorIs(t, ctrl.RequireOwner(owner), common.ErrUnauthorized)
	require.NoError(t, ctrl.RequireOwner(next))
}

func TestTransferAdmin(t *testing.T) {
	owner := addr(0x01)
	admin := addr(0x02)
	next := addr(0x03)
	ctrl := NewController(owner, admin)

	require.ErrorIs(t, ctrl.TransferAdmin(owner, next), common.ErrUnauthorized)
	require.NoError(t, ctrl.TransferAdmin(admin, next))
	require.Equal(t, next, ctrl.Admin())
	require.NoError(t, ctrl.RequireAdmin(next))
}
