package policystore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brindlewood/acpcore/pkg/acp/permission"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetReturnsFalseWhenAbsent(t *testing.T) {
	store := openTestStore(t)
	_, ok := store.Get(wire.ToolKindExecute)
	require.False(t, ok)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Set(wire.ToolKindEdit, permission.DecisionAllow))

	d, ok := store.Get(wire.ToolKindEdit)
	require.True(t, ok)
	require.Equal(t, permission.DecisionAllow, d)
}

func TestSetUpsertsExistingKind(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Set(wire.ToolKindExecute, permission.DecisionAllow))
	require.NoError(t, store.Set(wire.ToolKindExecute, permission.DecisionReject))

	d, ok := store.Get(wire.ToolKindExecute)
	require.True(t, ok)
	require.Equal(t, permission.DecisionReject, d)
}

func TestExportImportYAMLRoundTrips(t *testing.T) {
	src := openTestStore(t)
	require.NoError(t, src.Set(wire.ToolKindRead, permission.DecisionAllow))
	require.NoError(t, src.Set(wire.ToolKindExecute, permission.DecisionReject))

	data, err := src.ExportYAML()
	require.NoError(t, err)

	dst := openTestStore(t)
	require.NoError(t, dst.ImportYAML(data))

	d, ok := dst.Get(wire.ToolKindRead)
	require.True(t, ok)
	require.Equal(t, permission.DecisionAllow, d)

	d, ok = dst.Get(wire.ToolKindExecute)
	require.True(t, ok)
	require.Equal(t, permission.DecisionReject, d)
}
