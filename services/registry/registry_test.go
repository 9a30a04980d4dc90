package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(_ context.Context, state map[string]any) (map[string]any, error) {
	return state, nil
}

func TestRegister_DuplicateRejectedWithoutOverride(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("identity", identity, false))

	err := r.Register("identity", identity, false)
	assert.Error(t, err)

	err = r.Register("identity", identity, true)
	assert.NoError(t, err)
}

func TestRegister_NilFuncRejected(t *testing.T) {
	r := New()
	err := r.Register("nil-tool", nil, false)
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestExistsAndListTools(t *testing.T) {
	r := New()
	assert.False(t, r.Exists("identity"))

	require.NoError(t, r.Register("identity", identity, false))
	assert.True(t, r.Exists("identity"))
	assert.ElementsMatch(t, []string{"identity"}, r.ListTools())
}

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("identity", identity, false))
	require.NoError(t, r.Unregister("identity"))
	assert.False(t, r.Exists("identity"))

	err := r.Unregister("identity")
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", identity, false))
	require.NoError(t, r.Register("b", identity, false))
	r.Clear()
	assert.Empty(t, r.ListTools())
}

func TestGetToolInfo(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("identity", identity, false, WithDoc("returns state unchanged")))

	info, err := r.GetToolInfo("identity")
	require.NoError(t, err)
	assert.Equal(t, "identity", info.Name)
	assert.Equal(t, KindSync, info.Kind)
	assert.Equal(t, "returns state unchanged", info.Doc)

	_, err = r.GetToolInfo("missing")
	assert.Error(t, err)
}

func TestKind_SyncVsAsync(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sync-tool", identity, false))
	require.NoError(t, r.Register("async-tool", identity, false, WithAsync()))

	kind, err := r.Kind("sync-tool")
	require.NoError(t, err)
	assert.Equal(t, KindSync, kind)

	kind, err = r.Kind("async-tool")
	require.NoError(t, err)
	assert.Equal(t, KindAsync, kind)
}

func TestMustRegister_PanicsOnCollision(t *testing.T) {
	r := New()
	r.MustRegister("identity", identity)

	assert.Panics(t, func() {
		r.MustRegister("identity", identity)
	})
}

func TestDefault_IsProcessWide(t *testing.T) {
	assert.NotNil(t, Default())
	assert.Same(t, Default(), Default())
}
