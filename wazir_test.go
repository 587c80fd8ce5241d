package wazir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jblebrun/wazir/api"
)

func TestRuntime_InstantiateTextAndCall(t *testing.T) {
	rt := NewRuntime(Config{})
	ctx := context.Background()

	mi, err := rt.InstantiateText(ctx, "adder", `(module
		(func $add (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add))`)
	require.NoError(t, err)

	results, err := mi.Call(ctx, "add", 2, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, results)
}

func TestRuntime_DuplicateNameRejected(t *testing.T) {
	rt := NewRuntime(Config{})
	ctx := context.Background()

	_, err := rt.InstantiateText(ctx, "m", `(module)`)
	require.NoError(t, err)

	_, err = rt.InstantiateText(ctx, "m", `(module)`)
	require.Error(t, err)
}

func TestRuntime_CrossModuleImport(t *testing.T) {
	rt := NewRuntime(Config{})
	ctx := context.Background()

	provider, err := rt.InstantiateText(ctx, "provider", `(module
		(global $g (export "g") i32 (i32.const 42)))`)
	require.NoError(t, err)
	require.NoError(t, rt.Register("provider", provider))

	consumer, err := rt.InstantiateText(ctx, "consumer", `(module
		(global $g (import "provider" "g") i32))`)
	require.NoError(t, err)
	require.NotNil(t, consumer)
}

func TestSpectestModule_IsRegistered(t *testing.T) {
	rt := NewRuntime(Config{})
	ev, ok := rt.Lookup("spectest", "global_i32")
	require.True(t, ok)
	require.Equal(t, api.ExternTypeGlobal, ev.Kind)
}
