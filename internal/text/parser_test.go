package text

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jblebrun/wazir/internal/wasm"
)

func TestParseModule_AddFunction(t *testing.T) {
	src := `(module
		(func $add (param $a i32) (param $b i32) (result i32)
			local.get $a
			local.get $b
			i32.add)
		(export "add" (func $add)))`

	mod, err := ParseModule([]byte(src))
	require.Nil(t, err)
	require.Len(t, mod.TypeSection, 1)
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, mod.TypeSection[0].Params)
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32}, mod.TypeSection[0].Results)
	require.Len(t, mod.FunctionSection, 1)
	require.Len(t, mod.CodeSection, 1)
	require.Len(t, mod.ExportSection, 1)
	require.Equal(t, "add", mod.ExportSection[0].Name)

	body := mod.CodeSection[0].Body.Instrs
	require.Len(t, body, 4) // local.get, local.get, i32.add, end
	require.IsType(t, wasm.InsEnd{}, body[3])
}

func TestParseModule_ImportsNumberedBeforeDefinitions(t *testing.T) {
	src := `(module
		(import "env" "imported" (func (param i32)))
		(func $local (param i32))
		(export "local" (func $local)))`

	mod, err := ParseModule([]byte(src))
	require.Nil(t, err)
	require.Len(t, mod.ImportSection, 1)
	require.Len(t, mod.FunctionSection, 1)
	// $local must be function index 1: the imported function occupies index 0.
	require.Equal(t, uint32(1), mod.ExportSection[0].Index)
}

func TestParseModule_InlineActiveElement(t *testing.T) {
	src := `(module
		(func $f)
		(table funcref (elem $f)))`

	mod, err := ParseModule([]byte(src))
	require.Nil(t, err)
	require.Len(t, mod.ElementSection, 1)
	require.Equal(t, wasm.ElemModeActive, mod.ElementSection[0].Mode)
	require.Len(t, mod.ElementSection[0].Init, 1)
}

func TestParseModule_UnknownLocalIsError(t *testing.T) {
	src := `(module (func local.get $nope))`
	_, err := ParseModule([]byte(src))
	require.NotNil(t, err)
}

func TestParseModule_ContentIDStable(t *testing.T) {
	src := []byte(`(module (func))`)
	a, err := ParseModule(src)
	require.Nil(t, err)
	b, err := ParseModule(src)
	require.Nil(t, err)
	require.Equal(t, a.ID, b.ID)

	c, err := ParseModule([]byte(`(module (func) (func))`))
	require.Nil(t, err)
	require.NotEqual(t, a.ID, c.ID)
}
