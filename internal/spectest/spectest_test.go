package spectest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jblebrun/wazir"
)

func TestRunner_AssertReturnAndTrap(t *testing.T) {
	script := `
	(module
		(func $add (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add)
		(func $divzero (export "divzero") (result i32)
			i32.const 1
			i32.const 0
			i32.div_s))
	(assert_return (invoke "add" (i32.const 2) (i32.const 3)) (i32.const 5))
	(assert_trap (invoke "divzero") "integer divide by zero")
	`

	rn := NewRunner(wazir.Config{})
	report, err := rn.Run([]byte(script))
	require.NoError(t, err)
	require.True(t, report.Passed(), "%+v", report.Failures)
	require.Equal(t, 3, report.Total)
}

func TestRunner_AssertInvalidRejectsBadModule(t *testing.T) {
	script := `(assert_invalid (module (func $f (result i32))) "type mismatch")`
	rn := NewRunner(wazir.Config{})
	report, err := rn.Run([]byte(script))
	require.NoError(t, err)
	require.True(t, report.Passed(), "%+v", report.Failures)
}

func TestRunner_RegisterAndCrossModuleGet(t *testing.T) {
	script := `
	(module $producer (global $g (export "g") i32 (i32.const 7)))
	(register "producer" $producer)
	(module (global $h (import "producer" "g") i32))
	(assert_return (get $producer "g") (i32.const 7))
	`
	rn := NewRunner(wazir.Config{})
	report, err := rn.Run([]byte(script))
	require.NoError(t, err)
	require.True(t, report.Passed(), "%+v", report.Failures)
}
