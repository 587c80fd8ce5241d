// Command wasmrun loads a WebAssembly module and, optionally, invokes one of its exports.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jblebrun/wazir"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var asText bool
	var invoke string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "wasmrun <module.wasm> [invoke-args...]",
		Short: "Load and optionally invoke a WebAssembly module",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1:], asText, invoke, logLevel)
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "parse the input as WebAssembly text format rather than sniffing the magic bytes")
	cmd.Flags().StringVar(&invoke, "invoke", "", "export to call after loading, followed by its arguments")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func run(path string, invokeArgs []string, asText bool, invoke string, logLevel string) error {
	logger := logrus.StandardLogger()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	rt := wazir.NewRuntime(wazir.Config{Logger: logger})
	ctx := context.Background()

	var mod *wazir.ModuleInstance
	if asText || !bytes.HasPrefix(data, []byte("\x00asm")) {
		mod, err = rt.InstantiateText(ctx, "", string(data))
	} else {
		mod, err = rt.InstantiateBinary(ctx, "", data)
	}
	if err != nil {
		logger.WithError(err).Error("failed to load module")
		return err
	}

	if invoke == "" {
		return nil
	}

	callArgs := make([]uint64, 0, len(invokeArgs))
	for _, a := range invokeArgs {
		n, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return fmt.Errorf("bad argument %q: %w", a, err)
		}
		callArgs = append(callArgs, n)
	}

	results, err := mod.Call(ctx, invoke, callArgs...)
	if err != nil {
		logger.WithError(err).Error("call failed")
		return err
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}
