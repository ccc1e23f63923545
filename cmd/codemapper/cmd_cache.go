package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/app"
)

func runCacheEvict(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("N must be a non-negative integer, got %q", args[0])
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.Resolver().Evict(cmd.Context(), n)
	if err != nil {
		return err
	}
	remaining, err := a.Resolver().Len(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries, %d remaining\n", removed, remaining)
	return nil
}
