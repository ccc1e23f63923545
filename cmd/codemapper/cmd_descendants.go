package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/app"
)

func runDescendants(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Resolver().Resolve(cmd.Context(), codingSystem, args)
	if err != nil {
		return err
	}
	return printDescendants(cmd.OutOrStdout(), res)
}

func printDescendants(w io.Writer, res descendants.Descendants) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
