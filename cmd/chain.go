/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func chainCommands(app *paychainInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "inspect, validate and restore the block chain",
	}

	var actor string
	cmd.PersistentFlags().StringVar(&actor, "actor", "cli", "name recorded in the audit log for restores")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "check the persisted chain for tampering",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.paychain.ValidateChain(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("chain is invalid at blocks %v", report.InvalidIndices)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "replace the chain with the backup snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := app.paychain.RestoreChain(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "validate and restore only if tampering is found",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := app.paychain.CheckAndRecover(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	})

	var last int
	show := &cobra.Command{
		Use:   "show",
		Short: "print blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, err := app.paychain.ChainBlocks(cmd.Context())
			if err != nil {
				return err
			}
			if last > 0 && last < len(blocks) {
				blocks = blocks[len(blocks)-last:]
			}
			return printJSON(cmd.OutOrStdout(), blocks)
		},
	}
	show.Flags().IntVar(&last, "last", 0, "only print the last n blocks")
	cmd.AddCommand(show)

	return cmd
}
