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
	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/model"
	"github.com/spf13/cobra"
)

func transferCommands(app *paychainInstance) *cobra.Command {
	var from, to, amount, category string

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "move money between accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			precision := app.cnf.Transfer.Precision
			if precision <= 0 {
				precision = config.DEFAULT_PRECISION
			}
			minor, err := model.ParseAmount(amount, precision)
			if err != nil {
				return err
			}

			receipt, err := app.paychain.TransferFunds(cmd.Context(), from, to, minor, category)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source account id")
	cmd.Flags().StringVar(&to, "to", "", "destination account id or BILL_PAYMENT")
	cmd.Flags().StringVar(&amount, "amount", "", "decimal amount, e.g. 30.00")
	cmd.Flags().StringVar(&category, "category", model.DefaultCategory, "transfer category")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
