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
	"fmt"
	"os"

	"github.com/paychain-labs/paychain"
	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// skipInit marks commands that only need the configuration, not a running ledger.
const skipInit = "paychain.skip_init"

// Paychain represents the CLI application, encapsulating the root Cobra command.
type Paychain struct {
	cmd *cobra.Command
}

// paychainInstance holds the ledger and configuration shared by the subcommands.
type paychainInstance struct {
	paychain *paychain.Paychain
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and, unless the command opts out, opens the
// database and chain stores.
func preRun(app *paychainInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		if cmd.Annotations[skipInit] == "true" {
			return nil
		}

		p, err := paychain.NewFromConfig(cmd.Context(), cnf)
		if err != nil {
			notification.NotifyError(err)
			return fmt.Errorf("error starting paychain: %w", err)
		}
		app.paychain = p
		return nil
	}
}

func postRun(app *paychainInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if app.paychain == nil {
			return nil
		}
		return app.paychain.Close()
	}
}

// NewCLI creates the command-line interface for paychain.
func NewCLI() *Paychain {
	var configFile string
	p := &paychainInstance{}

	var rootCmd = &cobra.Command{
		Use:          "paychain",
		Short:        "Tamper-evident payments ledger",
		SilenceUsage: true,
		Run:          func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./paychain.json", "Configuration file (json, toml or yaml)")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)
	rootCmd.PersistentPostRunE = postRun(p)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(chainCommands(p))
	rootCmd.AddCommand(transferCommands(p))
	rootCmd.AddCommand(backupCommands(p))
	rootCmd.AddCommand(configCommands(p))

	return &Paychain{cmd: rootCmd}
}

func (w Paychain) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
