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

	"github.com/paychain-labs/paychain/config"
	"github.com/spf13/cobra"
)

func configCommands(app *paychainInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "print the computed configuration",
		Annotations: map[string]string{skipInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			redacted := *app.cnf
			if redacted.Server.SecretKey != "" {
				redacted.Server.SecretKey = "********"
			}
			if redacted.AwsSecretAccessKey != "" {
				redacted.AwsSecretAccessKey = "********"
			}
			keys := make([]config.APIKey, len(redacted.Server.APIKeys))
			for i, k := range redacted.Server.APIKeys {
				k.Key = "********"
				keys[i] = k
			}
			redacted.Server.APIKeys = keys

			data, err := json.MarshalIndent(redacted, "", "    ")
			if err != nil {
				return fmt.Errorf("error printing config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}
