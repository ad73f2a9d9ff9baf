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
	backups "github.com/paychain-labs/paychain/internal/chain-backups"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func backupCommands(app *paychainInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "export the chain snapshot",
	}

	cmd.AddCommand(backupToDriveCommands(app))
	cmd.AddCommand(backupToS3Commands(app))

	return cmd
}

func backupToDriveCommands(app *paychainInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "write the snapshot under backup_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := app.paychain.ChainSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			path, err := backups.NewBackupManager(app.cnf).BackupToDisk(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			logrus.WithField("path", path).Info("chain backup written")
			return nil
		},
	}
}

func backupToS3Commands(app *paychainInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "s3",
		Short: "write the snapshot and upload the day's backups to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := app.paychain.ChainSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			key, err := backups.NewBackupManager(app.cnf).BackupToS3(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			logrus.WithField("key", key).Info("chain backup uploaded")
			return nil
		},
	}
}
