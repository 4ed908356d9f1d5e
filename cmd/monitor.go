// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finlore/fsdata/healthcheck"
)

var monitorSchedule string

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage the healthchecks.io monitor for pipeline runs",
}

var monitorCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a healthchecks.io check for the pipeline schedule",
	Run: func(cmd *cobra.Command, args []string) {
		name := viper.GetString("library.name")
		if name == "" {
			name = "fsdata"
		}

		checkID, err := healthcheck.Create(name, []string{"fsdata"}, monitorSchedule)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create health check")
		}

		fmt.Printf("Check ID: %s\n", checkID)
		fmt.Println("Save it as healthchecks.checkid in your config file so `fsdata run` pings it.")
	},
}

var monitorDeleteCmd = &cobra.Command{
	Use:   "delete [check-id]",
	Short: "Delete a healthchecks.io check",
	Long: `Delete removes the health check that pipeline runs ping. The check id
is taken from the command line, or from healthchecks.checkid in the config
file when no argument is given. Remember to remove the id from the config
file afterwards, otherwise runs will keep pinging the deleted check.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		checkID := viper.GetString("healthchecks.checkid")
		if len(args) == 1 {
			checkID = args[0]
		}
		if checkID == "" {
			log.Fatal().Msg("no check id given and healthchecks.checkid is not configured")
		}

		confirmed := false
		confirmForm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Are you sure you want to delete check '%s'?", checkID)).
					Value(&confirmed),
			),
		)

		if err := confirmForm.Run(); err != nil {
			log.Fatal().Err(err).Msg("failed to create wizard")
		}

		if !confirmed {
			fmt.Printf("Ok, we won't delete '%s'\n", checkID)
			return
		}

		if err := healthcheck.Delete(checkID); err != nil {
			log.Fatal().Err(err).Msg("could not delete health check")
		}

		log.Info().Str("CheckID", checkID).Msg("health check deleted")
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorCreateCmd)
	monitorCmd.AddCommand(monitorDeleteCmd)

	monitorCreateCmd.Flags().StringVar(&monitorSchedule, "schedule", "0 6 * * 1-5", "cron schedule the check expects pings on")
}
