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
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finlore/fsdata/alphavantage"
	"github.com/finlore/fsdata/library"
	"github.com/finlore/fsdata/pipeline"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [ticker...]",
	Short: "Fetch and load financial statements for the tracked companies",
	Long: `The run sub-command executes one batch of the incremental refresh.
Statements are fetched one company at a time under the provider rate limit,
normalized into long-form records and loaded idempotently; companies whose
data is oldest (or missing) go first. Tickers given as arguments are added
to the tracked universe before the batch is selected.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to library")
		}
		defer myLibrary.Close()

		myLibrary.LoadCompanyCache(ctx)

		tickers := args
		if len(tickers) == 0 {
			configured := viper.GetString("alphavantage.tickers")
			if configured != "" {
				for _, ticker := range strings.Split(configured, ",") {
					tickers = append(tickers, strings.TrimSpace(ticker))
				}
			}
		}

		client := alphavantage.New(viper.GetString("alphavantage.apikey"),
			viper.GetDuration("cooldown"), viper.GetDuration("throttleCooldown"))

		myPipeline := pipeline.New(client, myLibrary, tickers, viper.GetInt("batchSize"))
		myPipeline.HealthCheckID = viper.GetString("healthchecks.checkid")

		startTime := time.Now()
		summary, err := myPipeline.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("pipeline run failed")
		}

		log.Info().Str("RunID", summary.RunID.String()).
			Dur("RunTime", time.Since(startTime)).
			Int64("NumRecords", summary.NumRecords).
			Int("NumCompanies", summary.NumCompanies).
			Int("NumFailures", summary.NumFailures).
			Msg("pipeline finished")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("batch-size", 8, "maximum companies to refresh in one run")
	if err := viper.BindPFlag("batchSize", runCmd.Flags().Lookup("batch-size")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for batch-size failed")
	}

	runCmd.Flags().Duration("cooldown", alphavantage.DefaultCooldown, "delay between API requests")
	if err := viper.BindPFlag("cooldown", runCmd.Flags().Lookup("cooldown")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for cooldown failed")
	}

	runCmd.Flags().Duration("throttle-cooldown", alphavantage.DefaultThrottleCooldown, "extended delay after a provider throttle signal")
	if err := viper.BindPFlag("throttleCooldown", runCmd.Flags().Lookup("throttle-cooldown")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for throttle-cooldown failed")
	}
}
