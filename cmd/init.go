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
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/finlore/fsdata/db"
	"github.com/finlore/fsdata/healthcheck"
	"github.com/finlore/fsdata/library"
)

type initConfigFile struct {
	Library struct {
		Name  string `toml:"name"`
		Owner string `toml:"owner"`
	} `toml:"library"`
	DB struct {
		URL string `toml:"url"`
	} `toml:"db"`
	AlphaVantage struct {
		APIKey  string `toml:"apikey"`
		Tickers string `toml:"tickers"`
	} `toml:"alphavantage"`
	HealthChecks struct {
		CheckID string `toml:"checkid"`
	} `toml:"healthchecks"`
}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Gather configuration and set up the statement library schema",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var (
			cfg       initConfigFile
			monitored bool
		)

		form := huh.NewForm(
			// Gather details about the library and who owns it
			huh.NewGroup(
				huh.NewInput().
					Title("Give the library a name:").
					Value(&cfg.Library.Name),

				huh.NewInput().
					Title("Who owns the library?").
					Value(&cfg.Library.Owner),
			),

			// Get details about the database and data source
			huh.NewGroup(
				huh.NewInput().
					Title("Provide the DSN for connecting to your PostgreSQL database (postgres://[user[:password]@][netloc][:port][/dbname][?param1=value1&...])").
					Value(&cfg.DB.URL).
					Validate(func(dsn string) error {
						_, err := pgx.ParseConfig(dsn)
						return err
					}),

				huh.NewInput().
					Title("What is your Alpha Vantage API key?").
					Value(&cfg.AlphaVantage.APIKey),

				huh.NewInput().
					Title("Which tickers should be tracked (comma separated, e.g. TEL,ST,DD)?").
					Value(&cfg.AlphaVantage.Tickers),

				huh.NewConfirm().
					Title("Should a healthchecks.io monitor be created for pipeline runs?").
					Value(&monitored),
			),
		)

		err := form.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("error gathering library settings")
		}

		log.Info().Msg("creating database tables")

		// run migration
		dbURL := strings.Replace(cfg.DB.URL, "postgres://", "pgx5://", -1)
		err = db.Migrate(dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("error running database migration")
		}

		log.Info().Msg("database tables created")

		myLibrary := &library.Library{
			DBUrl: cfg.DB.URL,
			Name:  cfg.Library.Name,
			Owner: cfg.Library.Owner,
		}

		if err := myLibrary.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		defer myLibrary.Close()

		err = myLibrary.SaveDB(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error saving library settings to database")
		}

		if monitored {
			checkID, err := healthcheck.Create(cfg.Library.Name, []string{"fsdata"}, "0 6 * * 1-5")
			if err != nil {
				log.Error().Err(err).Msg("could not create health check")
			} else {
				cfg.HealthChecks.CheckID = checkID
			}
		}

		// save settings to config file
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("could not determine user home directory")
		}

		configFN := filepath.Join(home, ".fsdata.toml")
		log.Info().Str("ConfigFile", configFN).Msg("Saving settings to config file")
		configData, err := toml.Marshal(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal configuration data")
		}

		err = os.WriteFile(configFN, configData, 0644)
		if err != nil {
			log.Fatal().Err(err).Str("FileName", configFN).Msg("could not save configuration to file")
		}

		log.Info().Msg("Your statement library has been initialized")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
