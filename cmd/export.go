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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finlore/fsdata/data"
	"github.com/finlore/fsdata/library"
)

var exportFN string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the statement library to a long-form CSV file",
	Long: `Export writes every stored statement fact as one CSV row of
(ticker, company_name, fiscal_date_ending, metric_name, metric_value).
The file is the interchange format consumed by 'fsdata view' when direct
database access is unavailable.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to library")
		}
		defer myLibrary.Close()

		records, err := myLibrary.FlatRecords(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not read statement records")
		}

		if err := data.WriteFlatFile(exportFN, records); err != nil {
			log.Fatal().Err(err).Str("FileName", exportFN).Msg("could not write export file")
		}

		log.Info().Int("NumRecords", len(records)).Str("FileName", exportFN).Msg("export complete")
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFN, "output", "o", "financial_data.csv", "output file name")
}
