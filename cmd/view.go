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
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finlore/fsdata/data"
	"github.com/finlore/fsdata/library"
)

var (
	viewFN     string
	viewDirect bool

	viewHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
)

// viewCmd represents the view command
var viewCmd = &cobra.Command{
	Use:   "view [ticker]",
	Short: "Display derived financial ratios for a tracked company",
	Long: `View reads the exported CSV (or the database when --db is given),
pivots the long-form records into one row per fiscal period and prints the
derived ratio series: gross/operating/net margin, current ratio and
year-over-year revenue growth. Without a ticker argument an interactive
picker lists every company in the dataset.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		records, names, err := loadViewRecords()
		if err != nil {
			log.Fatal().Err(err).Msg("could not load financial data")
		}

		rows := data.Reshape(records, names)
		if len(rows) == 0 {
			log.Fatal().Msg("no statement data available; run `fsdata run` and `fsdata export` first")
		}

		tickers := data.Tickers(rows)

		var ticker string
		if len(args) == 1 {
			ticker = args[0]
		} else {
			options := make([]huh.Option[string], 0, len(tickers))
			for _, t := range tickers {
				label := t
				if name := names[t]; name != "" {
					label = fmt.Sprintf("%s (%s)", name, t)
				}
				options = append(options, huh.NewOption(label, t))
			}

			form := huh.NewForm(huh.NewGroup(
				huh.NewSelect[string]().
					Title("Select a company").
					Options(options...).
					Value(&ticker),
			))

			if err := form.Run(); err != nil {
				log.Fatal().Err(err).Msg("company selection failed")
			}
		}

		series := data.FilterTicker(rows, ticker)
		if len(series) == 0 {
			log.Fatal().Str("Ticker", ticker).Msg("no data for company")
		}

		metrics := data.Derive(series)

		header := ticker
		if name := names[ticker]; name != "" {
			header = fmt.Sprintf("%s (%s)", name, ticker)
		}
		fmt.Println(viewHeaderStyle.Render("Financial Analysis for " + header))
		fmt.Println()

		printWideRows(series)
		fmt.Println()
		printMetrics(metrics)
	},
}

func loadViewRecords() ([]*data.StatementRecord, map[string]string, error) {
	if viewDirect {
		ctx := context.Background()

		myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
		if err != nil {
			return nil, nil, err
		}
		defer myLibrary.Close()

		flat, err := myLibrary.FlatRecords(ctx)
		if err != nil {
			return nil, nil, err
		}

		records, names := data.StatementRecords(flat)
		return records, names, nil
	}

	flat, err := data.ReadFlatFile(viewFN)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%s not found: run `fsdata run` and `fsdata export` first", viewFN)
	}
	if err != nil {
		return nil, nil, err
	}

	records, names := data.StatementRecords(flat)
	return records, names, nil
}

func printWideRows(rows []*data.WideRow) {
	table := tablewriter.NewWriter(os.Stdout)

	headers := []string{"Period"}
	for _, column := range data.WideColumns {
		headers = append(headers, column.Header)
	}
	table.SetHeader(headers)

	for _, row := range rows {
		cells := []string{row.FiscalDateEnding.Format("2006-01-02")}
		for _, column := range data.WideColumns {
			cells = append(cells, strconv.FormatInt(column.Value(row), 10))
		}
		table.Append(cells)
	}

	table.Render()
}

func printMetrics(metrics []*data.DerivedMetrics) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Period", "Gross Margin", "Operating Margin", "Net Margin", "Current Ratio", "Revenue Growth"})

	for _, m := range metrics {
		table.Append([]string{
			m.FiscalDateEnding.Format("2006-01-02"),
			data.FormatPercent(m.GrossMarginPct),
			data.FormatPercent(m.OperatingMarginPct),
			data.FormatPercent(m.NetMarginPct),
			data.FormatRatio(m.CurrentRatio),
			data.FormatGrowth(m),
		})
	}

	table.Render()
}

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().StringVarP(&viewFN, "input", "i", "financial_data.csv", "exported CSV file to read")
	viewCmd.Flags().BoolVar(&viewDirect, "db", false, "read from the database instead of the exported CSV")
}
