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
package pipeline_test

import (
	"context"
	"fmt"
	"sort"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finlore/fsdata/alphavantage"
	"github.com/finlore/fsdata/data"
	"github.com/finlore/fsdata/pipeline"
)

// memoryStore mimics the database's first-write-wins conflict handling so
// pipeline behavior can be exercised without Postgres
type memoryStore struct {
	nextID    int64
	companies map[string]*data.Company
	order     []string
	records   map[string]int64
	synced    map[string]time.Time

	upsertErr   error
	markedOrder []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		companies: make(map[string]*data.Company),
		records:   make(map[string]int64),
		synced:    make(map[string]time.Time),
	}
}

func (store *memoryStore) GetOrCreateCompany(_ context.Context, ticker string, name string) (*data.Company, error) {
	if company, ok := store.companies[ticker]; ok {
		return &data.Company{ID: company.ID, Ticker: company.Ticker, Name: company.Name}, nil
	}

	store.nextID++
	company := &data.Company{ID: store.nextID, Ticker: ticker, Name: name}
	store.companies[ticker] = company
	store.order = append(store.order, ticker)
	return &data.Company{ID: company.ID, Ticker: company.Ticker, Name: company.Name}, nil
}

func (store *memoryStore) BackfillCompanyName(_ context.Context, ticker string, name string) error {
	if company, ok := store.companies[ticker]; ok && company.Name == "" {
		company.Name = name
	}
	return nil
}

func (store *memoryStore) UpsertRecords(_ context.Context, records []*data.StatementRecord) (int64, error) {
	if store.upsertErr != nil {
		return 0, store.upsertErr
	}

	var inserted int64
	for _, record := range records {
		key := fmt.Sprintf("%d/%s/%s/%s", record.CompanyID, record.Kind,
			record.FiscalDateEnding.Format("2006-01-02"), record.MetricName)
		if _, ok := store.records[key]; ok {
			continue
		}
		store.records[key] = record.MetricValue
		inserted++
	}
	return inserted, nil
}

func (store *memoryStore) NextBatch(_ context.Context, batchSize int) ([]string, error) {
	var unsynced, synced []string
	for _, ticker := range store.order {
		if _, ok := store.synced[ticker]; ok {
			synced = append(synced, ticker)
		} else {
			unsynced = append(unsynced, ticker)
		}
	}
	sort.Strings(unsynced)
	sort.Slice(synced, func(i, j int) bool {
		return store.synced[synced[i]].Before(store.synced[synced[j]])
	})

	batch := append(unsynced, synced...)
	if batchSize < len(batch) {
		batch = batch[:batchSize]
	}
	return batch, nil
}

func (store *memoryStore) MarkSynced(_ context.Context, ticker string, ts time.Time) error {
	store.synced[ticker] = ts
	store.markedOrder = append(store.markedOrder, ticker)
	return nil
}

// fakeFetcher serves canned payloads keyed by ticker and statement kind
type fakeFetcher struct {
	payloads     map[string][]byte
	errors       map[string]error
	overviews    map[string]string
	overviewHits map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads:     make(map[string][]byte),
		errors:       make(map[string]error),
		overviews:    make(map[string]string),
		overviewHits: make(map[string]int),
	}
}

func fetchKey(ticker string, kind data.StatementKind) string {
	return ticker + "/" + string(kind)
}

func (fetcher *fakeFetcher) setPayload(ticker string, kind data.StatementKind, revenue int64, period string) {
	fetcher.payloads[fetchKey(ticker, kind)] = []byte(fmt.Sprintf(
		`{"annualReports": [{"fiscalDateEnding": %q, "totalRevenue": "%d"}]}`, period, revenue))
}

func (fetcher *fakeFetcher) FetchCompanyOverview(_ context.Context, ticker string) (*alphavantage.CompanyOverview, error) {
	fetcher.overviewHits[ticker]++
	name, ok := fetcher.overviews[ticker]
	if !ok {
		name = ticker
	}
	return &alphavantage.CompanyOverview{Ticker: ticker, Name: name}, nil
}

func (fetcher *fakeFetcher) FetchStatement(_ context.Context, ticker string, kind data.StatementKind) ([]byte, error) {
	if err, ok := fetcher.errors[fetchKey(ticker, kind)]; ok {
		return nil, err
	}
	if payload, ok := fetcher.payloads[fetchKey(ticker, kind)]; ok {
		return payload, nil
	}
	return []byte(`{"annualReports": []}`), nil
}

var _ = Describe("Pipeline", func() {
	var (
		store   *memoryStore
		fetcher *fakeFetcher
	)

	BeforeEach(func() {
		store = newMemoryStore()
		fetcher = newFakeFetcher()
	})

	Describe("Run", func() {
		It("loads every statement kind and marks the company synced", func() {
			fetcher.overviews["TEL"] = "TE Connectivity"
			for _, kind := range data.StatementKinds {
				fetcher.setPayload("TEL", kind, 16034000000, "2023-09-30")
			}

			myPipeline := pipeline.New(fetcher, store, []string{"TEL"}, 8)
			summary, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.NumCompanies).To(Equal(1))
			Expect(summary.NumFailures).To(Equal(0))
			Expect(summary.NumRecords).To(Equal(int64(3)))
			Expect(store.synced).To(HaveKey("TEL"))
			Expect(store.companies["TEL"].Name).To(Equal("TE Connectivity"))
		})

		It("inserts nothing new when re-run against unchanged upstream data", func() {
			for _, kind := range data.StatementKinds {
				fetcher.setPayload("ST", kind, 4054000000, "2023-12-31")
			}

			myPipeline := pipeline.New(fetcher, store, []string{"ST"}, 8)

			first, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(first.NumRecords).To(Equal(int64(3)))

			second, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(second.NumRecords).To(BeZero())
		})

		It("keeps the first stored value when upstream data later changes", func() {
			fetcher.setPayload("DD", data.IncomeStatement, 100, "2023-12-31")

			myPipeline := pipeline.New(fetcher, store, []string{"DD"}, 8)
			_, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			// upstream restates the figure; the stored value must not move
			fetcher.setPayload("DD", data.IncomeStatement, 999, "2023-12-31")
			_, err = myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			key := fmt.Sprintf("%d/%s/2023-12-31/totalRevenue", store.companies["DD"].ID, data.IncomeStatement)
			Expect(store.records[key]).To(Equal(int64(100)))
		})

		It("leaves a company unsynced when one statement kind fails", func() {
			fetcher.setPayload("TEL", data.IncomeStatement, 1, "2023-09-30")
			fetcher.errors[fetchKey("TEL", data.BalanceSheet)] = &alphavantage.FetchError{
				Ticker: "TEL", Function: "BALANCE_SHEET", StatusCode: 503}
			fetcher.setPayload("DD", data.IncomeStatement, 2, "2023-12-31")

			myPipeline := pipeline.New(fetcher, store, []string{"TEL", "DD"}, 8)
			summary, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.NumCompanies).To(Equal(2))
			Expect(summary.NumFailures).To(Equal(1))
			Expect(store.synced).To(HaveKey("DD"))
			Expect(store.synced).NotTo(HaveKey("TEL"))
		})

		It("still stores the kinds that succeeded when another kind fails", func() {
			fetcher.setPayload("TEL", data.IncomeStatement, 1, "2023-09-30")
			fetcher.errors[fetchKey("TEL", data.CashFlow)] = &alphavantage.ThrottleError{
				Ticker: "TEL", Function: "CASH_FLOW"}

			myPipeline := pipeline.New(fetcher, store, []string{"TEL"}, 8)
			summary, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.NumRecords).To(Equal(int64(1)))
			Expect(summary.NumFailures).To(Equal(1))
		})

		It("retries an unsynced company on the next run", func() {
			fetcher.errors[fetchKey("TEL", data.BalanceSheet)] = &alphavantage.FetchError{
				Ticker: "TEL", Function: "BALANCE_SHEET", StatusCode: 500}

			myPipeline := pipeline.New(fetcher, store, []string{"TEL"}, 8)
			_, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(store.synced).To(BeEmpty())

			// upstream recovers
			delete(fetcher.errors, fetchKey("TEL", data.BalanceSheet))

			summary, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.NumFailures).To(BeZero())
			Expect(store.synced).To(HaveKey("TEL"))
		})

		It("fetches the overview only while the company has no name", func() {
			fetcher.overviews["ST"] = "Sensata Technologies"

			myPipeline := pipeline.New(fetcher, store, []string{"ST"}, 8)
			_, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.overviewHits["ST"]).To(Equal(1))
			Expect(store.companies["ST"].Name).To(Equal("Sensata Technologies"))

			_, err = myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(fetcher.overviewHits["ST"]).To(Equal(1))
		})

		It("caps a run at the configured batch size", func() {
			tickers := []string{"AAA", "BBB", "CCC", "DDD"}

			myPipeline := pipeline.New(fetcher, store, tickers, 2)
			summary, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.NumCompanies).To(Equal(2))
			Expect(store.markedOrder).To(Equal([]string{"AAA", "BBB"}))
		})

		It("cycles through the universe across successive runs", func() {
			tickers := []string{"AAA", "BBB", "CCC", "DDD"}
			myPipeline := pipeline.New(fetcher, store, tickers, 2)

			_, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			_, err = myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(store.markedOrder).To(Equal([]string{"AAA", "BBB", "CCC", "DDD"}))
		})

		It("stops between companies when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			myPipeline := pipeline.New(fetcher, store, []string{"AAA", "BBB"}, 8)
			summary, err := myPipeline.Run(ctx)

			Expect(err).To(MatchError(context.Canceled))
			Expect(summary.NumCompanies).To(BeZero())
			Expect(store.synced).To(BeEmpty())
		})

		It("counts a company as failed when records cannot be stored", func() {
			fetcher.setPayload("TEL", data.IncomeStatement, 1, "2023-09-30")
			store.upsertErr = fmt.Errorf("connection reset")

			myPipeline := pipeline.New(fetcher, store, []string{"TEL"}, 8)
			summary, err := myPipeline.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.NumFailures).To(Equal(1))
			Expect(store.synced).To(BeEmpty())
		})
	})
})
