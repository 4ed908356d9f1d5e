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
package alphavantage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finlore/fsdata/alphavantage"
	"github.com/finlore/fsdata/data"
)

const throttleBody = `{"Information": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute and 500 calls per day."}`

// recordingServer captures the query parameters of every request and replays
// a scripted sequence of responses
type recordingServer struct {
	mu        sync.Mutex
	requests  []*http.Request
	responses []scriptedResponse
	server    *httptest.Server
}

type scriptedResponse struct {
	status int
	body   string
}

func newRecordingServer(responses ...scriptedResponse) *recordingServer {
	rs := &recordingServer{responses: responses}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		idx := len(rs.requests)
		rs.requests = append(rs.requests, r.Clone(context.Background()))
		rs.mu.Unlock()

		resp := rs.responses[len(rs.responses)-1]
		if idx < len(rs.responses) {
			resp = rs.responses[idx]
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	return rs
}

func (rs *recordingServer) numRequests() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.requests)
}

func (rs *recordingServer) request(idx int) *http.Request {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.requests[idx]
}

var _ = Describe("Client", func() {
	var server *recordingServer

	newClient := func() *alphavantage.Client {
		return alphavantage.New("test-key", time.Millisecond, time.Millisecond).
			SetBaseURL(server.server.URL)
	}

	AfterEach(func() {
		if server != nil {
			server.server.Close()
			server = nil
		}
	})

	Describe("FetchStatement", func() {
		It("sends the function, symbol and api key as query parameters", func() {
			server = newRecordingServer(scriptedResponse{http.StatusOK, `{"annualReports": []}`})

			_, err := newClient().FetchStatement(context.Background(), "TEL", data.BalanceSheet)
			Expect(err).NotTo(HaveOccurred())

			Expect(server.numRequests()).To(Equal(1))
			query := server.request(0).URL.Query()
			Expect(query.Get("function")).To(Equal("BALANCE_SHEET"))
			Expect(query.Get("symbol")).To(Equal("TEL"))
			Expect(query.Get("apikey")).To(Equal("test-key"))
		})

		It("returns the raw payload untouched", func() {
			payload := `{"symbol": "TEL", "annualReports": [{"fiscalDateEnding": "2023-09-30"}]}`
			server = newRecordingServer(scriptedResponse{http.StatusOK, payload})

			body, err := newClient().FetchStatement(context.Background(), "TEL", data.IncomeStatement)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(payload))
		})

		It("retries exactly once after a throttle signal", func() {
			server = newRecordingServer(
				scriptedResponse{http.StatusOK, throttleBody},
				scriptedResponse{http.StatusOK, `{"annualReports": []}`},
			)

			body, err := newClient().FetchStatement(context.Background(), "ST", data.CashFlow)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"annualReports": []}`))
			Expect(server.numRequests()).To(Equal(2))
		})

		It("gives up after a second consecutive throttle signal", func() {
			server = newRecordingServer(
				scriptedResponse{http.StatusOK, throttleBody},
				scriptedResponse{http.StatusOK, throttleBody},
			)

			_, err := newClient().FetchStatement(context.Background(), "ST", data.CashFlow)

			var throttleErr *alphavantage.ThrottleError
			Expect(err).To(BeAssignableToTypeOf(throttleErr))
			throttleErr = err.(*alphavantage.ThrottleError)
			Expect(throttleErr.Ticker).To(Equal("ST"))
			Expect(throttleErr.Function).To(Equal("CASH_FLOW"))
			Expect(throttleErr.Message).To(ContainSubstring("API call frequency"))
			Expect(server.numRequests()).To(Equal(2))
		})

		It("does not treat other informational bodies as throttling", func() {
			server = newRecordingServer(scriptedResponse{http.StatusOK, `{"Information": "premium endpoint"}`})

			body, err := newClient().FetchStatement(context.Background(), "DD", data.BalanceSheet)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("premium endpoint"))
			Expect(server.numRequests()).To(Equal(1))
		})

		It("surfaces a non-success status as a FetchError", func() {
			server = newRecordingServer(scriptedResponse{http.StatusServiceUnavailable, "unavailable"})

			_, err := newClient().FetchStatement(context.Background(), "DD", data.IncomeStatement)

			var fetchErr *alphavantage.FetchError
			Expect(err).To(BeAssignableToTypeOf(fetchErr))
			fetchErr = err.(*alphavantage.FetchError)
			Expect(fetchErr.Ticker).To(Equal("DD"))
			Expect(fetchErr.Function).To(Equal("INCOME_STATEMENT"))
			Expect(fetchErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(server.numRequests()).To(Equal(1))
		})

		It("stops when the context is cancelled", func() {
			server = newRecordingServer(scriptedResponse{http.StatusOK, `{}`})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := newClient().FetchStatement(ctx, "DD", data.IncomeStatement)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FetchCompanyOverview", func() {
		It("decodes the company metadata", func() {
			server = newRecordingServer(scriptedResponse{http.StatusOK,
				`{"Symbol": "TEL", "Name": "TE Connectivity", "Sector": "Technology", "Industry": "Electronic Components"}`})

			overview, err := newClient().FetchCompanyOverview(context.Background(), "TEL")
			Expect(err).NotTo(HaveOccurred())
			Expect(overview.Ticker).To(Equal("TEL"))
			Expect(overview.Name).To(Equal("TE Connectivity"))
			Expect(overview.Sector).To(Equal("Technology"))
		})

		It("falls back to the ticker when no name is returned", func() {
			server = newRecordingServer(scriptedResponse{http.StatusOK, `{}`})

			overview, err := newClient().FetchCompanyOverview(context.Background(), "XYZ")
			Expect(err).NotTo(HaveOccurred())
			Expect(overview.Name).To(Equal("XYZ"))
			Expect(overview.Ticker).To(Equal("XYZ"))
		})
	})
})
