package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecthomas/assert/v2"
)

const balancesLedger = `
2024-01-01 open Assets:Checking USD
2024-01-01 open Assets:Savings USD
2024-01-01 open Liabilities:CreditCard USD
2024-01-01 open Equity:Opening USD
2024-01-01 open Income:Salary USD
2024-01-01 open Expenses:Food USD

2024-01-15 * "Opening balance"
  Assets:Checking  1000.00 USD
  Equity:Opening

2024-01-20 * "Transfer to savings"
  Assets:Checking  -200.00 USD
  Assets:Savings    200.00 USD

2024-02-01 * "Salary"
  Assets:Checking  3000.00 USD
  Income:Salary

2024-02-15 * "Groceries"
  Expenses:Food     150.00 USD
  Assets:Checking
`

func getBalances(t *testing.T, router http.Handler, query string) *BalancesResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/balances"+query, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response BalancesResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	return &response
}

func rootNames(response *BalancesResponse) []string {
	names := make([]string, len(response.Roots))
	for i, root := range response.Roots {
		names[i] = root.Name
	}
	return names
}

func TestAPIBalances(t *testing.T) {
	_, router := newTestServer(t, balancesLedger)

	t.Run("TrialBalance", func(t *testing.T) {
		response := getBalances(t, router, "")

		// Liabilities has no activity
		assert.Equal(t, []string{"Assets", "Equity", "Expenses", "Income"}, rootNames(response))
		assert.Equal(t, []string{"USD"}, response.Currencies)
		assert.Equal(t, (*string)(nil), response.StartDate)
		assert.Equal(t, (*string)(nil), response.EndDate)

		assets := response.Roots[0]
		assert.Equal(t, map[string]string{"USD": "3850.00"}, assets.Balance)
		assert.Equal(t, 0, assets.Depth)
		assert.Equal(t, 2, len(assets.Children))
		assert.Equal(t, "Checking", assets.Children[0].Name)
		assert.Equal(t, "Assets:Checking", assets.Children[0].Account)
		assert.Equal(t, 1, assets.Children[0].Depth)
		assert.Equal(t, map[string]string{"USD": "3650.00"}, assets.Children[0].Balance)
	})

	t.Run("FilterByTypes", func(t *testing.T) {
		response := getBalances(t, router, "?types=Assets,Liabilities")
		assert.Equal(t, []string{"Assets"}, rootNames(response))
	})

	t.Run("PointInTimeBalance", func(t *testing.T) {
		response := getBalances(t, router, "?types=Assets&startDate=2024-01-31&endDate=2024-01-31")

		assert.Equal(t, "2024-01-31", *response.StartDate)
		assert.Equal(t, "2024-01-31", *response.EndDate)

		// Only the opening balance and the transfer happened by then.
		assets := response.Roots[0]
		assert.Equal(t, map[string]string{"USD": "1000.00"}, assets.Balance)
		assert.Equal(t, map[string]string{"USD": "800.00"}, assets.Children[0].Balance)
		assert.Equal(t, map[string]string{"USD": "200.00"}, assets.Children[1].Balance)
	})

	t.Run("PeriodBalance", func(t *testing.T) {
		response := getBalances(t, router, "?types=Income,Expenses&startDate=2024-02-01&endDate=2024-02-28")

		assert.Equal(t, []string{"Expenses", "Income"}, rootNames(response))
		assert.Equal(t, map[string]string{"USD": "150.00"}, response.Roots[0].Balance)
		assert.Equal(t, map[string]string{"USD": "-3000.00"}, response.Roots[1].Balance)
	})

	t.Run("PeriodWithoutActivity", func(t *testing.T) {
		response := getBalances(t, router, "?types=Income&startDate=2024-03-01&endDate=2024-03-31")
		assert.Equal(t, 0, len(response.Roots))
		assert.Equal(t, []string{}, response.Currencies)
	})
}

func TestAPIBalancesInvalidParameters(t *testing.T) {
	_, router := newTestServer(t, balancesLedger)

	tests := []struct {
		name    string
		query   string
		message string
	}{
		{"UnknownType", "?types=Assets,Stuff", "invalid account type: Stuff"},
		{"BadStartDate", "?startDate=31-01-2024&endDate=2024-01-31", "invalid startDate format"},
		{"BadEndDate", "?startDate=2024-01-31&endDate=tomorrow", "invalid endDate format"},
		{"OnlyStartDate", "?startDate=2024-01-31", "both startDate and endDate"},
		{"StartAfterEnd", "?startDate=2024-02-01&endDate=2024-01-01", "startDate must not be after endDate"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/balances"+test.query, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), test.message)
		})
	}
}
