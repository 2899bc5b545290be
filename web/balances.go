package web

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
)

// BalancesResponse is the JSON response structure for the balances endpoint.
type BalancesResponse struct {
	Roots      []*BalanceNodeResponse `json:"roots"`
	Currencies []string               `json:"currencies"`
	StartDate  *string                `json:"startDate,omitempty"`
	EndDate    *string                `json:"endDate,omitempty"`
}

// BalanceNodeResponse represents a node in the balance tree for JSON serialization.
// Balance includes the balances of all descendants.
type BalanceNodeResponse struct {
	Name     string                 `json:"name"`
	Account  string                 `json:"account,omitempty"`
	Depth    int                    `json:"depth"`
	Balance  map[string]string      `json:"balance"`
	Children []*BalanceNodeResponse `json:"children,omitempty"`
}

var accountTypes = map[string]ledger.AccountType{
	"Assets":      ledger.AccountTypeAssets,
	"Liabilities": ledger.AccountTypeLiabilities,
	"Equity":      ledger.AccountTypeEquity,
	"Income":      ledger.AccountTypeIncome,
	"Expenses":    ledger.AccountTypeExpenses,
}

// endOfTime is later than any ledger date.
var endOfTime = ast.NewDateFromTime(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))

// handleGetBalances handles GET requests to /api/balances.
//
// Query parameters:
//   - types: Comma-separated account types (Assets,Liabilities,Equity,Income,Expenses).
//     If omitted, returns all types (trial balance).
//   - startDate: Start date in YYYY-MM-DD format.
//   - endDate: End date in YYYY-MM-DD format.
//
// Date semantics:
//   - Both omitted: Current inventory state (all postings).
//   - startDate == endDate: Point-in-time balance at the end of that day (balance sheet).
//   - startDate < endDate: Change over the period, both days included (income statement).
//
// Examples:
//   - GET /api/balances - Trial balance (all types, current state)
//   - GET /api/balances?types=Assets,Liabilities,Equity&startDate=2024-01-31&endDate=2024-01-31 - Balance sheet
//   - GET /api/balances?types=Income,Expenses&startDate=2024-01-01&endDate=2024-01-31 - Income statement
func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	// Parse account types
	var types map[ledger.AccountType]bool
	if typesParam := r.URL.Query().Get("types"); typesParam != "" {
		types = make(map[ledger.AccountType]bool)
		for _, t := range strings.Split(typesParam, ",") {
			accountType, ok := accountTypes[strings.TrimSpace(t)]
			if !ok {
				writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "invalid account type: "+t)
				return
			}
			types[accountType] = true
		}
	}

	// Parse dates
	var startDate, endDate *ast.Date
	if startParam := r.URL.Query().Get("startDate"); startParam != "" {
		d, err := ast.ParseDate(startParam)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "invalid startDate format (expected YYYY-MM-DD): "+startParam)
			return
		}
		startDate = &d
	}
	if endParam := r.URL.Query().Get("endDate"); endParam != "" {
		d, err := ast.ParseDate(endParam)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "invalid endDate format (expected YYYY-MM-DD): "+endParam)
			return
		}
		endDate = &d
	}

	// Validate date consistency
	if (startDate == nil) != (endDate == nil) {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "both startDate and endDate must be provided together, or neither")
		return
	}
	if startDate != nil && startDate.After(endDate.Time) {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "startDate must not be after endDate")
		return
	}

	response := buildBalanceTree(s.svc.Snapshot(), types, startDate, endDate)
	writeJSONResponse(w, response)
}

// periodBalance returns the balance of account at the end of endDate, or its change
// from the start of startDate when the dates differ.
func periodBalance(l *ledger.Ledger, account ast.Account, startDate, endDate *ast.Date) *ledger.Inventory {
	if endDate == nil {
		return l.GetBalance(account, endOfTime)
	}
	inv := l.GetBalance(account, *endDate)
	if startDate.Equal(endDate.Time) {
		return inv
	}

	before := ast.NewDateFromTime(startDate.AddDate(0, 0, -1))
	change := ledger.NewInventory()
	for _, amount := range inv.Amounts() {
		change.Add(amount.Commodity, amount.Number)
	}
	for _, amount := range l.GetBalance(account, before).Amounts() {
		change.Add(amount.Commodity, amount.Number.Neg())
	}
	return change
}

// balanceNode accumulates the balance of an account subtree.
type balanceNode struct {
	name     string
	account  string
	depth    int
	balance  *ledger.Inventory
	children map[string]*balanceNode
}

func newBalanceNode(name, account string, depth int) *balanceNode {
	return &balanceNode{
		name:     name,
		account:  account,
		depth:    depth,
		balance:  ledger.NewInventory(),
		children: make(map[string]*balanceNode),
	}
}

// buildBalanceTree groups the non-empty balances of the selected account types into
// a tree keyed by account segment.
func buildBalanceTree(l *ledger.Ledger, types map[ledger.AccountType]bool, startDate, endDate *ast.Date) *BalancesResponse {
	root := newBalanceNode("", "", -1)
	currencies := make(map[string]bool)

	for _, account := range l.Accounts() {
		if types != nil && !types[account.Type] {
			continue
		}
		inv := periodBalance(l, account.Name, startDate, endDate)
		if inv.IsEmpty() {
			continue
		}

		node := root
		segments := strings.Split(account.Name.String(), ":")
		for i, segment := range segments {
			child, ok := node.children[segment]
			if !ok {
				child = newBalanceNode(segment, strings.Join(segments[:i+1], ":"), i)
				node.children[segment] = child
			}
			for _, amount := range inv.Amounts() {
				child.balance.Add(amount.Commodity, amount.Number)
			}
			node = child
		}
		for _, commodity := range inv.Commodities() {
			currencies[commodity] = true
		}
	}

	response := &BalancesResponse{
		Roots:      convertBalanceNodes(root.children),
		Currencies: make([]string, 0, len(currencies)),
	}
	for commodity := range currencies {
		response.Currencies = append(response.Currencies, commodity)
	}
	sort.Strings(response.Currencies)

	if startDate != nil {
		start, end := startDate.String(), endDate.String()
		response.StartDate = &start
		response.EndDate = &end
	}
	return response
}

// convertBalanceNodes converts nodes to their response form sorted by name.
func convertBalanceNodes(nodes map[string]*balanceNode) []*BalanceNodeResponse {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	converted := make([]*BalanceNodeResponse, 0, len(names))
	for _, name := range names {
		node := nodes[name]
		response := &BalanceNodeResponse{
			Name:    node.name,
			Account: node.account,
			Depth:   node.depth,
			Balance: make(map[string]string),
		}
		for _, amount := range node.balance.Amounts() {
			response.Balance[amount.Commodity] = ast.FormatNumber(amount.Number)
		}
		if len(node.children) > 0 {
			response.Children = convertBalanceNodes(node.children)
		}
		converted = append(converted, response)
	}
	return converted
}
