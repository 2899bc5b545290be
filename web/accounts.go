package web

import (
	"net/http"
)

// AccountInfo represents basic information about a ledger account.
type AccountInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	OpenDate    string   `json:"openDate"`
	CloseDate   string   `json:"closeDate,omitempty"`
	Commodities []string `json:"commodities,omitempty"`
}

// AccountsResponse is the JSON response structure for the accounts endpoint.
type AccountsResponse struct {
	Accounts []AccountInfo `json:"accounts"`
}

// handleGetAccounts handles GET requests to /api/accounts.
// Returns all opened accounts, sorted alphabetically by name.
func (s *Server) handleGetAccounts(w http.ResponseWriter, r *http.Request) {
	ledgerAccounts := s.svc.Accounts()
	accounts := make([]AccountInfo, 0, len(ledgerAccounts))

	for _, account := range ledgerAccounts {
		info := AccountInfo{
			Name:        account.Name.String(),
			Type:        account.Type.String(),
			OpenDate:    account.OpenDate.String(),
			Commodities: account.Commodities,
		}
		if account.CloseDate != nil {
			info.CloseDate = account.CloseDate.String()
		}
		accounts = append(accounts, info)
	}

	writeJSONResponse(w, &AccountsResponse{Accounts: accounts})
}
