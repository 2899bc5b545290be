package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/formatter"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/service"
)

// QueryInput represents the MCP tool input for running a query.
type QueryInput struct {
	Query string `json:"query" jsonschema:"query such as SELECT account, sum(amount) FROM postings GROUP BY account"`
}

// QueryColumn describes one result column.
type QueryColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult represents the MCP tool output for a query.
type QueryResult struct {
	Columns   []QueryColumn `json:"columns"`
	Rows      [][]any       `json:"rows" jsonschema:"rows of cells; numbers are decimal strings and amounts are {number, commodity}"`
	Truncated bool          `json:"truncated" jsonschema:"true when rows beyond the row limit were dropped"`
	Version   uint64        `json:"version" jsonschema:"ledger version the query ran against"`
}

// QueryTool defines the MCP tool schema for running queries.
func QueryTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "beancount_query",
		Description: "Runs a read-only SQL-like query against the ledger. Tables are transactions, " +
			"postings, balances and prices. Supports WHERE, GROUP BY, ORDER BY, " +
			"LIMIT, DISTINCT and the aggregates sum, count, first, last, min and max.",
	}
}

// QueryHandler executes a query against the current snapshot.
func QueryHandler(svc *service.Service, logger *zap.Logger) mcp.ToolHandlerFor[QueryInput, QueryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryResult, error) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, QueryResult{}, fmt.Errorf("query is required")
		}

		result, err := svc.RunQuery(ctx, input.Query)
		if err != nil {
			logger.Debug("query failed", zap.String("query", input.Query), zap.Error(err))
			return nil, QueryResult{}, toolError(err)
		}

		output := QueryResult{
			Columns:   make([]QueryColumn, 0, len(result.Columns)),
			Rows:      make([][]any, 0, len(result.Rows)),
			Truncated: result.Truncated,
			Version:   result.Version,
		}
		for _, col := range result.Columns {
			output.Columns = append(output.Columns, QueryColumn{Name: col.Name, Type: col.Type.String()})
		}
		for _, row := range result.Rows {
			cells := make([]any, len(row))
			for i, v := range row {
				cells[i] = v.Native()
			}
			output.Rows = append(output.Rows, cells)
		}
		return nil, output, nil
	}
}

// GetTransactionInput represents the MCP tool input for a transaction lookup.
type GetTransactionInput struct {
	ID string `json:"tx_id" jsonschema:"transaction id as returned by a query or a submission"`
}

// GetTransactionResult represents the MCP tool output for a transaction lookup.
type GetTransactionResult struct {
	ID   string `json:"tx_id"`
	Date string `json:"date"`
	Text string `json:"text" jsonschema:"the transaction in beancount syntax"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// GetTransactionTool defines the MCP tool schema for transaction lookups.
func GetTransactionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "beancount_get_transaction",
		Description: "Returns a transaction by id in beancount syntax together with its location in the ledger files",
	}
}

// GetTransactionHandler looks up a transaction of the current snapshot.
func GetTransactionHandler(svc *service.Service) mcp.ToolHandlerFor[GetTransactionInput, GetTransactionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetTransactionInput) (*mcp.CallToolResult, GetTransactionResult, error) {
		id := strings.TrimSpace(input.ID)
		if id == "" {
			return nil, GetTransactionResult{}, fmt.Errorf("tx_id is required")
		}
		txn, ok := svc.Transaction(id)
		if !ok {
			return nil, GetTransactionResult{}, fmt.Errorf("transaction %s not found", id)
		}
		return nil, GetTransactionResult{
			ID:   txn.ID,
			Date: txn.Date().String(),
			Text: formatter.FormatTransaction(txn.Directive),
			File: txn.Directive.Pos.Filename,
			Line: txn.Directive.Pos.Line,
		}, nil
	}
}

// AccountsInput represents the MCP tool input for listing accounts.
type AccountsInput struct{}

// AccountEntry is one opened account.
type AccountEntry struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Open        string   `json:"open"`
	Close       string   `json:"close,omitempty"`
	Commodities []string `json:"commodities,omitempty" jsonschema:"allowed commodities; empty means any"`
}

// AccountsResult represents the MCP tool output for listing accounts.
type AccountsResult struct {
	Accounts []AccountEntry `json:"accounts"`
}

// AccountsTool defines the MCP tool schema for listing accounts.
func AccountsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "beancount_accounts",
		Description: "Lists every opened account sorted by name, with its open and close dates and allowed commodities",
	}
}

// AccountsHandler lists the accounts of the current snapshot.
func AccountsHandler(svc *service.Service) mcp.ToolHandlerFor[AccountsInput, AccountsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ AccountsInput) (*mcp.CallToolResult, AccountsResult, error) {
		return nil, AccountsResult{Accounts: accountEntries(svc.Accounts())}, nil
	}
}

func accountEntries(accounts []*ledger.Account) []AccountEntry {
	entries := make([]AccountEntry, 0, len(accounts))
	for _, account := range accounts {
		entry := AccountEntry{
			Name:        account.Name.String(),
			Type:        account.Type.String(),
			Open:        account.OpenDate.String(),
			Commodities: account.Commodities,
		}
		if account.CloseDate != nil {
			entry.Close = account.CloseDate.String()
		}
		entries = append(entries, entry)
	}
	return entries
}

// SubmitTransactionInput represents the MCP tool input for submitting a transaction.
// Exactly one of Transaction and Text is set.
type SubmitTransactionInput struct {
	Transaction *service.TransactionDraft `json:"transaction,omitempty" jsonschema:"the transaction as structured fields"`
	Text        string                    `json:"text,omitempty" jsonschema:"the transaction in beancount syntax, as an alternative to transaction"`
}

// SubmitTransactionTool defines the MCP tool schema for submitting transactions.
func SubmitTransactionTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "beancount_submit_transaction",
		Description: "Validates a transaction against the ledger and appends it to the ledger file. " +
			"The transaction must balance and every account must be open on its date. " +
			"Returns a confirmation id and the transaction id.",
	}
}

// SubmitTransactionHandler validates and appends a transaction.
func SubmitTransactionHandler(svc *service.Service, logger *zap.Logger) mcp.ToolHandlerFor[SubmitTransactionInput, service.Result] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SubmitTransactionInput) (*mcp.CallToolResult, service.Result, error) {
		var (
			result *service.Result
			err    error
		)
		switch {
		case input.Transaction != nil && strings.TrimSpace(input.Text) != "":
			return nil, service.Result{}, fmt.Errorf("set either transaction or text, not both")
		case input.Transaction != nil:
			result, err = svc.SubmitTransaction(ctx, input.Transaction)
		case strings.TrimSpace(input.Text) != "":
			result, err = svc.SubmitText(ctx, input.Text)
		default:
			return nil, service.Result{}, fmt.Errorf("transaction or text is required")
		}
		if err != nil {
			logger.Info("submission rejected", zap.String("kind", service.ErrorKind(err)), zap.Error(err))
			return nil, service.Result{}, toolError(err)
		}
		return nil, *result, nil
	}
}

// CurrentDateInput represents the MCP tool input for the current date.
type CurrentDateInput struct{}

// CurrentDateResult represents the MCP tool output for the current date.
type CurrentDateResult struct {
	Date    string `json:"date" jsonschema:"local date as YYYY-MM-DD"`
	Weekday string `json:"weekday"`
}

// CurrentDateTool defines the MCP tool schema for the current date.
func CurrentDateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "beancount_current_date",
		Description: "Returns today's local date in the format transactions use",
	}
}

// CurrentDateHandler reports the local date.
func CurrentDateHandler(now func() time.Time) mcp.ToolHandlerFor[CurrentDateInput, CurrentDateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ CurrentDateInput) (*mcp.CallToolResult, CurrentDateResult, error) {
		today := now()
		return nil, CurrentDateResult{Date: today.Format(time.DateOnly), Weekday: today.Weekday().String()}, nil
	}
}
