package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/query"
	"github.com/robinvdvleuten/beancount-mcp/service"
)

const ledgerText = `2024-01-01 open Assets:Bank USD
2024-01-01 open Expenses:Food USD

2024-01-10 * "Grocer" "Weekly shop" #food
  Expenses:Food   5.00 USD
  Assets:Bank    -5.00 USD

2024-01-17 * "Grocer" "Weekly shop" #food
  Expenses:Food  10.00 USD
  Assets:Bank   -10.00 USD
`

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.beancount")
	assert.NoError(t, os.WriteFile(path, []byte(ledgerText), 0o644))
	svc, err := service.New(context.Background(), path)
	assert.NoError(t, err)
	return svc
}

// connect serves svc over in-memory transports and returns a connected client.
func connect(t *testing.T, svc *service.Service) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := New(svc, "test", WithClock(func() time.Time {
		return time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)
	}))
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	assert.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
		_ = serverSession.Wait()
	})
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	assert.NoError(t, err)
	return result
}

func decodeStructuredContent[T any](t *testing.T, value any) T {
	t.Helper()
	data, err := json.Marshal(value)
	assert.NoError(t, err)
	var output T
	assert.NoError(t, json.Unmarshal(data, &output))
	return output
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	assert.True(t, result.IsError)
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	session := connect(t, newTestService(t))

	tools, err := session.ListTools(context.Background(), nil)
	assert.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"beancount_accounts",
		"beancount_current_date",
		"beancount_get_transaction",
		"beancount_query",
		"beancount_submit_transaction",
	}, names)
}

func TestQueryToolDescription(t *testing.T) {
	description := QueryTool().Description
	for _, kind := range query.Kinds() {
		assert.Contains(t, description, kind)
	}
	for _, name := range query.Aggregates() {
		assert.Contains(t, description, name)
	}
	assert.NotContains(t, description, "accounts")
}

func TestQueryTool(t *testing.T) {
	session := connect(t, newTestService(t))

	result := callTool(t, session, "beancount_query", map[string]any{
		"query": "SELECT account, sum(amount) FROM postings WHERE account = 'Expenses:Food' GROUP BY account",
	})
	assert.False(t, result.IsError)

	output := decodeStructuredContent[QueryResult](t, result.StructuredContent)
	assert.Equal(t, []QueryColumn{{Name: "account", Type: "string"}, {Name: "sum(amount)", Type: "amount"}}, output.Columns)
	assert.Equal(t, [][]any{{"Expenses:Food", map[string]any{"number": "15.00", "commodity": "USD"}}}, output.Rows)
	assert.False(t, output.Truncated)
	assert.Equal(t, uint64(1), output.Version)
}

func TestQueryToolErrors(t *testing.T) {
	session := connect(t, newTestService(t))

	tests := []struct {
		name    string
		query   string
		message string
	}{
		{"Empty", "   ", "query is required"},
		{"Syntax", "SELECT FROM postings", "query error"},
		{"UnknownColumn", "SELECT payee_name FROM postings", "query error"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := callTool(t, session, "beancount_query", map[string]any{"query": test.query})
			assert.Contains(t, errorText(t, result), test.message)
		})
	}
}

func TestSubmitTransactionTool(t *testing.T) {
	svc := newTestService(t)
	session := connect(t, svc)

	result := callTool(t, session, "beancount_submit_transaction", map[string]any{
		"transaction": map[string]any{
			"date":      "2024-02-01",
			"payee":     "Grocer",
			"narration": "Groceries",
			"postings": []any{
				map[string]any{"account": "Expenses:Food", "amount": "7.25", "commodity": "USD"},
				map[string]any{"account": "Assets:Bank"},
			},
		},
	})
	assert.False(t, result.IsError)

	output := decodeStructuredContent[service.Result](t, result.StructuredContent)
	assert.NotZero(t, output.ConfirmationID)
	assert.Equal(t, uint64(2), output.Version)

	data, err := os.ReadFile(svc.Filename())
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"+output.Text))

	lookup := callTool(t, session, "beancount_get_transaction", map[string]any{"tx_id": output.TransactionID})
	assert.False(t, lookup.IsError)
	txn := decodeStructuredContent[GetTransactionResult](t, lookup.StructuredContent)
	assert.Equal(t, output.Text, txn.Text)
	assert.Equal(t, "2024-02-01", txn.Date)
	assert.Equal(t, svc.Filename(), txn.File)
	assert.Equal(t, strings.Count(ledgerText, "\n")+2, txn.Line)
}

func TestSubmitTransactionToolText(t *testing.T) {
	svc := newTestService(t)
	session := connect(t, svc)

	result := callTool(t, session, "beancount_submit_transaction", map[string]any{
		"text": "2024-02-01 * \"Grocer\" \"Groceries\"\n  Expenses:Food  3.00 USD\n  Assets:Bank\n",
	})
	assert.False(t, result.IsError)
	assert.Equal(t, "-18.00 USD", svc.Snapshot().GetBalance("Assets:Bank", ast.MustParseDate("2024-12-31")).String())
}

func TestSubmitTransactionToolRejected(t *testing.T) {
	svc := newTestService(t)
	session := connect(t, svc)

	tests := []struct {
		name    string
		args    map[string]any
		message string
	}{
		{"Missing", map[string]any{}, "transaction or text is required"},
		{"Unbalanced", map[string]any{"text": "2024-02-01 * \"Grocer\"\n  Expenses:Food  3.00 USD\n  Assets:Bank  -2.00 USD\n"}, "balance error"},
		{"ClosedAccount", map[string]any{"text": "2023-12-01 * \"Grocer\"\n  Expenses:Food  3.00 USD\n  Assets:Bank\n"}, "lifecycle error"},
		{"NotATransaction", map[string]any{"text": "2024-02-01 open Assets:Cash\n"}, "structural error"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := callTool(t, session, "beancount_submit_transaction", test.args)
			assert.Contains(t, errorText(t, result), test.message)
		})
	}

	data, err := os.ReadFile(svc.Filename())
	assert.NoError(t, err)
	assert.Equal(t, ledgerText, string(data))
	assert.Equal(t, uint64(1), svc.Version())
}

func TestSubmitTransactionHandlerBothInputs(t *testing.T) {
	handler := SubmitTransactionHandler(newTestService(t), zap.NewNop())

	_, _, err := handler(context.Background(), nil, SubmitTransactionInput{
		Transaction: &service.TransactionDraft{Date: "2024-02-01"},
		Text:        "2024-02-01 *",
	})
	assert.EqualError(t, err, "set either transaction or text, not both")
}

func TestGetTransactionToolNotFound(t *testing.T) {
	session := connect(t, newTestService(t))

	result := callTool(t, session, "beancount_get_transaction", map[string]any{"tx_id": "missing"})
	assert.Contains(t, errorText(t, result), "transaction missing not found")
}

func TestAccountsTool(t *testing.T) {
	session := connect(t, newTestService(t))

	result := callTool(t, session, "beancount_accounts", map[string]any{})
	assert.False(t, result.IsError)

	output := decodeStructuredContent[AccountsResult](t, result.StructuredContent)
	assert.Equal(t, []AccountEntry{
		{Name: "Assets:Bank", Type: "Assets", Open: "2024-01-01", Commodities: []string{"USD"}},
		{Name: "Expenses:Food", Type: "Expenses", Open: "2024-01-01", Commodities: []string{"USD"}},
	}, output.Accounts)
}

func TestCurrentDateTool(t *testing.T) {
	session := connect(t, newTestService(t))

	result := callTool(t, session, "beancount_current_date", map[string]any{})
	assert.False(t, result.IsError)

	output := decodeStructuredContent[CurrentDateResult](t, result.StructuredContent)
	assert.Equal(t, CurrentDateResult{Date: "2024-03-15", Weekday: "Friday"}, output)
}

func TestResources(t *testing.T) {
	svc := newTestService(t)
	session := connect(t, svc)
	ctx := context.Background()

	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "beancount://accounts"})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(res.Contents))
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	accounts := decodeStructuredContent[AccountsResult](t, json.RawMessage(res.Contents[0].Text))
	assert.Equal(t, 2, len(accounts.Accounts))

	dir := filepath.Dir(svc.Filename())
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "2024"), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "2024", "jan.bean"), nil, 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	res, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "beancount://files"})
	assert.NoError(t, err)
	files := decodeStructuredContent[FilesPayload](t, json.RawMessage(res.Contents[0].Text))
	assert.Equal(t, FilesPayload{Root: dir, Files: []string{"2024/jan.bean", "main.beancount"}}, files)
}
