package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/robinvdvleuten/beancount-mcp/service"
)

const (
	accountsURI = "beancount://accounts"
	filesURI    = "beancount://files"
)

// AccountsResource defines the readable account list.
func AccountsResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "accounts",
		Title:       "Accounts",
		Description: "Opened accounts of the ledger sorted by name",
		MIMEType:    "application/json",
		URI:         accountsURI,
	}
}

// AccountsResourceHandler returns the accounts of the current snapshot.
func AccountsResourceHandler(svc *service.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return jsonResource(accountsURI, AccountsResult{Accounts: accountEntries(svc.Accounts())})
	}
}

// FilesPayload lists ledger files relative to the ledger directory.
type FilesPayload struct {
	Root  string   `json:"root"`
	Files []string `json:"files"`
}

// FilesResource defines the readable list of ledger files.
func FilesResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "files",
		Title:       "Ledger Files",
		Description: "Beancount files next to the main ledger file, relative to its directory",
		MIMEType:    "application/json",
		URI:         filesURI,
	}
}

// FilesResourceHandler lists the ledger files.
func FilesResourceHandler(svc *service.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		files, err := svc.Files()
		if err != nil {
			return nil, fmt.Errorf("list ledger files: %w", err)
		}
		if files == nil {
			files = []string{}
		}
		return jsonResource(filesURI, FilesPayload{Root: filepath.Dir(svc.Filename()), Files: files})
	}
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
