// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes sync control and mirrored files for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/noteservice"
	"github.com/starford/marginalia/internal/syncer"
)

const contractURI = "marginalia://file-format"

// SyncRunner is the part of the sync orchestrator the MCP tools drive.
type SyncRunner interface {
	Sync(ctx context.Context, opts syncer.Options) (*syncer.Result, error)
	Status() syncer.Status
}

// Server wraps the MCP server with sync and vault tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *noteservice.Service
	sync     SyncRunner
	contract string
}

// New creates a new MCP server with all tools registered. contract is served
// as the file format resource.
func New(svc *noteservice.Service, sync SyncRunner, version, contract string) *Server {
	s := &Server{svc: svc, sync: sync, contract: contract}

	s.mcp = server.NewMCPServer(
		"Marginalia",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Run a sync pass and wait for it to finish. Fails if a pass is already running."),
		mcp.WithBoolean("full", mcp.Description("Ignore the checkpoint and refetch the whole library")),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether a sync is running and how the last one ended."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("find_document",
		mcp.WithDescription("List the files that mirror a remote document, by its identity."),
		mcp.WithString("identity", mcp.Required(), mcp.Description("Tracking property value (the document URL)")),
	), s.findDocument)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a mirrored Markdown file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file (e.g. Readwise/Books/Title.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List indexed files, optionally under a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder prefix (empty for all)")),
	), s.listNotes)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "File Format",
			mcp.WithResourceDescription("Layout and frontmatter ownership of mirrored files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	full := req.GetBool("full", false)
	res, err := s.sync.Sync(ctx, syncer.Options{Full: full})
	if err != nil {
		if errors.Is(err, apperr.ErrSyncInProgress) {
			return mcp.NewToolResultError("a sync is already in progress"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return mcp.NewToolResultText(res.Report.String()), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.sync.Status().View(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) findDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no file mirrors %s", identity)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	if folder != "" && !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	items, _, err := s.svc.ListNotes(ctx, 500, 0, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     s.contract,
		},
	}, nil
}
