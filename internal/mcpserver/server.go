// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ehwaz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ehwaz/internal/linkservice"
)

// Server wraps the MCP server with Ehwaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all Ehwaz tools registered.
func New(svc *linkservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ehwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all documents in the workspace with their paths and stamps."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Load a document and return its objects and link fields as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative document path (e.g. parts/bracket.yaml)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_backlinks",
		mcp.WithDescription("Find all link fields that reference the specified document or object. "+
			"Omit the object name to match any object in the document."),
		mcp.WithString("doc", mcp.Required(), mcp.Description("Target document path")),
		mcp.WithString("object", mcp.Description("Optional target object name (empty matches any)")),
	), s.listBacklinks)

	s.mcp.AddTool(mcp.NewTool("find_broken_links",
		mcp.WithDescription("List cross-document references whose target document is missing from the workspace."),
	), s.findBrokenLinks)

	s.mcp.AddTool(mcp.NewTool("list_pending_links",
		mcp.WithDescription("List cross-document references waiting for their target document to load."),
	), s.listPendingLinks)

	s.mcp.AddTool(mcp.NewTool("rename_label",
		mcp.WithDescription("Change the display label of an object. Link paths that address the "+
			"object by label are rewritten to the new label automatically."),
		mcp.WithString("doc", mcp.Required(), mcp.Description("Document path containing the object")),
		mcp.WithString("object", mcp.Required(), mcp.Description("Internal object name")),
		mcp.WithString("label", mcp.Required(), mcp.Description("New display label")),
	), s.renameLabel)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the canonical Ehwaz document format contract. "+
			"Call this before creating or editing document files to ensure correct structure."),
	), s.getDocumentContract)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("ehwaz://document-format", "Document Format Contract",
			mcp.WithResourceDescription("Canonical YAML document format that all documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
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

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, m := range metas {
		lines = append(lines, fmt.Sprintf("%s\t%s", m.Path, m.Stamp))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("doc")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	obj := ""
	if o, oErr := req.RequireString("object"); oErr == nil {
		obj = o
	}
	bl, err := s.svc.Backlinks(ctx, doc, obj)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	var lines []string
	for _, b := range bl {
		lines = append(lines, fmt.Sprintf("%s#%s.%s", b.SourceDoc, b.SourceObj, b.Field))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) findBrokenLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	broken, err := s.svc.BrokenLinks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(broken) == 0 {
		return mcp.NewToolResultText("no broken links"), nil
	}
	out, _ := json.MarshalIndent(broken, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPendingLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := s.svc.PendingLinks(ctx)
	if len(pending) == 0 {
		return mcp.NewToolResultText("no pending links"), nil
	}
	out, _ := json.MarshalIndent(pending, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) renameLabel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("doc")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	obj, err := req.RequireString("object")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.RenameLabel(ctx, doc, obj, label); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("relabeled: %s#%s -> %q", doc, obj, label)), nil
}

func (s *Server) getDocumentContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ehwaz://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
