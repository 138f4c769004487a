// Package mcpadapter exposes the session lifecycle as Model Context Protocol
// tools so a local agent can drive admission, processing and questions.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
	"github.com/kirillkom/pdfqa-gateway/internal/core/ports"
)

const (
	ServerName    = "pdfqa-gateway"
	ServerVersion = "1.0.0"
)

type Tools struct {
	lifecycle ports.SessionLifecycle
}

func NewTools(lifecycle ports.SessionLifecycle) *Tools {
	return &Tools{lifecycle: lifecycle}
}

// NewServer builds an MCP server with every lifecycle tool registered.
func NewServer(lifecycle ports.SessionLifecycle) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	NewTools(lifecycle).Register(s)
	return s
}

func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("session_status",
		mcp.WithDescription("Report the lifecycle state and the files admitted to the current session."),
	), t.sessionStatus)

	s.AddTool(mcp.NewTool("admit_file",
		mcp.WithDescription("Admit a local PDF file into the session. Only allowed before documents are processed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute or working-directory relative path of a PDF file.")),
	), t.admitFile)

	s.AddTool(mcp.NewTool("process_documents",
		mcp.WithDescription("Send every admitted file to the backend for indexing."),
	), t.processDocuments)

	s.AddTool(mcp.NewTool("ask_question",
		mcp.WithDescription("Ask a question about the processed documents."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question text, 3 to 1000 characters.")),
	), t.askQuestion)

	s.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the files currently stored in the upload directory."),
	), t.listFiles)

	s.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents the backend has indexed."),
	), t.listDocuments)

	s.AddTool(mcp.NewTool("cleanup",
		mcp.WithDescription("Clear backend state, delete uploaded files and return the session to empty."),
		mcp.WithArray("paths",
			mcp.Description("Optional subset of uploaded files to delete. All files are deleted when omitted."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), t.cleanup)
}

type statusPayload struct {
	State    domain.LifecycleState `json:"state"`
	Admitted []domain.UploadedFile `json:"admitted"`
}

func (t *Tools) sessionStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(statusPayload{State: t.lifecycle.State(), Admitted: t.lifecycle.Admitted()})
}

func (t *Tools) admitFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	file, err := os.Open(strings.TrimSpace(path))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open %s: %v", path, err)), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stat %s: %v", path, err)), nil
	}
	if info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("%s is a directory", path)), nil
	}

	candidate := domain.UploadCandidate{
		Name:        filepath.Base(path),
		ContentType: contentTypeFor(path),
		Size:        info.Size(),
		Body:        file,
	}
	return toolResult(t.lifecycle.AdmitFiles(ctx, []domain.UploadCandidate{candidate}))
}

func (t *Tools) processDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.lifecycle.ProcessAdmitted(ctx))
}

func (t *Tools) askQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(t.lifecycle.AskQuestion(ctx, question))
}

func (t *Tools) listFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.lifecycle.ListFiles(ctx))
}

func (t *Tools) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.lifecycle.ListDocuments(ctx))
}

func (t *Tools) cleanup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := domain.CleanupScope{Paths: req.GetStringSlice("paths", nil)}
	return toolResult(t.lifecycle.Cleanup(ctx, scope))
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// toolResult renders a failed Result as a tool error carrying the error kind,
// so the calling agent sees the failure without the protocol call failing.
func toolResult[T any](res domain.Result[T]) (*mcp.CallToolResult, error) {
	if !res.OK() {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.Kind(), res.Message())), nil
	}
	return jsonResult(res.Value())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
