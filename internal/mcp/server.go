package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/autofill"
	"github.com/a3tai/redcap-pdf-autofill/internal/config"
	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/acroform"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/security"
)

const (
	shutdownTimeout    = 5 * time.Second
	maxListedTemplates = 200
)

// Filler runs fills and previews for the tool handlers
type Filler interface {
	Fill(ctx context.Context, req autofill.Request) (*autofill.Result, error)
	Preview(ctx context.Context, req autofill.Request) (*autofill.Result, error)
}

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	filler    Filler
	paths     *security.PathValidator
	validator *pdf.Validator
	mcpServer *server.MCPServer
	logger    *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, filler Filler, logger *zap.Logger) (*Server, error) {
	if filler == nil {
		return nil, errors.New("filler cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	paths, err := security.NewPathValidator(cfg.PDFDirectory)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // the tool set is fixed
	)

	s := &Server{
		config:    cfg,
		filler:    filler,
		paths:     paths,
		validator: pdf.NewValidator(cfg.MaxFileSize),
		mcpServer: mcpServer,
		logger:    logger,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	fillTool := mcp.NewTool(
		"redcap_fill_pdf",
		mcp.WithDescription("Fill a PDF form template with one REDCap record and write the filled copy"),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Unique ID of the REDCap record"),
		),
		mcp.WithString("template",
			mcp.Required(),
			mcp.Description("Template PDF, relative to the server directory"),
		),
		mcp.WithString("output",
			mcp.Description("Output PDF, relative to the server directory (generated when empty)"),
		),
		mcp.WithString("record_variable",
			mcp.Description("Variable that identifies records (default record_id)"),
		),
	)
	s.mcpServer.AddTool(fillTool, s.handleFillPDF)

	previewTool := mcp.NewTool(
		"redcap_preview_fill",
		mcp.WithDescription("Show which values a REDCap record would write into a PDF template, without writing anything"),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Unique ID of the REDCap record"),
		),
		mcp.WithString("template",
			mcp.Required(),
			mcp.Description("Template PDF, relative to the server directory"),
		),
		mcp.WithString("record_variable",
			mcp.Description("Variable that identifies records (default record_id)"),
		),
	)
	s.mcpServer.AddTool(previewTool, s.handlePreviewFill)

	fieldsTool := mcp.NewTool(
		"pdf_form_fields",
		mcp.WithDescription("List the fillable fields of a PDF form with their kinds and options"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF file, relative to the server directory"),
		),
	)
	s.mcpServer.AddTool(fieldsTool, s.handleFormFields)

	validateTool := mcp.NewTool(
		"pdf_validate_file",
		mcp.WithDescription("Validate if a file is a readable PDF"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF file, relative to the server directory"),
		),
	)
	s.mcpServer.AddTool(validateTool, s.handleValidateFile)

	listTool := mcp.NewTool(
		"pdf_list_templates",
		mcp.WithDescription("List PDF templates under the server directory"),
		mcp.WithString("query",
			mcp.Description("Optional case-insensitive filter on the file name"),
		),
	)
	s.mcpServer.AddTool(listTool, s.handleListTemplates)
}

// Handler functions
func (s *Server) handleFillPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.fillRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	output := request.GetString("output", "")
	if output != "" {
		if req.OutputPath, err = s.paths.Resolve(output); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	result, err := s.filler.Fill(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.paths.ValidatePath(result.OutputPath); err != nil {
		s.logger.Warn("Output written outside the server directory", zap.String("output", result.OutputPath))
	}

	return mcp.NewToolResultText(s.formatFillResult(result)), nil
}

func (s *Server) handlePreviewFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.fillRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.filler.Preview(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatFillResult(result)), nil
}

func (s *Server) handleFormFields(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.requirePath(request, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tmpl, err := acroform.Open(path, s.logger)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatFormFields(path, tmpl.Fields())), nil
}

func (s *Server) handleValidateFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.requirePath(request, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.validator.ValidateFile(path)
	if !result.Valid {
		return mcp.NewToolResultText(fmt.Sprintf("PDF validation failed for %s: %s", result.Path, result.Message)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Valid PDF: %s (%d pages)", result.Path, result.Pages)), nil
}

func (s *Server) handleListTemplates(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")

	templates, err := s.validator.FindTemplates(s.paths.Directory(), query, maxListedTemplates)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d PDF template(s) in %s\n", len(templates), s.paths.Directory())
	for i, t := range templates {
		rel, err := filepath.Rel(s.paths.Directory(), t.Path)
		if err != nil {
			rel = t.Path
		}
		fmt.Fprintf(&b, "%d. %s (%d bytes, modified %s)", i+1, rel, t.Size, t.ModifiedTime)
		if !s.validator.IsValidPDF(t.Path) {
			b.WriteString(" [unreadable]")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) fillRequest(request mcp.CallToolRequest) (autofill.Request, error) {
	identifier, err := request.RequireString("identifier")
	if err != nil {
		return autofill.Request{}, err
	}
	template, err := s.requirePath(request, "template")
	if err != nil {
		return autofill.Request{}, err
	}
	return autofill.Request{
		Identifier:     identifier,
		RecordVariable: request.GetString("record_variable", ""),
		TemplatePath:   template,
	}, nil
}

func (s *Server) requirePath(request mcp.CallToolRequest, key string) (string, error) {
	path, err := request.RequireString(key)
	if err != nil {
		return "", err
	}
	return s.paths.Resolve(path)
}

func (s *Server) formatFillResult(result *autofill.Result) string {
	var b strings.Builder

	if result.Written {
		fmt.Fprintf(&b, "Filled PDF written: %s\n", result.OutputPath)
	} else {
		fmt.Fprintf(&b, "Preview (nothing written)\n")
	}
	fmt.Fprintf(&b, "Record: %s\n", result.Identifier)
	fmt.Fprintf(&b, "Template: %s\n", result.TemplatePath)

	names := make([]string, 0, len(result.Instruction))
	for name := range result.Instruction {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(&b, "\nValues (%d):\n", len(names))
	for _, name := range names {
		fmt.Fprintf(&b, "  %s = %s\n", name, formatFillValue(result.Instruction[name]))
	}

	if len(result.Omissions) > 0 {
		fmt.Fprintf(&b, "\nLeft unfilled (%d):\n", len(result.Omissions))
		for _, o := range result.Omissions {
			if o.Value != "" {
				fmt.Fprintf(&b, "  %s: %s (%q)\n", o.Field, o.Reason, o.Value)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", o.Field, o.Reason)
			}
		}
	}

	if result.Report != nil && len(result.Report.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped by writer: %s\n", strings.Join(result.Report.Skipped, ", "))
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "\nWarning: %s\n", w)
	}

	return b.String()
}

func formatFillValue(v fieldmap.FillValue) string {
	switch v := v.(type) {
	case fieldmap.TextFill:
		return fmt.Sprintf("%q", string(v))
	case fieldmap.ChoiceFill:
		return string(v)
	case fieldmap.GroupFill:
		return "[" + strings.Join(v, ", ") + "]"
	}
	return ""
}

func (s *Server) formatFormFields(path string, fields []fieldmap.Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Form fields in %s: %d\n", path, len(fields))
	for i, f := range fields {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, f.FieldName(), f.Kind())
		if opts := fieldmap.FieldOptions(f); len(opts) > 0 {
			fmt.Fprintf(&b, " options: %s", strings.Join(opts, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Run starts the MCP server in the configured mode and blocks until ctx is
// canceled or the transport fails
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves MCP over standard input and output
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.Info("Starting MCP server in stdio mode", zap.String("directory", s.paths.Directory()))

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over HTTP with server-sent events
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	s.logger.Info("Starting MCP server in SSE mode",
		zap.String("address", addr),
		zap.String("directory", s.paths.Directory()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}
