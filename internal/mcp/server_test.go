package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/autofill"
	"github.com/a3tai/redcap-pdf-autofill/internal/config"
	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/acroform"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/acroform/acroformtest"
)

type fakeFiller struct {
	requests []autofill.Request
	result   *autofill.Result
	err      error
}

func (f *fakeFiller) Fill(_ context.Context, req autofill.Request) (*autofill.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Identifier = req.Identifier
	r.TemplatePath = req.TemplatePath
	r.OutputPath = req.OutputPath
	r.Written = true
	return &r, nil
}

func (f *fakeFiller) Preview(_ context.Context, req autofill.Request) (*autofill.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Identifier = req.Identifier
	r.TemplatePath = req.TemplatePath
	return &r, nil
}

func sampleResult() *autofill.Result {
	return &autofill.Result{
		Instruction: fieldmap.FillInstruction{
			"first_name": fieldmap.TextFill("Jane"),
			"race":       fieldmap.ChoiceFill("2"),
			"meds":       fieldmap.GroupFill{"a", "c"},
		},
		Omissions: []fieldmap.Omission{
			{Field: "signature", Reason: fieldmap.ReasonMissing},
			{Field: "sex", Reason: fieldmap.ReasonUnknownExportValue, Value: "X"},
		},
		Report: &acroform.FillReport{Filled: []string{"first_name", "race", "meds"}},
	}
}

func newTestServer(t *testing.T, filler Filler) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Mode:         config.ModeStdio,
		PDFDirectory: dir,
		Version:      "1.0.0",
		ServerName:   "test-server",
		MaxFileSize:  1024 * 1024,
	}
	s, err := NewServer(cfg, filler, zap.NewNop())
	require.NoError(t, err)
	return s, dir
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// extractTextFromResult joins the text content of a tool result
func extractTextFromResult(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestNewServer(t *testing.T) {
	cfg := &config.Config{PDFDirectory: t.TempDir(), ServerName: "test-server", Version: "1.0.0"}

	s, err := NewServer(cfg, &fakeFiller{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.mcpServer)
	assert.Same(t, cfg, s.config)

	_, err = NewServer(cfg, nil, nil)
	assert.Error(t, err)

	_, err = NewServer(&config.Config{}, &fakeFiller{}, nil)
	assert.Error(t, err, "empty directory must be rejected")
}

func TestServer_HandleFillPDF(t *testing.T) {
	filler := &fakeFiller{result: sampleResult()}
	s, dir := newTestServer(t, filler)

	result, err := s.handleFillPDF(context.Background(), callRequest(map[string]interface{}{
		"identifier":      "17",
		"template":        "forms/consent.pdf",
		"output":          "out/filled.pdf",
		"record_variable": "study_id",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	require.Len(t, filler.requests, 1)
	assert.Equal(t, autofill.Request{
		Identifier:     "17",
		RecordVariable: "study_id",
		TemplatePath:   filepath.Join(dir, "forms", "consent.pdf"),
		OutputPath:     filepath.Join(dir, "out", "filled.pdf"),
	}, filler.requests[0])

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Filled PDF written: "+filepath.Join(dir, "out", "filled.pdf"))
	assert.Contains(t, text, `first_name = "Jane"`)
	assert.Contains(t, text, "meds = [a, c]")
	assert.Contains(t, text, "race = 2")
	assert.Contains(t, text, "signature: missing")
	assert.Contains(t, text, `sex: unknown_export_value ("X")`)
}

func TestServer_HandleFillPDF_RejectsPathsOutsideDirectory(t *testing.T) {
	filler := &fakeFiller{result: sampleResult()}
	s, _ := newTestServer(t, filler)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"template", map[string]interface{}{"identifier": "1", "template": "../consent.pdf"}},
		{"output", map[string]interface{}{"identifier": "1", "template": "consent.pdf", "output": "/etc/filled.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleFillPDF(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractTextFromResult(result), "outside configured directory")
		})
	}
	assert.Empty(t, filler.requests)
}

func TestServer_HandleFillPDF_FillerError(t *testing.T) {
	filler := &fakeFiller{err: autofill.ErrSameInputOutput}
	s, _ := newTestServer(t, filler)

	result, err := s.handleFillPDF(context.Background(), callRequest(map[string]interface{}{
		"identifier": "1",
		"template":   "consent.pdf",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), "must be different")
}

func TestServer_HandlePreviewFill(t *testing.T) {
	filler := &fakeFiller{result: sampleResult()}
	s, dir := newTestServer(t, filler)

	result, err := s.handlePreviewFill(context.Background(), callRequest(map[string]interface{}{
		"identifier": "17",
		"template":   "consent.pdf",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, filepath.Join(dir, "consent.pdf"), filler.requests[0].TemplatePath)
	assert.Empty(t, filler.requests[0].OutputPath)
	assert.Contains(t, extractTextFromResult(result), "Preview (nothing written)")
}

func TestServer_HandleFormFields(t *testing.T) {
	s, dir := newTestServer(t, &fakeFiller{})
	acroformtest.New().
		TextField("first_name", "").
		RadioGroup("race", "1", "2").
		CheckBox("meds___a", "Yes").
		CheckBox("meds___b", "Yes").
		WriteFile(t, dir, "consent.pdf")

	result, err := s.handleFormFields(context.Background(), callRequest(map[string]interface{}{"path": "consent.pdf"}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Form fields in")
	assert.Contains(t, text, "1. first_name (text)")
	assert.Contains(t, text, "2. race (radio_group) options: 1, 2")
	assert.Contains(t, text, "3. meds (checkbox_group) options: a, b")
}

func TestServer_HandleValidateFile(t *testing.T) {
	s, dir := newTestServer(t, &fakeFiller{})
	acroformtest.New().TextField("name", "").WriteFile(t, dir, "good.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pdf"), make([]byte, 1024), 0o600))

	result, err := s.handleValidateFile(context.Background(), callRequest(map[string]interface{}{"path": "good.pdf"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "Valid PDF")

	result, err = s.handleValidateFile(context.Background(), callRequest(map[string]interface{}{"path": "bad.pdf"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "PDF validation failed")
}

func TestServer_InvalidArguments(t *testing.T) {
	s, _ := newTestServer(t, &fakeFiller{result: sampleResult()})
	emptyRequest := callRequest(map[string]interface{}{})

	handlers := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
	}{
		{"FillPDF", s.handleFillPDF},
		{"PreviewFill", s.handlePreviewFill},
		{"FormFields", s.handleFormFields},
		{"ValidateFile", s.handleValidateFile},
	}

	for _, h := range handlers {
		t.Run(h.name, func(t *testing.T) {
			result, err := h.handler(context.Background(), emptyRequest)
			require.NoError(t, err, "handlers report failures as tool errors")
			require.NotNil(t, result)
			assert.True(t, result.IsError)
		})
	}
}

func TestServer_HandleListTemplates(t *testing.T) {
	s, dir := newTestServer(t, &fakeFiller{})
	acroformtest.New().TextField("name", "").WriteFile(t, dir, "consent.pdf")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "intake"), 0o750))
	acroformtest.New().TextField("name", "").WriteFile(t, filepath.Join(dir, "intake"), "intake.pdf")

	result, err := s.handleListTemplates(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	text := extractTextFromResult(result)
	assert.Contains(t, text, "Found 2 PDF template(s)")
	assert.Contains(t, text, "consent.pdf")
	assert.Contains(t, text, filepath.Join("intake", "intake.pdf"))

	result, err = s.handleListTemplates(context.Background(), callRequest(map[string]interface{}{"query": "INTAKE"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "Found 1 PDF template(s)")
}

func TestServer_HandleListTemplatesMarksUnreadable(t *testing.T) {
	s, dir := newTestServer(t, &fakeFiller{})
	acroformtest.New().TextField("name", "").WriteFile(t, dir, "consent.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a pdf"), 0o644))

	result, err := s.handleListTemplates(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	text := extractTextFromResult(result)

	assert.Contains(t, text, "Found 2 PDF template(s)")
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.Contains(line, "broken.pdf"):
			assert.Contains(t, line, "[unreadable]")
		case strings.Contains(line, "consent.pdf"):
			assert.NotContains(t, line, "[unreadable]")
		}
	}
}
