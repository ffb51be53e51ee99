// Package autofill runs the record-to-PDF pipeline: fetch a REDCap record,
// normalize it, map it onto a template's fields and write the filled copy.
package autofill

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf/acroform"
	"github.com/a3tai/redcap-pdf-autofill/internal/redcap"
)

const (
	// DefaultOutputDir receives generated output files
	DefaultOutputDir = "./output"
	// DefaultRecordVariable identifies records in most REDCap projects
	DefaultRecordVariable = "record_id"

	timestampLayout = "20060102_150405"
)

var (
	// ErrMissingIdentifier is returned when a request names no record
	ErrMissingIdentifier = errors.New("record identifier is required")
	// ErrNotPDF is returned when the template path lacks a .pdf extension
	ErrNotPDF = errors.New("template PDF must have a '.pdf' extension")
	// ErrSameInputOutput is returned when the output would overwrite the template
	ErrSameInputOutput = errors.New("template PDF and output PDF must be different")
)

// RecordFetcher retrieves one record as flat string values
type RecordFetcher interface {
	FetchRecord(ctx context.Context, variable, id string) (fieldmap.RawRecord, error)
}

// MetadataFetcher retrieves the project data dictionary
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context) (redcap.Metadata, error)
}

// Request describes one fill
type Request struct {
	Identifier     string `json:"identifier"`
	RecordVariable string `json:"record_variable,omitempty"`
	TemplatePath   string `json:"template_path"`
	OutputPath     string `json:"output_path,omitempty"`
}

// Result summarizes a fill or a preview
type Result struct {
	Identifier   string                   `json:"identifier"`
	TemplatePath string                   `json:"template_path"`
	OutputPath   string                   `json:"output_path,omitempty"`
	Written      bool                     `json:"written"`
	Instruction  fieldmap.FillInstruction `json:"instruction"`
	Omissions    []fieldmap.Omission      `json:"omissions,omitempty"`
	Report       *acroform.FillReport     `json:"report,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
}

// Service fills PDF templates from REDCap records
type Service struct {
	records        RecordFetcher
	metadata       MetadataFetcher
	normalizer     *fieldmap.Normalizer
	validator      *pdf.Validator
	outputDir      string
	recordVariable string
	now            func() time.Time
	logger         *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithMetadata enables choice labels and radio choice text from the data dictionary
func WithMetadata(m MetadataFetcher) Option {
	return func(s *Service) { s.metadata = m }
}

// WithNormalizer replaces the default normalizer
func WithNormalizer(n *fieldmap.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithValidator replaces the default template validator
func WithValidator(v *pdf.Validator) Option {
	return func(s *Service) { s.validator = v }
}

// WithOutputDir sets the directory used when a request has no output path
func WithOutputDir(dir string) Option {
	return func(s *Service) { s.outputDir = dir }
}

// WithRecordVariable sets the identifier variable used when a request names none
func WithRecordVariable(name string) Option {
	return func(s *Service) { s.recordVariable = name }
}

// WithClock overrides the time source for generated file names
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service reading records from records
func NewService(records RecordFetcher, opts ...Option) *Service {
	s := &Service{
		records:        records,
		normalizer:     fieldmap.NewNormalizer(),
		validator:      pdf.NewValidator(pdf.DefaultMaxFileSize),
		outputDir:      DefaultOutputDir,
		recordVariable: DefaultRecordVariable,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fill fetches the record, fills the template and writes the output file
func (s *Service) Fill(ctx context.Context, req Request) (*Result, error) {
	return s.run(ctx, req, true)
}

// Preview resolves the fill instruction without writing anything
func (s *Service) Preview(ctx context.Context, req Request) (*Result, error) {
	return s.run(ctx, req, false)
}

func (s *Service) run(ctx context.Context, req Request, write bool) (*Result, error) {
	req, warnings, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.logger.Warn(w, zap.String("output", req.OutputPath))
	}

	logger := s.logger.With(zap.String("identifier", req.Identifier), zap.String("template", req.TemplatePath))

	raw, err := s.records.FetchRecord(ctx, req.RecordVariable, req.Identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", req.Identifier, err)
	}
	logger.Debug("Fetched record", zap.Int("variables", len(raw)))

	var labels map[string]map[string]string
	if s.metadata != nil {
		md, err := s.metadata.FetchMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metadata: %w", err)
		}
		labels = md.ChoiceLabels()
		raw = md.AddRadioChoiceText(raw)
	}

	tmpl, err := acroform.Open(req.TemplatePath, logger)
	if err != nil {
		return nil, err
	}
	fields := tmpl.Fields()

	engine := fieldmap.NewEngine(fieldmap.WithChoiceLabels(labels), fieldmap.WithLogger(logger))
	fi, omissions := engine.Resolve(s.normalizer.Normalize(raw), fields)
	logger.Info("Resolved fill instruction",
		zap.Int("fields", len(fields)),
		zap.Int("filled", len(fi)),
		zap.Int("omitted", len(omissions)))

	result := &Result{
		Identifier:   req.Identifier,
		TemplatePath: req.TemplatePath,
		OutputPath:   req.OutputPath,
		Instruction:  fi,
		Omissions:    omissions,
		Warnings:     warnings,
	}
	if !write {
		return result, nil
	}

	report, err := tmpl.Fill(fi)
	if err != nil {
		return nil, err
	}
	if err := tmpl.WriteFile(req.OutputPath); err != nil {
		return nil, err
	}
	logger.Info("Wrote filled PDF", zap.String("output", req.OutputPath), zap.Int("filled", len(report.Filled)))

	result.Report = report
	result.Written = true
	return result, nil
}

// prepare validates req and fills in its defaults. Non-fatal problems are
// returned as warnings.
func (s *Service) prepare(req Request) (Request, []string, error) {
	var warnings []string

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" {
		return req, nil, ErrMissingIdentifier
	}
	if req.RecordVariable == "" {
		req.RecordVariable = s.recordVariable
	}

	if !pdf.HasPDFExtension(req.TemplatePath) {
		return req, nil, fmt.Errorf("%w: %s", ErrNotPDF, req.TemplatePath)
	}
	if err := s.validator.ValidateTemplate(req.TemplatePath); err != nil {
		return req, nil, fmt.Errorf("invalid template: %w", err)
	}

	if req.OutputPath == "" {
		req.OutputPath = ResolveOutputPath(s.outputDir, req.TemplatePath, req.Identifier, s.now())
	} else if !pdf.HasPDFExtension(req.OutputPath) {
		warnings = append(warnings, "output PDF does not have a '.pdf' extension; it may not open in a viewer")
	}

	if samePath(req.TemplatePath, req.OutputPath) {
		return req, nil, fmt.Errorf("%w: %s", ErrSameInputOutput, req.TemplatePath)
	}
	return req, warnings, nil
}

// ResolveOutputPath builds <dir>/<YYYYmmdd_HHMMSS>_<template stem>_<identifier>.pdf
func ResolveOutputPath(dir, templatePath, identifier string, at time.Time) string {
	base := filepath.Base(templatePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s_%s_%s.pdf", at.Format(timestampLayout), stem, safeFileComponent(identifier))
	return filepath.Join(dir, name)
}

func safeFileComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, s)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
