package store

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"emailtracker/internal/model"
	"emailtracker/pkg/metrics"
)

//go:embed import.schema.json
var importSchemaText string

const importSchemaURL = "https://emailtracker.local/schema/import.json"

var importSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(importSchemaText))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(importSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(importSchemaURL)
})

// ExportToJSON renders the versioned export envelope as indented JSON.
func (s *RecordStore) ExportToJSON(ctx context.Context) (string, error) {
	records, err := s.primary.All(ctx)
	if err != nil {
		return "", err
	}

	envelope := model.ExportEnvelope{
		Version:     model.ExportVersion,
		ExportDate:  model.Timestamp(s.now()),
		RecordCount: len(records),
		Stats:       ComputeStats(records),
		Records:     records,
	}
	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(out), nil
}

// ImportFromJSON accepts a bare record array or an export envelope and
// upserts every record. Nothing is written when the payload has the wrong shape.
func (s *RecordStore) ImportFromJSON(ctx context.Context, text string) (int, error) {
	records, err := ParseImport(text)
	if err != nil {
		return 0, err
	}

	if err := s.primary.PutMany(ctx, records); err != nil {
		metrics.RecordWrite("import", "error")
		return 0, fmt.Errorf("failed to import records: %w", err)
	}
	metrics.RecordWrite("import", "ok")

	for _, rec := range records {
		s.mirror(ctx, "import", rec.Domain, func() error {
			return s.backup.Set(ctx, s.BackupKey(rec.Domain), rec)
		})
	}
	return len(records), nil
}

// ParseImport validates the payload shape and decodes its records.
func ParseImport(text string) ([]model.EmailRecord, error) {
	schema, err := importSchema()
	if err != nil {
		return nil, fmt.Errorf("compile import schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}

	var records []model.EmailRecord
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var envelope struct {
			Records []model.EmailRecord `json:"records"`
		}
		err = json.Unmarshal(trimmed, &envelope)
		records = envelope.Records
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}

	for i := range records {
		records[i] = records[i].Normalized()
	}
	if records == nil {
		records = []model.EmailRecord{}
	}
	return records, nil
}
