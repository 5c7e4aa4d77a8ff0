package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
)

// Publisher encodes datasets and hands them to a Sink with a manifest.
type Publisher struct {
	sink   Sink
	format string
	logger *logrus.Logger
}

// NewPublisher creates a publisher writing format to sink.
func NewPublisher(sink Sink, format string, logger *logrus.Logger) (*Publisher, error) {
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatJSON {
		return nil, domain.NewConfigurationError("export.format", fmt.Sprintf("unsupported format %q", format))
	}
	return &Publisher{sink: sink, format: format, logger: logger}, nil
}

// WithFormat returns a publisher writing to the same sink in format.
func (p *Publisher) WithFormat(format string) (*Publisher, error) {
	return NewPublisher(p.sink, format, p.logger)
}

// Format returns the encoding used for datasets.
func (p *Publisher) Format() string {
	return p.format
}

// Publish writes <run-id>.<ext> and <run-id>.manifest.yaml.
func (p *Publisher) Publish(ctx context.Context, run *domain.Run, schema domain.TableSchema, records []domain.CaseRecord) (*Manifest, error) {
	var payload bytes.Buffer
	if err := Write(&payload, p.format, schema, records); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s.%s", run.ID, Extension(p.format))
	location, err := p.sink.Put(ctx, name, ContentType(p.format), payload.Bytes())
	if err != nil {
		return nil, err
	}

	manifest := NewManifest(run, schema, p.format, name, payload.Bytes(), records)
	manifest.Location = location

	var encoded bytes.Buffer
	if err := manifest.Encode(&encoded); err != nil {
		return nil, err
	}
	if _, err := p.sink.Put(ctx, fmt.Sprintf("%s.manifest.yaml", run.ID), "application/yaml", encoded.Bytes()); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"format":   p.format,
		"records":  len(records),
		"location": location,
	}).Info("Published dataset")
	return manifest, nil
}
