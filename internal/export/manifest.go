package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ortho-cohortgen/internal/domain"
)

// Manifest describes one exported dataset file.
type Manifest struct {
	RunID       string         `yaml:"run_id" json:"run_id"`
	RuleSet     string         `yaml:"rule_set" json:"rule_set"`
	Seed        int64          `yaml:"seed" json:"seed"`
	Fingerprint string         `yaml:"fingerprint" json:"fingerprint"`
	Records     int            `yaml:"records" json:"records"`
	Format      string         `yaml:"format" json:"format"`
	File        string         `yaml:"file" json:"file"`
	Location    string         `yaml:"location,omitempty" json:"location,omitempty"`
	SHA256      string         `yaml:"sha256" json:"sha256"`
	Columns     []string       `yaml:"columns" json:"columns"`
	Scenarios   map[string]int `yaml:"scenarios" json:"scenarios"`
	Implants    map[string]int `yaml:"implants" json:"implants"`
	ExportedAt  time.Time      `yaml:"exported_at" json:"exported_at"`
}

// NewManifest summarizes records and the encoded payload for run.
func NewManifest(run *domain.Run, schema domain.TableSchema, format, file string, payload []byte, records []domain.CaseRecord) *Manifest {
	sum := sha256.Sum256(payload)
	m := &Manifest{
		RunID:       run.ID.String(),
		RuleSet:     run.RuleSet,
		Seed:        run.Seed,
		Fingerprint: run.Fingerprint,
		Records:     len(records),
		Format:      format,
		File:        file,
		SHA256:      hex.EncodeToString(sum[:]),
		Columns:     schema.Columns,
		Scenarios:   make(map[string]int),
		Implants:    make(map[string]int),
		ExportedAt:  time.Now().UTC(),
	}
	for _, r := range records {
		m.Scenarios[string(r.Scenario)]++
		m.Implants[string(r.RecommendedImplant)]++
	}
	return m
}

// Encode writes the manifest as YAML.
func (m *Manifest) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}

// DecodeManifest reads a YAML manifest.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}
