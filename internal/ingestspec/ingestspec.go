// Package ingestspec defines the declarative YAML ingestion spec: which
// sheets to read, how columns map to entities and relationships, how
// rows are serialized for hashing, and which hash drives change
// detection.
package ingestspec

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weftdb/weft/internal/types"
)

// Change detection modes.
const (
	ModeStrict     = "strict"     // raw_hash drives diffing
	ModeNormalized = "normalized" // normalized_hash drives diffing (default)
)

// Column transforms applied while extracting entity properties.
const (
	TransformStrip = "strip"
	TransformLower = "lower"
	TransformUpper = "upper"
	TransformInt   = "int"
	TransformFloat = "float"
)

// Serialization fixes how a row of cells becomes the canonical string
// fed to SHA-256. These fields are a frozen contract: changing any of
// them changes every stored hash.
type Serialization struct {
	CellOrder          string `yaml:"cell_order"`
	Delimiter          string `yaml:"delimiter"`
	NullRepresentation string `yaml:"null_representation"`
	NumberFormat       string `yaml:"number_format"`
	DateFormat         string `yaml:"date_format"`
	IncludeFormatting  bool   `yaml:"include_formatting"`
}

// DefaultSerialization returns the documented serialization defaults.
func DefaultSerialization() Serialization {
	return Serialization{
		CellOrder:          "column_order",
		Delimiter:          "|",
		NullRepresentation: "<NULL>",
		NumberFormat:       "as_displayed",
		DateFormat:         "as_displayed",
	}
}

// NumberFormat configures numeric normalization.
type NumberFormat struct {
	DecimalPlaces *int `yaml:"decimal_places"`
}

// NormalizationRules are applied per cell before the normalized hash.
type NormalizationRules struct {
	TrimWhitespace   bool          `yaml:"trim_whitespace"`
	LowercaseStrings bool          `yaml:"lowercase_strings"`
	NullPatterns     []string      `yaml:"normalize_nulls"`
	NumberFormat     *NumberFormat `yaml:"number_format"`
	DateFormat       string        `yaml:"date_format"`
}

// DefaultNullPatterns is the set of cell texts treated as absent values.
func DefaultNullPatterns() []string {
	return []string{"", "N/A", "n/a", "null", "-"}
}

// DefaultNormalizationRules returns the documented rule defaults.
func DefaultNormalizationRules() NormalizationRules {
	return NormalizationRules{
		TrimWhitespace:   true,
		LowercaseStrings: true,
		NullPatterns:     DefaultNullPatterns(),
	}
}

// UnmarshalYAML decodes rules with absent booleans defaulting to true
// and an absent pattern list defaulting to the standard set.
func (r *NormalizationRules) UnmarshalYAML(value *yaml.Node) error {
	type plain NormalizationRules
	tmp := plain{TrimWhitespace: true, LowercaseStrings: true}
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*r = NormalizationRules(tmp)
	if r.NullPatterns == nil {
		r.NullPatterns = DefaultNullPatterns()
	}
	return nil
}

// ChangeDetection selects the hash that drives diffing.
type ChangeDetection struct {
	Mode               string             `yaml:"mode"`
	NormalizationRules NormalizationRules `yaml:"normalization_rules"`
}

// ColumnMapping maps one source column to one target property.
type ColumnMapping struct {
	SourceColumn   string `yaml:"source_column"`
	TargetProperty string `yaml:"target_property"`
	Transform      string `yaml:"transform"`
}

// EntityMapping extracts one entity per row.
type EntityMapping struct {
	EntityType string          `yaml:"entity_type"`
	KeyColumns []string        `yaml:"key_columns"`
	KeyTemplate string         `yaml:"key_template"`
	Properties []ColumnMapping `yaml:"properties"`
}

// RelationshipMapping links two entities extracted from the same row.
// FromEntity and ToEntity name entries of the sheet's entities map.
type RelationshipMapping struct {
	RelationshipType string          `yaml:"relationship_type"`
	FromEntity       string          `yaml:"from_entity"`
	ToEntity         string          `yaml:"to_entity"`
	Properties       []ColumnMapping `yaml:"properties"`
}

// SheetSpec describes one sheet of the workbook. A sheet is located by
// name when set, by index otherwise.
type SheetSpec struct {
	SheetName     string                   `yaml:"sheet_name"`
	SheetIndex    *int                     `yaml:"sheet_index"`
	HeaderRow     int                      `yaml:"header_row"`
	SkipRows      []int                    `yaml:"skip_rows"`
	Entities      map[string]EntityMapping `yaml:"entities"`
	Relationships []RelationshipMapping    `yaml:"relationships"`
}

// EntityNames returns the sheet's entity mapping names in sorted
// order, so extraction order is deterministic across runs.
func (sh *SheetSpec) EntityNames() []string {
	names := make([]string, 0, len(sh.Entities))
	for name := range sh.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec is a complete ingestion specification document.
type Spec struct {
	SpecName             string          `yaml:"spec_name"`
	SpecVersion          string          `yaml:"spec_version"`
	WorkspaceID          string          `yaml:"workspace_id"`
	SourceType           string          `yaml:"source_type"`
	FilePattern          string          `yaml:"file_pattern"`
	RawHashSerialization Serialization   `yaml:"raw_hash_serialization"`
	ChangeDetection      ChangeDetection `yaml:"change_detection"`
	Sheets               []SheetSpec     `yaml:"sheets"`
}

// SetDefaults fills absent sections with their documented defaults.
func (s *Spec) SetDefaults() {
	if s.SourceType == "" {
		s.SourceType = string(types.SourceExcel)
	}
	def := DefaultSerialization()
	if s.RawHashSerialization.CellOrder == "" {
		s.RawHashSerialization.CellOrder = def.CellOrder
	}
	if s.RawHashSerialization.Delimiter == "" {
		s.RawHashSerialization.Delimiter = def.Delimiter
	}
	if s.RawHashSerialization.NullRepresentation == "" {
		s.RawHashSerialization.NullRepresentation = def.NullRepresentation
	}
	if s.RawHashSerialization.NumberFormat == "" {
		s.RawHashSerialization.NumberFormat = def.NumberFormat
	}
	if s.RawHashSerialization.DateFormat == "" {
		s.RawHashSerialization.DateFormat = def.DateFormat
	}
	if s.ChangeDetection.Mode == "" {
		s.ChangeDetection.Mode = ModeNormalized
	}
	if s.ChangeDetection.NormalizationRules.NullPatterns == nil {
		s.ChangeDetection.NormalizationRules = DefaultNormalizationRules()
	}
}

// Validate rejects structurally broken specs.
func (s *Spec) Validate() error {
	if s.SpecName == "" {
		return fmt.Errorf("%w: spec_name is required", types.ErrValidation)
	}
	if s.WorkspaceID == "" {
		return fmt.Errorf("%w: spec %s: workspace_id is required", types.ErrValidation, s.SpecName)
	}
	if err := types.ValidateWorkspaceID(s.WorkspaceID); err != nil {
		return fmt.Errorf("spec %s: %w", s.SpecName, err)
	}
	if s.ChangeDetection.Mode != ModeStrict && s.ChangeDetection.Mode != ModeNormalized {
		return fmt.Errorf("%w: spec %s: change_detection.mode must be %q or %q, got %q",
			types.ErrValidation, s.SpecName, ModeStrict, ModeNormalized, s.ChangeDetection.Mode)
	}
	if len(s.Sheets) == 0 {
		return fmt.Errorf("%w: spec %s: at least one sheet is required", types.ErrValidation, s.SpecName)
	}
	for i := range s.Sheets {
		if err := s.Sheets[i].validate(s.SpecName, i); err != nil {
			return err
		}
	}
	return nil
}

func (sh *SheetSpec) validate(specName string, idx int) error {
	if sh.SheetName == "" && sh.SheetIndex == nil {
		return fmt.Errorf("%w: spec %s: sheet %d needs sheet_name or sheet_index", types.ErrValidation, specName, idx)
	}
	if len(sh.Entities) == 0 {
		return fmt.Errorf("%w: spec %s: sheet %d has no entity mappings", types.ErrValidation, specName, idx)
	}
	for name, em := range sh.Entities {
		if em.EntityType == "" {
			return fmt.Errorf("%w: spec %s: entity %q missing entity_type", types.ErrValidation, specName, name)
		}
		if len(em.KeyColumns) == 0 {
			return fmt.Errorf("%w: spec %s: entity %q missing key_columns", types.ErrValidation, specName, name)
		}
		if em.KeyTemplate == "" {
			return fmt.Errorf("%w: spec %s: entity %q missing key_template", types.ErrValidation, specName, name)
		}
		for _, cm := range em.Properties {
			if err := validateTransform(cm.Transform); err != nil {
				return fmt.Errorf("%w: spec %s: entity %q column %q: %v",
					types.ErrValidation, specName, name, cm.SourceColumn, err)
			}
		}
	}
	for _, rm := range sh.Relationships {
		if rm.RelationshipType == "" {
			return fmt.Errorf("%w: spec %s: sheet %d relationship missing relationship_type", types.ErrValidation, specName, idx)
		}
		if _, ok := sh.Entities[rm.FromEntity]; !ok {
			return fmt.Errorf("%w: spec %s: relationship %s: from_entity %q is not a mapped entity",
				types.ErrValidation, specName, rm.RelationshipType, rm.FromEntity)
		}
		if _, ok := sh.Entities[rm.ToEntity]; !ok {
			return fmt.Errorf("%w: spec %s: relationship %s: to_entity %q is not a mapped entity",
				types.ErrValidation, specName, rm.RelationshipType, rm.ToEntity)
		}
	}
	return nil
}

func validateTransform(tr string) error {
	switch tr {
	case "", TransformStrip, TransformLower, TransformUpper, TransformInt, TransformFloat:
		return nil
	}
	return fmt.Errorf("unknown transform %q", tr)
}

// RenderKeyTemplate substitutes {name} placeholders with row values.
// Unknown placeholders are an error so broken templates surface during
// ingestion instead of minting junk primary keys.
func RenderKeyTemplate(template string, values map[string]string) (string, error) {
	var b strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unbalanced brace in key_template %q", template)
		}
		b.WriteString(rest[:start])
		name := rest[start+1 : start+end]
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("key_template %q references unknown column %q", template, name)
		}
		b.WriteString(v)
		rest = rest[start+end+1:]
	}
}
