// Package schema loads and validates declarative YAML domain schemas.
// A schema defines the entity types, relationship types, and property
// shapes of one workspace; the registry serves them to ingestion and
// the API as read-only configuration.
package schema

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/weftdb/weft/internal/types"
)

// PropertyDef describes one property of an entity or relationship type.
type PropertyDef struct {
	Type        string   `yaml:"type" json:"type"`
	Required    bool     `yaml:"required" json:"required,omitempty"`
	Pattern     string   `yaml:"pattern" json:"pattern,omitempty"`
	Enum        []string `yaml:"enum" json:"enum,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

// EntityTypeDef describes one entity type.
type EntityTypeDef struct {
	PrimaryKey  string                 `yaml:"primary_key" json:"primary_key"`
	Properties  map[string]PropertyDef `yaml:"properties" json:"properties"`
	Description string                 `yaml:"description" json:"description,omitempty"`
}

// RelationshipTypeDef describes one relationship type. The YAML keys
// "from"/"to" are accepted aliases for "from_type"/"to_type".
type RelationshipTypeDef struct {
	FromType    string                 `json:"from_type"`
	ToType      string                 `json:"to_type"`
	Properties  map[string]PropertyDef `json:"properties,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// UnmarshalYAML resolves the from/from_type and to/to_type aliases.
func (r *RelationshipTypeDef) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		From        string                 `yaml:"from"`
		FromType    string                 `yaml:"from_type"`
		To          string                 `yaml:"to"`
		ToType      string                 `yaml:"to_type"`
		Properties  map[string]PropertyDef `yaml:"properties"`
		Description string                 `yaml:"description"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.FromType = raw.FromType
	if r.FromType == "" {
		r.FromType = raw.From
	}
	r.ToType = raw.ToType
	if r.ToType == "" {
		r.ToType = raw.To
	}
	r.Properties = raw.Properties
	r.Description = raw.Description
	return nil
}

// AliasConfig declares an aliasing entity type for one primary type.
type AliasConfig struct {
	EntityType      string `yaml:"entity_type" json:"entity_type"`
	AliasEntityType string `yaml:"alias_entity_type" json:"alias_entity_type"`
	AliasKey        string `yaml:"alias_key" json:"alias_key"`
}

// Schema is one workspace's domain schema document.
type Schema struct {
	Workspace         string                         `yaml:"workspace" json:"workspace"`
	Version           string                         `yaml:"version" json:"version"`
	EntityTypes       map[string]EntityTypeDef       `yaml:"entity_types" json:"entity_types"`
	RelationshipTypes map[string]RelationshipTypeDef `yaml:"relationship_types" json:"relationship_types"`
	AliasConfig       *AliasConfig                   `yaml:"alias_config" json:"alias_config,omitempty"`
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: schema YAML: %v", types.ErrValidation, err)
	}
	if s.Workspace == "" {
		return nil, fmt.Errorf("%w: schema missing workspace", types.ErrValidation)
	}
	if errs := s.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: schema for %s: %v", types.ErrValidation, s.Workspace, errs)
	}
	return &s, nil
}

// Check validates schema integrity and returns every problem found.
// An empty slice means the schema is valid.
func (s *Schema) Check() []string {
	var errs []string

	names := make([]string, 0, len(s.EntityTypes))
	for name := range s.EntityTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, etypeName := range names {
		etype := s.EntityTypes[etypeName]
		if _, ok := etype.Properties[etype.PrimaryKey]; !ok {
			errs = append(errs, fmt.Sprintf(
				"entity %q: primary_key %q not found in properties", etypeName, etype.PrimaryKey))
		}
		propNames := sortedKeys(etype.Properties)
		for _, propName := range propNames {
			prop := etype.Properties[propName]
			if !types.ValueType(prop.Type).IsValid() {
				errs = append(errs, fmt.Sprintf(
					"entity %q.%s: invalid type %q", etypeName, propName, prop.Type))
			}
			if prop.Pattern != "" {
				if _, err := regexp.Compile(prop.Pattern); err != nil {
					errs = append(errs, fmt.Sprintf(
						"entity %q.%s: invalid pattern %q: %v", etypeName, propName, prop.Pattern, err))
				}
			}
		}
	}

	relNames := make([]string, 0, len(s.RelationshipTypes))
	for name := range s.RelationshipTypes {
		relNames = append(relNames, name)
	}
	sort.Strings(relNames)

	for _, relName := range relNames {
		rel := s.RelationshipTypes[relName]
		if _, ok := s.EntityTypes[rel.FromType]; !ok {
			errs = append(errs, fmt.Sprintf(
				"relationship %q: from_type %q not found in entity_types", relName, rel.FromType))
		}
		if _, ok := s.EntityTypes[rel.ToType]; !ok {
			errs = append(errs, fmt.Sprintf(
				"relationship %q: to_type %q not found in entity_types", relName, rel.ToType))
		}
		for _, propName := range sortedKeys(rel.Properties) {
			if !types.ValueType(rel.Properties[propName].Type).IsValid() {
				errs = append(errs, fmt.Sprintf(
					"relationship %q.%s: invalid type %q", relName, propName, rel.Properties[propName].Type))
			}
		}
	}

	return errs
}

// EntityTypeNames returns the defined entity type names, sorted.
func (s *Schema) EntityTypeNames() []string { return sortedKeys(s.EntityTypes) }

// RelationshipTypeNames returns the defined relationship type names, sorted.
func (s *Schema) RelationshipTypeNames() []string { return sortedKeys(s.RelationshipTypes) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
