package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weftdb/weft/internal/types"
)

const warehouseSchemaYAML = `
workspace: acme
version: "1.0"
entity_types:
  Item:
    primary_key: item_code
    properties:
      item_code: {type: string, required: true, pattern: "^ITM[0-9]+$"}
      name: {type: string}
      price: {type: number}
      active: {type: boolean}
  Location:
    primary_key: location_id
    properties:
      location_id: {type: string, required: true}
relationship_types:
  STORED_AT:
    from: Item
    to: Location
    properties:
      quantity: {type: number}
`

func TestParseValidSchema(t *testing.T) {
	s, err := Parse([]byte(warehouseSchemaYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Workspace != "acme" || s.Version != "1.0" {
		t.Errorf("header = %q/%q", s.Workspace, s.Version)
	}
	if got := s.EntityTypeNames(); len(got) != 2 || got[0] != "Item" {
		t.Errorf("entity types = %v", got)
	}
	rel := s.RelationshipTypes["STORED_AT"]
	if rel.FromType != "Item" || rel.ToType != "Location" {
		t.Errorf("from/to aliases not resolved: %+v", rel)
	}
}

func TestCheckFindsEveryProblem(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string // substring of the reported problem
	}{
		{
			name: "primary key not in properties",
			yaml: "workspace: w\nversion: '1'\nentity_types:\n  Item:\n    primary_key: sku\n    properties:\n      name: {type: string}\n",
			want: "primary_key",
		},
		{
			name: "invalid property type",
			yaml: "workspace: w\nversion: '1'\nentity_types:\n  Item:\n    primary_key: id\n    properties:\n      id: {type: uuid}\n",
			want: "invalid type",
		},
		{
			name: "invalid pattern",
			yaml: "workspace: w\nversion: '1'\nentity_types:\n  Item:\n    primary_key: id\n    properties:\n      id: {type: string, pattern: '['}\n",
			want: "invalid pattern",
		},
		{
			name: "relationship to undefined entity type",
			yaml: "workspace: w\nversion: '1'\nentity_types:\n  Item:\n    primary_key: id\n    properties:\n      id: {type: string}\nrelationship_types:\n  REL: {from: Item, to: Ghost}\n",
			want: "to_type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRegistryLoadsByWorkspaceField(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "warehouse.yaml"), []byte(warehouseSchemaYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "_draft.yaml"), []byte("workspace: hidden\nversion: '1'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(dir, nil)

	s, err := reg.Get("acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Workspace != "acme" {
		t.Errorf("workspace = %q", s.Workspace)
	}

	if _, err := reg.Get("missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown workspace: want ErrNotFound, got %v", err)
	}

	list := reg.List()
	if len(list) != 1 || list[0] != "acme" {
		t.Errorf("List = %v, underscore files must stay hidden", list)
	}
}

func TestRegistryRegisterValidates(t *testing.T) {
	reg := NewRegistry(t.TempDir(), nil)

	bad := &Schema{Workspace: "w", Version: "1", EntityTypes: map[string]EntityTypeDef{
		"Item": {PrimaryKey: "missing", Properties: map[string]PropertyDef{"name": {Type: "string"}}},
	}}
	if err := reg.Register(bad); !errors.Is(err, types.ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}

	good, err := Parse([]byte(warehouseSchemaYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(good); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := reg.Get("acme")
	if err != nil || got != good {
		t.Errorf("registered schema not served from cache: %v", err)
	}
}
