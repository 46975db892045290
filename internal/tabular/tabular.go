// Package tabular turns a workbook plus an ingestion spec into an
// ordered stream of staged rows: extracted entities, relationships,
// and the dual row hashes. The parser is pure — it touches no store,
// only the workbook. Output order is stable: sheet order in the spec,
// then row order within each sheet.
package tabular

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/weftdb/weft/internal/hashing"
	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/types"
)

// ErrWorkbook marks a workbook that could not be opened or read.
// A run that hits it fails outright (fatal parse error).
var ErrWorkbook = errors.New("unreadable workbook")

// Property is one extracted (key, value) pair. Order matters: staged
// properties keep the mapping's declared order so downstream writes
// are reproducible.
type Property struct {
	Key   string
	Value types.Cell
}

// StagedEntity is an entity extracted from one row.
type StagedEntity struct {
	EntityType  string
	PrimaryKey  string
	DisplayName string
	Properties  []Property
	SourceRef   string
}

// StagedRelationship links two entities extracted from the same row.
type StagedRelationship struct {
	RelationshipType string
	FromEntityType   string
	FromPrimaryKey   string
	ToEntityType     string
	ToPrimaryKey     string
	Properties       []Property
	SourceRef        string
}

// StagedRow is one parsed row with its extracted graph material and
// both row fingerprints.
type StagedRow struct {
	RowIndex       int
	Cells          []types.Cell
	Entities       []StagedEntity
	Relationships  []StagedRelationship
	RawHash        string
	NormalizedHash string
}

// Parser reads workbooks. The zero value is usable; Logger defaults to
// slog.Default.
type Parser struct {
	Logger *slog.Logger
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// ParseFile opens the workbook at path and parses it under spec.
func (p *Parser) ParseFile(path string, spec *ingestspec.Spec) ([]StagedRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWorkbook, path, err)
	}
	defer f.Close()
	return p.parse(f, spec)
}

// ParseReader parses a workbook streamed from r under spec.
func (p *Parser) ParseReader(r io.Reader, spec *ingestspec.Spec) ([]StagedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbook, err)
	}
	defer f.Close()
	return p.parse(f, spec)
}

func (p *Parser) parse(f *excelize.File, spec *ingestspec.Spec) ([]StagedRow, error) {
	var all []StagedRow
	for i := range spec.Sheets {
		sheetSpec := &spec.Sheets[i]
		sheetName, ok := p.resolveSheet(f, sheetSpec)
		if !ok {
			continue
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %s: %v", ErrWorkbook, sheetName, err)
		}
		staged, err := p.parseSheet(rows, sheetSpec, spec, sheetName)
		if err != nil {
			return nil, err
		}
		all = append(all, staged...)
	}
	return all, nil
}

// resolveSheet locates the worksheet: by name when set, by index
// otherwise, falling back to the active sheet. A missing sheet is
// logged and skipped, not fatal.
func (p *Parser) resolveSheet(f *excelize.File, sheetSpec *ingestspec.SheetSpec) (string, bool) {
	if sheetSpec.SheetName != "" {
		idx, err := f.GetSheetIndex(sheetSpec.SheetName)
		if err != nil || idx < 0 {
			p.logger().Warn("sheet not found in workbook", "sheet", sheetSpec.SheetName)
			return "", false
		}
		return sheetSpec.SheetName, true
	}
	list := f.GetSheetList()
	if sheetSpec.SheetIndex != nil {
		if *sheetSpec.SheetIndex < 0 || *sheetSpec.SheetIndex >= len(list) {
			p.logger().Warn("sheet index out of range", "index", *sheetSpec.SheetIndex, "sheets", len(list))
			return "", false
		}
		return list[*sheetSpec.SheetIndex], true
	}
	return f.GetSheetName(f.GetActiveSheetIndex()), true
}

func (p *Parser) parseSheet(rows [][]string, sheetSpec *ingestspec.SheetSpec, spec *ingestspec.Spec, sheetName string) ([]StagedRow, error) {
	if sheetSpec.HeaderRow >= len(rows) {
		p.logger().Warn("header row out of range", "sheet", sheetName, "header_row", sheetSpec.HeaderRow)
		return nil, nil
	}

	headers := rows[sheetSpec.HeaderRow]
	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		if trimmed := strings.TrimSpace(h); trimmed != "" {
			headerMap[trimmed] = i
		}
	}
	numCols := len(headers)

	skip := make(map[int]bool, len(sheetSpec.SkipRows)+1)
	skip[sheetSpec.HeaderRow] = true
	for _, r := range sheetSpec.SkipRows {
		skip[r] = true
	}

	var staged []StagedRow
	for rowIdx, raw := range rows {
		if skip[rowIdx] {
			continue
		}
		cells := rowCells(raw, numCols)
		if allNull(cells) {
			continue
		}

		rawHash := hashing.RawRowHash(cells, spec.RawHashSerialization)
		normalizedHash := hashing.NormalizedRowHash(cells, nil,
			spec.RawHashSerialization, spec.ChangeDetection.NormalizationRules)

		sourceRef := fmt.Sprintf("sheet:%s,row:%d", sheetName, rowIdx)

		entitiesByName := make(map[string]*StagedEntity, len(sheetSpec.Entities))
		var entities []StagedEntity
		for _, name := range sheetSpec.EntityNames() {
			mapping := sheetSpec.Entities[name]
			if e := extractEntity(&mapping, cells, headerMap, sourceRef); e != nil {
				entities = append(entities, *e)
				entitiesByName[name] = e
			}
		}

		var relationships []StagedRelationship
		for i := range sheetSpec.Relationships {
			rm := &sheetSpec.Relationships[i]
			if rel := extractRelationship(rm, entitiesByName, cells, headerMap, sourceRef); rel != nil {
				relationships = append(relationships, *rel)
			}
		}

		// Rows that produced no entities are dropped.
		if len(entities) == 0 {
			continue
		}
		staged = append(staged, StagedRow{
			RowIndex:       rowIdx,
			Cells:          cells,
			Entities:       entities,
			Relationships:  relationships,
			RawHash:        rawHash,
			NormalizedHash: normalizedHash,
		})
	}
	return staged, nil
}

func extractEntity(mapping *ingestspec.EntityMapping, cells []types.Cell, headerMap map[string]int, sourceRef string) *StagedEntity {
	rowData := make(map[string]string, len(mapping.Properties))
	props := make([]Property, 0, len(mapping.Properties))
	for _, cm := range mapping.Properties {
		v := cellByHeader(cells, headerMap, cm.SourceColumn)
		v = applyTransform(v, cm.Transform)
		props = append(props, Property{Key: cm.TargetProperty, Value: v})
		if !v.IsNull() {
			rowData[cm.TargetProperty] = v.Display()
		}
	}

	// Every key column must carry a value; otherwise the row holds no
	// instance of this entity.
	for _, kc := range mapping.KeyColumns {
		v, ok := rowData[kc]
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
	}
	primaryKey, err := ingestspec.RenderKeyTemplate(mapping.KeyTemplate, rowData)
	if err != nil {
		return nil
	}

	keyCols := make(map[string]bool, len(mapping.KeyColumns))
	for _, kc := range mapping.KeyColumns {
		keyCols[kc] = true
	}
	displayName := primaryKey
	for _, prop := range props {
		if !keyCols[prop.Key] && !prop.Value.IsNull() {
			displayName = prop.Value.Display()
			break
		}
	}

	return &StagedEntity{
		EntityType:  mapping.EntityType,
		PrimaryKey:  primaryKey,
		DisplayName: displayName,
		Properties:  props,
		SourceRef:   sourceRef,
	}
}

func extractRelationship(rm *ingestspec.RelationshipMapping, entities map[string]*StagedEntity, cells []types.Cell, headerMap map[string]int, sourceRef string) *StagedRelationship {
	from, to := entities[rm.FromEntity], entities[rm.ToEntity]
	if from == nil || to == nil {
		return nil
	}
	var props []Property
	for _, cm := range rm.Properties {
		v := applyTransform(cellByHeader(cells, headerMap, cm.SourceColumn), cm.Transform)
		props = append(props, Property{Key: cm.TargetProperty, Value: v})
	}
	return &StagedRelationship{
		RelationshipType: rm.RelationshipType,
		FromEntityType:   from.EntityType,
		FromPrimaryKey:   from.PrimaryKey,
		ToEntityType:     to.EntityType,
		ToPrimaryKey:     to.PrimaryKey,
		Properties:       props,
		SourceRef:        sourceRef,
	}
}

func cellByHeader(cells []types.Cell, headerMap map[string]int, column string) types.Cell {
	idx, ok := headerMap[column]
	if !ok || idx >= len(cells) {
		return types.NullCell()
	}
	return cells[idx]
}

func applyTransform(v types.Cell, transform string) types.Cell {
	if transform == "" || v.IsNull() {
		return v
	}
	s := v.Display()
	switch transform {
	case ingestspec.TransformStrip:
		return types.TextCell(strings.TrimSpace(s))
	case ingestspec.TransformLower:
		return types.TextCell(strings.ToLower(s))
	case ingestspec.TransformUpper:
		return types.TextCell(strings.ToUpper(s))
	case ingestspec.TransformInt:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return types.IntCell(int64(f))
		}
		return v
	case ingestspec.TransformFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return types.FloatCell(f)
		}
		return v
	}
	return v
}

func rowCells(raw []string, numCols int) []types.Cell {
	cells := make([]types.Cell, numCols)
	for i := 0; i < numCols; i++ {
		if i < len(raw) {
			cells[i] = InferCell(raw[i])
		} else {
			cells[i] = types.NullCell()
		}
	}
	return cells
}

func allNull(cells []types.Cell) bool {
	for _, c := range cells {
		if !c.IsNull() {
			return false
		}
	}
	return true
}

// InferCell types a workbook cell from its rendered value. The
// workbook reader hands back strings; typing here keeps the canonical
// serialization identical across readers. Empty is null, TRUE/FALSE is
// boolean, then integer, then float, then ISO dates, else text.
func InferCell(s string) types.Cell {
	if s == "" {
		return types.NullCell()
	}
	switch s {
	case "TRUE", "true", "True":
		return types.BoolCell(true)
	case "FALSE", "false", "False":
		return types.BoolCell(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.IntCell(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.FloatCell(f)
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return types.DateCell(t)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return types.TimeCell(t)
	}
	return types.TextCell(s)
}
