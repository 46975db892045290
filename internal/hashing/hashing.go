// Package hashing computes the dual fingerprints and assertion keys of
// the assertion graph.
//
// Every staged row and every property value carries two SHA-256 hashes:
// raw_hash over the canonical serialization of the value as parsed, and
// normalized_hash over the same serialization after the spec's
// normalization rules. Both are always computed and stored; the
// ingestion spec's change_detection mode only selects which one drives
// diffing. The serialization and normalization pipelines are a frozen
// contract: any change here changes every stored fingerprint.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/types"
)

// SerializeCell renders one cell for the raw canonical serialization.
// Null cells become the configured null representation; JSON cells are
// canonicalized per RFC 8785 so key order never perturbs the hash;
// everything else is the cell's display form.
func SerializeCell(c types.Cell, ser ingestspec.Serialization) string {
	if c.IsNull() {
		return ser.NullRepresentation
	}
	if c.Kind == types.CellJSON {
		if canon, err := jcs.Transform([]byte(c.Text)); err == nil {
			return string(canon)
		}
		// Not valid JSON after all; hash the text as given.
	}
	return c.Display()
}

// RawRowHash computes raw_hash: SHA-256 hex of the delimiter-joined
// canonical cell serializations, in declared column order, as UTF-8.
func RawRowHash(cells []types.Cell, ser ingestspec.Serialization) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = SerializeCell(c, ser)
	}
	return sumHex(strings.Join(parts, ser.Delimiter))
}

// NormalizeCell applies the normalization rules to one cell and returns
// its normalized textual form. Order is fixed: null-pattern collapse,
// whitespace trim, string lowercasing, numeric rounding, date
// reformatting. A null cell always normalizes to the empty string.
func NormalizeCell(c types.Cell, rules ingestspec.NormalizationRules, valueType types.ValueType) string {
	if c.IsNull() {
		return ""
	}
	s := c.Display()
	if c.Kind == types.CellJSON {
		if canon, err := jcs.Transform([]byte(c.Text)); err == nil {
			s = string(canon)
		}
	}

	for _, p := range rules.NullPatterns {
		if s == p {
			return ""
		}
	}
	if rules.TrimWhitespace {
		s = strings.TrimSpace(s)
	}
	if rules.LowercaseStrings && valueType == types.ValueString {
		s = strings.ToLower(s)
	}
	if valueType == types.ValueNumber && rules.NumberFormat != nil && rules.NumberFormat.DecimalPlaces != nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = strconv.FormatFloat(f, 'f', *rules.NumberFormat.DecimalPlaces, 64)
		}
	}
	if valueType == types.ValueDate && rules.DateFormat != "" {
		if t, ok := parseDate(s); ok {
			s = t.Format(dateLayout(rules.DateFormat))
		}
	}
	return s
}

// NormalizedRowHash computes normalized_hash: the raw serialization
// pipeline applied to normalized cells. valueTypes pairs with cells by
// index; missing entries default to string.
func NormalizedRowHash(cells []types.Cell, valueTypes []types.ValueType, ser ingestspec.Serialization, rules ingestspec.NormalizationRules) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		vt := types.ValueString
		if i < len(valueTypes) && valueTypes[i] != "" {
			vt = valueTypes[i]
		}
		parts[i] = NormalizeCell(c, rules, vt)
	}
	return sumHex(strings.Join(parts, ser.Delimiter))
}

// PropertyRawHash is the raw hash of the single-cell row [v].
func PropertyRawHash(v types.Cell, ser ingestspec.Serialization) string {
	return RawRowHash([]types.Cell{v}, ser)
}

// PropertyNormalizedHash is the normalized hash of the single-cell row [v].
func PropertyNormalizedHash(v types.Cell, ser ingestspec.Serialization, rules ingestspec.NormalizationRules, valueType types.ValueType) string {
	return NormalizedRowHash([]types.Cell{v}, []types.ValueType{valueType}, ser, rules)
}

// PropertyKey builds the assertion key of a property claim:
// {wid}:{entity_type}:{primary_key}:prop:{property_key}
func PropertyKey(workspaceID, entityType, primaryKey, propertyKey string) string {
	return workspaceID + ":" + entityType + ":" + primaryKey + ":prop:" + propertyKey
}

// RelationshipKey builds the assertion key of a relationship claim:
// {wid}:{etype_from}:{pk_from}:{rel_type}:{etype_to}:{pk_to}
func RelationshipKey(workspaceID, fromType, fromPK, relType, toType, toPK string) string {
	return workspaceID + ":" + fromType + ":" + fromPK + ":" + relType + ":" + toType + ":" + toPK
}

func sumHex(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Accepted date inputs for normalization rule 5, tried in order.
// MM/DD/YYYY is tried before DD/MM/YYYY, so ambiguous dates parse as
// month-first.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateLayout converts a YYYY-MM-DD style target format to a Go layout.
func dateLayout(fmt string) string {
	r := strings.NewReplacer("YYYY", "2006", "MM", "01", "DD", "02")
	return r.Replace(fmt)
}
