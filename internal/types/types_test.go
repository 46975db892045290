package types

import (
	"testing"
	"time"
)

func validAssertion() *AssertionRecord {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &AssertionRecord{
		AssertionID:      "asrt_0195a8f2c3d44e5f8a9b0c1d2e3f4a5b",
		WorkspaceID:      "acme",
		AssertionKey:     "acme:Item:ITM001:prop:name",
		RawHash:          "aaaa",
		NormalizedHash:   "bbbb",
		SourceType:       SourceExcel,
		RecordedAt:       now,
		ValidFrom:        now,
		ScenarioID:       DefaultScenario,
		Confidence:       1.0,
		RelationshipType: RelTypeHasProperty,
		PropertyKey:      "name",
	}
}

func TestAssertionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AssertionRecord)
		wantErr bool
	}{
		{name: "valid", mutate: func(a *AssertionRecord) {}, wantErr: false},
		{name: "missing workspace", mutate: func(a *AssertionRecord) { a.WorkspaceID = "" }, wantErr: true},
		{name: "missing key", mutate: func(a *AssertionRecord) { a.AssertionKey = "" }, wantErr: true},
		{name: "missing raw hash", mutate: func(a *AssertionRecord) { a.RawHash = "" }, wantErr: true},
		{name: "missing normalized hash", mutate: func(a *AssertionRecord) { a.NormalizedHash = "" }, wantErr: true},
		{name: "bad source type", mutate: func(a *AssertionRecord) { a.SourceType = "carrier_pigeon" }, wantErr: true},
		{name: "confidence too high", mutate: func(a *AssertionRecord) { a.Confidence = 1.5 }, wantErr: true},
		{name: "confidence negative", mutate: func(a *AssertionRecord) { a.Confidence = -0.1 }, wantErr: true},
		{
			name: "valid_to before valid_from",
			mutate: func(a *AssertionRecord) {
				early := a.ValidFrom.Add(-time.Hour)
				a.ValidTo = &early
			},
			wantErr: true,
		},
		{
			name: "valid_to equals valid_from is allowed",
			mutate: func(a *AssertionRecord) {
				at := a.ValidFrom
				a.ValidTo = &at
			},
			wantErr: false,
		},
		{name: "missing relationship type", mutate: func(a *AssertionRecord) { a.RelationshipType = "" }, wantErr: true},
		{
			name: "property claim without property key",
			mutate: func(a *AssertionRecord) {
				a.PropertyKey = ""
			},
			wantErr: true,
		},
		{
			name: "relationship claim needs no property key",
			mutate: func(a *AssertionRecord) {
				a.RelationshipType = "SUPPLIED_BY"
				a.PropertyKey = ""
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAssertion()
			tt.mutate(a)
			err := a.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssertionSetDefaults(t *testing.T) {
	a := &AssertionRecord{}
	a.SetDefaults()
	if a.ScenarioID != DefaultScenario {
		t.Errorf("scenario = %q, want %q", a.ScenarioID, DefaultScenario)
	}
	if a.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", a.Confidence)
	}

	// Explicit values survive.
	b := &AssertionRecord{ScenarioID: "what_if_1", Confidence: 0.5}
	b.SetDefaults()
	if b.ScenarioID != "what_if_1" || b.Confidence != 0.5 {
		t.Errorf("SetDefaults overwrote explicit values: %+v", b)
	}
}

func TestAssertionIsOpen(t *testing.T) {
	a := validAssertion()
	if !a.IsOpen() {
		t.Fatal("assertion without valid_to should be open")
	}
	at := a.ValidFrom.Add(time.Hour)
	a.ValidTo = &at
	if a.IsOpen() {
		t.Fatal("assertion with valid_to should be closed")
	}
}

func TestEnumValidity(t *testing.T) {
	for _, s := range []SourceType{SourceExcel, SourceAPI, SourceManual, SourceLLMExtracted, SourceComputed} {
		if !s.IsValid() {
			t.Errorf("source type %q should be valid", s)
		}
	}
	if SourceType("fax").IsValid() {
		t.Error("unknown source type accepted")
	}

	for _, e := range []EventType{EventImportDiff, EventManualResolve, EventScenarioDelta, EventManualEdit} {
		if !e.IsValid() {
			t.Errorf("event type %q should be valid", e)
		}
	}
	if EventType("solar_flare").IsValid() {
		t.Error("unknown event type accepted")
	}

	for _, v := range []ValueType{ValueString, ValueNumber, ValueDate, ValueBoolean, ValueJSON} {
		if !v.IsValid() {
			t.Errorf("value type %q should be valid", v)
		}
	}
	for _, r := range []RunStatus{RunRunning, RunCompleted, RunFailed} {
		if !r.IsValid() {
			t.Errorf("run status %q should be valid", r)
		}
	}
	if !ViewResolved.IsValid() || !ViewAllClaims.IsValid() || ViewMode("both").IsValid() {
		t.Error("view mode validity broken")
	}
}

func TestValidateWorkspaceID(t *testing.T) {
	tests := []struct {
		wid     string
		wantErr bool
	}{
		{"acme", false},
		{"acme_corp_2", false},
		{"a", false},
		{"", true},
		{"Acme", true},
		{"acme-corp", true},
		{"acme corp", true},
		{"acme/../etc", true},
		{string(make([]byte, 65)), true},
	}
	for _, tt := range tests {
		err := ValidateWorkspaceID(tt.wid)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateWorkspaceID(%q) error = %v, wantErr %v", tt.wid, err, tt.wantErr)
		}
	}
}
