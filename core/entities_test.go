package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ID
	}{
		{"string id", `"3f2a"`, "3f2a"},
		{"integer id", `42`, "42"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if id != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, id)
			}
		})
	}

	var id ID
	if err := json.Unmarshal([]byte(`{"a":1}`), &id); err == nil {
		t.Error("Expected error for object id")
	}
}

func TestIDFrom(t *testing.T) {
	if IDFrom(int64(7)) != "7" {
		t.Error("Expected int64 7 to convert to \"7\"")
	}
	if IDFrom(float64(12)) != "12" {
		t.Error("Expected float64 12 to convert to \"12\"")
	}
	if IDFrom([]byte("abc")) != "abc" {
		t.Error("Expected bytes to convert to string id")
	}
	if !IDFrom(nil).IsZero() {
		t.Error("Expected nil to convert to zero id")
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

	inputs := []string{
		"2024-03-05T10:30:00Z",
		"2024-03-05T10:30:00.000Z",
		"2024-03-05T10:30:00",
		"2024-03-05 10:30:00+00:00",
		"2024-03-05 10:30:00",
		"2024-03-05T12:30:00+02:00",
	}

	for _, input := range inputs {
		ts, err := ParseTimestamp(input)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", input, err)
			continue
		}
		if !ts.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, expected %v", input, ts.Time, want)
		}
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("Expected error for unrecognised timestamp")
	}
}

func TestTimestampJSON(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("Expected null to decode to zero timestamp, got %v (%v)", ts, err)
	}
	if err := json.Unmarshal([]byte(`""`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("Expected empty string to decode to zero timestamp, got %v (%v)", ts, err)
	}

	data, err := json.Marshal(Timestamp{})
	if err != nil || string(data) != "null" {
		t.Errorf("Expected zero timestamp to encode as null, got %s", data)
	}
}

func TestToRow(t *testing.T) {
	avatar := "https://example.com/a.png"
	created := NewTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	user := &User{
		Email:     "ana@example.com",
		Name:      "Ana",
		CompanyID: "c1",
		AvatarURL: &avatar,
		CreatedAt: created,
	}

	row := ToRow(user)

	if _, ok := row["id"]; ok {
		t.Error("Expected empty id to be omitted")
	}
	if _, ok := row["role"]; ok {
		t.Error("Expected empty role to be omitted")
	}
	if row["email"] != "ana@example.com" {
		t.Errorf("Expected email column, got %v", row["email"])
	}
	if row["company_id"] != "c1" {
		t.Errorf("Expected company_id to be a plain string, got %#v", row["company_id"])
	}
	if row["avatar_url"] != avatar {
		t.Errorf("Expected dereferenced avatar_url, got %#v", row["avatar_url"])
	}
	if row["created_at"] != "2024-01-02T03:04:05Z" {
		t.Errorf("Expected RFC 3339 created_at, got %v", row["created_at"])
	}
}

func TestToRowColumnResolution(t *testing.T) {
	type sample struct {
		DisplayName string `json:"display"`
		TotalCost   float64
		Secret      string `db:"-"`
		Explicit    string `db:"custom_col"`
	}

	row := ToRow(sample{DisplayName: "x", TotalCost: 1.5, Secret: "s", Explicit: "e"})

	if row["display"] != "x" {
		t.Error("Expected json tag to name the column")
	}
	if row["total_cost"] != 1.5 {
		t.Error("Expected snake_case field name as fallback")
	}
	if _, ok := row["secret"]; ok {
		t.Error("Expected db:\"-\" field to be skipped")
	}
	if row["custom_col"] != "e" {
		t.Error("Expected db tag to name the column")
	}

	if ToRow(42) != nil {
		t.Error("Expected nil for non-struct input")
	}
}

func TestFromRow(t *testing.T) {
	row := Row{
		"id":         int64(5),
		"company_id": "c1",
		"name":       "Tower",
		"budget":     1250.5,
		"progress":   int64(40),
		"created_at": "2024-01-02 03:04:05",
		"start_date": nil,
	}

	var project Project
	if err := FromRow(row, &project); err != nil {
		t.Fatalf("FromRow failed: %v", err)
	}

	if project.ID != "5" {
		t.Errorf("Expected numeric id to decode as \"5\", got %q", project.ID)
	}
	if project.Budget != 1250.5 {
		t.Errorf("Expected budget 1250.5, got %v", project.Budget)
	}
	if project.Progress != 40 {
		t.Errorf("Expected progress 40, got %d", project.Progress)
	}
	if project.StartDate != nil {
		t.Error("Expected nil start date")
	}
	if project.CreatedAt.Year() != 2024 {
		t.Errorf("Expected created_at to parse, got %v", project.CreatedAt)
	}
}

func TestValidateNames(t *testing.T) {
	if err := ValidateNames("users", map[string]any{"email": "x"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	err := ValidateNames("users; drop", nil)
	if err == nil || err.Kind != QueryError {
		t.Errorf("Expected query error for invalid table, got %v", err)
	}

	err = ValidateNames("users", map[string]any{"email = 1 OR 1": "x"})
	if err == nil || err.Kind != QueryError {
		t.Errorf("Expected query error for invalid column, got %v", err)
	}
}

func TestImportOrder(t *testing.T) {
	snap := Snapshot{
		TableProjects:  nil,
		"zzz_extra":    nil,
		TableCompanies: nil,
		"aaa_extra":    nil,
		TableUsers:     nil,
	}

	got := ImportOrder(snap)
	want := []string{TableCompanies, TableUsers, TableProjects, "aaa_extra", "zzz_extra"}

	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
