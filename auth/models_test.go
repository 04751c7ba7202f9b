package auth

import (
	"encoding/json"
	"testing"
)

func TestParseFlag(t *testing.T) {
	if f, err := ParseFlag(" items_can_edit "); err != nil || f != FlagItemsEdit {
		t.Errorf("ParseFlag() = %q, %v, want %q", f, err, FlagItemsEdit)
	}
	if _, err := ParseFlag("items_can_fly"); err == nil {
		t.Error("Expected error for unknown flag")
	}
	if _, err := ParseFlags([]string{"items_can_add", "nope"}); err == nil {
		t.Error("Expected ParseFlags to fail on the first unknown flag")
	}
}

func TestKnownFlags(t *testing.T) {
	flags := KnownFlags()
	if len(flags) != len(allFlags) {
		t.Fatalf("Expected %d flags, got %d", len(allFlags), len(flags))
	}
	for i := 1; i < len(flags); i++ {
		if flags[i-1] >= flags[i] {
			t.Errorf("Flags not sorted: %q before %q", flags[i-1], flags[i])
		}
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		flags   []string
		want    string
		wantErr bool
	}{
		{"empty kind", "", nil, "none", false},
		{"none", "none", nil, "none", false},
		{"admin", "admin", nil, "admin", false},
		{"all of", "all_of", []string{"items_can_add", "items_can_edit"}, "all_of(items_can_add,items_can_edit)", false},
		{"dashed kind", "any-of", []string{"reports_can_view"}, "any_of(reports_can_view)", false},
		{"upper kind", "ALL_OF", []string{"reports_can_view"}, "all_of(reports_can_view)", false},
		{"admin with flags", "admin", []string{"items_can_add"}, "", true},
		{"none with flags", "none", []string{"items_can_add"}, "", true},
		{"unknown flag", "all_of", []string{"items_can_fly"}, "", true},
		{"unknown kind", "some_of", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequirement(tt.kind, tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := req.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if err := req.Validate(); err != nil {
				t.Errorf("Validate() on parsed requirement failed: %v", err)
			}
		})
	}
}

func TestRequirementValidate(t *testing.T) {
	if err := (Requirement{Kind: "bogus"}).Validate(); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if err := AllOf("not_a_flag").Validate(); err == nil {
		t.Error("Expected error for unknown flag")
	}
	if err := (Requirement{}).Validate(); err != nil {
		t.Errorf("Zero requirement should be valid: %v", err)
	}
}

func TestUserUnmarshalJSON(t *testing.T) {
	data := `{
		"id": 7,
		"username": "clerk",
		"job_name": "Storekeeper",
		"phone_number": "555-0100",
		"items_can_edit": true,
		"items_can_add": false,
		"reports_can_view": "yes",
		"some_future_flag": true
	}`

	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if u.ID != 7 || u.Username != "clerk" || u.JobName != "Storekeeper" || u.PhoneNumber != "555-0100" {
		t.Errorf("Unexpected identity fields: %+v", u)
	}
	if !u.Has(FlagItemsEdit) {
		t.Error("Expected items_can_edit to be granted")
	}
	if u.Has(FlagItemsAdd) {
		t.Error("Expected items_can_add to be denied")
	}
	if u.Has(FlagReportsView) {
		t.Error("Expected non-boolean flag value to count as false")
	}
	if _, ok := u.Flags["some_future_flag"]; ok {
		t.Error("Expected unknown keys to be ignored")
	}
}

func TestUserUnmarshalJSON_NonStringDescriptiveFields(t *testing.T) {
	var u User
	data := `{"id": 7, "username": "clerk", "job_name": 12, "phone_number": {"home": "555"}, "items_can_edit": true}`
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		t.Fatalf("Expected descriptive fields to be tolerated, got %v", err)
	}
	if u.JobName != "" || u.PhoneNumber != "" {
		t.Errorf("Expected non-string descriptive fields dropped, got %q %q", u.JobName, u.PhoneNumber)
	}
	if u.Username != "clerk" || !u.Has(FlagItemsEdit) {
		t.Errorf("Expected the rest of the record decoded, got %+v", u)
	}
}

func TestUserUnmarshalJSON_Errors(t *testing.T) {
	for _, data := range []string{`[]`, `{"id": "seven"}`, `{"username": 3}`} {
		var u User
		if err := json.Unmarshal([]byte(data), &u); err == nil {
			t.Errorf("Expected error decoding %s", data)
		}
	}
}

func TestUserMarshalJSON(t *testing.T) {
	u := User{ID: 3, Username: "clerk", Flags: map[Flag]bool{FlagItemsEdit: true}}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if raw["username"] != "clerk" || raw["items_can_edit"] != true {
		t.Errorf("Unexpected encoding: %s", data)
	}
	if _, ok := raw["job_name"]; !ok {
		t.Error("Expected job_name key")
	}
}

func TestUserClone(t *testing.T) {
	u := &User{Username: "clerk", Flags: map[Flag]bool{FlagItemsEdit: true}}
	c := u.Clone()
	c.Flags[FlagItemsEdit] = false

	if !u.Has(FlagItemsEdit) {
		t.Error("Clone shares the flag map with the original")
	}
	if (*User)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
	if (*User)(nil).Has(FlagItemsEdit) {
		t.Error("nil user should have no flags")
	}
}
