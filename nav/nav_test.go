package nav

import (
	"reflect"
	"testing"

	"github.com/stockroom-labs/inventory-gate/auth"
)

func req(r auth.Requirement) *auth.Requirement { return &r }

func testEntries() []Entry {
	return []Entry{
		{Key: "home", Label: "Home", Path: "/"},
		{
			Key:   "stock",
			Label: "Stock",
			Children: []Entry{
				{Key: "items", Label: "Items", Path: "/items", Requirement: req(auth.AnyOf(auth.FlagItemsAdd, auth.FlagItemsEdit))},
				{Key: "machines", Label: "Machines", Path: "/machines", Requirement: req(auth.AllOf(auth.FlagMachinesAdd))},
			},
		},
		{
			Key:         "admin",
			Label:       "Admin",
			Requirement: req(auth.AdminOnly()),
			Children: []Entry{
				{Key: "users", Label: "Users", Path: "/users"},
			},
		},
		{Key: "reports", Label: "Reports", Path: "/reports", Requirement: req(auth.AllOf(auth.FlagReportsView))},
	}
}

func keys(entries []Entry) []string {
	var out []string
	Walk(entries, func(_ int, e Entry) { out = append(out, e.Key) })
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		user *auth.User
		want []string
	}{
		{
			name: "nil user sees nothing",
			user: nil,
			want: nil,
		},
		{
			name: "no flags hides empty groups",
			user: &auth.User{Username: "guest"},
			want: []string{"home"},
		},
		{
			name: "partial group",
			user: &auth.User{Username: "clerk", Flags: map[auth.Flag]bool{auth.FlagItemsEdit: true}},
			want: []string{"home", "stock", "items"},
		},
		{
			name: "order is preserved",
			user: &auth.User{Username: "clerk", Flags: map[auth.Flag]bool{
				auth.FlagReportsView: true,
				auth.FlagMachinesAdd: true,
			}},
			want: []string{"home", "stock", "machines", "reports"},
		},
		{
			name: "admin sees everything",
			user: &auth.User{Username: auth.AdminUsername},
			want: []string{"home", "stock", "items", "machines", "admin", "users", "reports"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(Filter(tt.user, testEntries()))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter() keys = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_DoesNotMutateDeclaration(t *testing.T) {
	entries := testEntries()
	Filter(&auth.User{Username: "clerk", Flags: map[auth.Flag]bool{auth.FlagItemsEdit: true}}, entries)

	if len(entries[1].Children) != 2 {
		t.Errorf("Expected declaration untouched, got %d children", len(entries[1].Children))
	}
}

func TestWalk_Depth(t *testing.T) {
	var depths []int
	Walk(testEntries(), func(depth int, _ Entry) { depths = append(depths, depth) })

	want := []int{0, 0, 1, 1, 0, 1, 0}
	if !reflect.DeepEqual(depths, want) {
		t.Errorf("Walk depths = %v, want %v", depths, want)
	}
}

func TestMenu_ForReturnsCopy(t *testing.T) {
	m := NewMenu(testEntries())
	user := &auth.User{Username: "clerk", Flags: map[auth.Flag]bool{auth.FlagItemsEdit: true}}

	got := m.For(user)
	got[0].Label = "Changed"
	got[1].Children = append(got[1].Children, Entry{Key: "extra", Path: "/extra"})
	got[1].Children[0].Key = "renamed"

	if again := keys(m.For(user)); !reflect.DeepEqual(again, []string{"home", "stock", "items"}) {
		t.Errorf("Expected memoized entries untouched, got %v", again)
	}
	if m.For(user)[0].Label != "Home" {
		t.Error("Expected memoized label untouched")
	}
}

func TestMenu_Memo(t *testing.T) {
	m := NewMenu(testEntries())
	user := &auth.User{Username: "clerk", Flags: map[auth.Flag]bool{auth.FlagItemsEdit: true}}

	first := m.For(user)
	// A mutation of the same record is not seen until the record is replaced.
	user.Flags[auth.FlagReportsView] = true
	second := m.For(user)
	if len(first) != len(second) {
		t.Errorf("Expected memoized result for the same record, got %d then %d entries", len(first), len(second))
	}

	refetched := user.Clone()
	if got := keys(m.For(refetched)); !reflect.DeepEqual(got, []string{"home", "stock", "items", "reports"}) {
		t.Errorf("Expected fresh filtering for a new record, got %v", got)
	}

	m.Reset()
	if got := keys(m.For(user)); len(got) != 4 {
		t.Errorf("Expected recomputed result after reset, got %v", got)
	}

	if m.For(nil) != nil {
		t.Error("Expected nil for nil user")
	}
	if len(m.Entries()) != 4 {
		t.Errorf("Expected 4 declared entries, got %d", len(m.Entries()))
	}
}
