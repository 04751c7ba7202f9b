// Package nav derives the navigation menu a user may see.
package nav

import (
	"github.com/hashicorp/golang-lru/v2"
	"github.com/stockroom-labs/inventory-gate/auth"
)

// Entry is a navigation link or, when it has children, a group of links.
type Entry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Path  string `json:"path,omitempty"`
	// Requirement gates the entry; nil means any authenticated user.
	Requirement *auth.Requirement `json:"requirement,omitempty"`
	Children    []Entry           `json:"children,omitempty"`
}

// IsGroup reports whether the entry groups other entries.
func (e Entry) IsGroup() bool {
	return len(e.Children) > 0
}

// Visible reports whether the entry itself passes for user, ignoring children.
func (e Entry) Visible(user *auth.User) bool {
	if user == nil {
		return false
	}
	if e.Requirement == nil {
		return true
	}
	return auth.Evaluate(user, *e.Requirement)
}

// Filter returns the entries user may see in declared order. Children are
// filtered by the same rule and a group left with no visible child is
// dropped. A nil user sees nothing.
func Filter(user *auth.User, entries []Entry) []Entry {
	if user == nil {
		return nil
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Visible(user) {
			continue
		}
		if e.IsGroup() {
			children := Filter(user, e.Children)
			if len(children) == 0 {
				continue
			}
			e.Children = children
		}
		out = append(out, e)
	}
	return out
}

// Walk calls fn for every entry depth first, parents before children.
func Walk(entries []Entry, fn func(depth int, e Entry)) {
	walk(entries, 0, fn)
}

func walk(entries []Entry, depth int, fn func(int, Entry)) {
	for _, e := range entries {
		fn(depth, e)
		walk(e.Children, depth+1, fn)
	}
}

const defaultMemoSize = 256

// Menu is a static list of entries with memoized filtering. Results are
// keyed on the identity of the user record, so a re-fetched record is
// filtered afresh.
type Menu struct {
	entries []Entry
	memo    *lru.Cache[*auth.User, []Entry]
}

// NewMenu creates a menu over entries.
func NewMenu(entries []Entry) *Menu {
	memo, err := lru.New[*auth.User, []Entry](defaultMemoSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Menu{entries: entries, memo: memo}
}

// Entries returns the unfiltered declaration.
func (m *Menu) Entries() []Entry {
	return m.entries
}

// For returns the entries visible to user. The result is a copy the caller
// may modify; requirements are shared and must not be.
func (m *Menu) For(user *auth.User) []Entry {
	if user == nil {
		return nil
	}
	if cached, ok := m.memo.Get(user); ok {
		return cloneEntries(cached)
	}
	filtered := Filter(user, m.entries)
	m.memo.Add(user, filtered)
	return cloneEntries(filtered)
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Children = cloneEntries(e.Children)
		out[i] = e
	}
	return out
}

// Reset drops memoized results.
func (m *Menu) Reset() {
	m.memo.Purge()
}
