package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AdminUsername is the distinguished identity that passes every requirement.
const AdminUsername = "admin"

// Flag is the name of a single boolean capability on the user record.
type Flag string

const (
	// Invoice creation
	FlagCreateAddition   Flag = "invoices_can_create_addition"
	FlagCreateWithdrawal Flag = "invoices_can_create_withdrawal"
	FlagCreateReturn     Flag = "invoices_can_create_return"
	FlagCreateBooking    Flag = "invoices_can_create_booking"
	FlagCreateDamaged    Flag = "invoices_can_create_damaged"

	// Invoice visibility and actions
	FlagInvoicesView    Flag = "invoices_can_view"
	FlagInvoicesEdit    Flag = "invoices_can_edit"
	FlagInvoicesDelete  Flag = "invoices_can_delete"
	FlagInvoicesConfirm Flag = "invoices_can_confirm"
	FlagInvoicesRecover Flag = "invoices_can_recover"

	// Items
	FlagItemsAdd    Flag = "items_can_add"
	FlagItemsEdit   Flag = "items_can_edit"
	FlagItemsDelete Flag = "items_can_delete"

	// Machines
	FlagMachinesAdd    Flag = "machines_can_add"
	FlagMachinesEdit   Flag = "machines_can_edit"
	FlagMachinesDelete Flag = "machines_can_delete"

	// Mechanisms
	FlagMechanismsAdd    Flag = "mechanisms_can_add"
	FlagMechanismsEdit   Flag = "mechanisms_can_edit"
	FlagMechanismsDelete Flag = "mechanisms_can_delete"

	// Suppliers
	FlagSuppliersAdd    Flag = "suppliers_can_add"
	FlagSuppliersEdit   Flag = "suppliers_can_edit"
	FlagSuppliersDelete Flag = "suppliers_can_delete"

	// Reports
	FlagReportsView Flag = "reports_can_view"
)

var allFlags = []Flag{
	FlagCreateAddition,
	FlagCreateWithdrawal,
	FlagCreateReturn,
	FlagCreateBooking,
	FlagCreateDamaged,
	FlagInvoicesView,
	FlagInvoicesEdit,
	FlagInvoicesDelete,
	FlagInvoicesConfirm,
	FlagInvoicesRecover,
	FlagItemsAdd,
	FlagItemsEdit,
	FlagItemsDelete,
	FlagMachinesAdd,
	FlagMachinesEdit,
	FlagMachinesDelete,
	FlagMechanismsAdd,
	FlagMechanismsEdit,
	FlagMechanismsDelete,
	FlagSuppliersAdd,
	FlagSuppliersEdit,
	FlagSuppliersDelete,
	FlagReportsView,
}

var knownFlags = func() map[Flag]struct{} {
	m := make(map[Flag]struct{}, len(allFlags))
	for _, f := range allFlags {
		m[f] = struct{}{}
	}
	return m
}()

// KnownFlags returns the full flag vocabulary, sorted by name.
func KnownFlags() []Flag {
	flags := make([]Flag, 0, len(knownFlags))
	for f := range knownFlags {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags
}

// Valid reports whether f belongs to the flag vocabulary.
func (f Flag) Valid() bool {
	_, ok := knownFlags[f]
	return ok
}

// ParseFlag converts a flag name into a Flag, rejecting unknown names.
func ParseFlag(name string) (Flag, error) {
	f := Flag(strings.TrimSpace(name))
	if !f.Valid() {
		return "", fmt.Errorf("unknown permission flag %q", name)
	}
	return f, nil
}

// ParseFlags converts a list of names, failing on the first unknown one.
func ParseFlags(names []string) ([]Flag, error) {
	flags := make([]Flag, 0, len(names))
	for _, name := range names {
		f, err := ParseFlag(name)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, nil
}

// User is the permission record of the logged-in user as returned by the backend.
type User struct {
	ID          int
	Username    string
	JobName     string
	PhoneNumber string
	Flags       map[Flag]bool
}

// Has reports whether the flag is set on the record. Admin status is not
// considered here; use Evaluate for access decisions.
func (u *User) Has(f Flag) bool {
	if u == nil {
		return false
	}
	return u.Flags[f]
}

// Clone returns a deep copy of the record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Flags = make(map[Flag]bool, len(u.Flags))
	for f, v := range u.Flags {
		c.Flags[f] = v
	}
	return &c
}

// UnmarshalJSON decodes the backend's flat record. Known flag keys fill
// Flags; unknown keys are ignored and non-boolean flag values count as false.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode user record: %w", err)
	}

	*u = User{Flags: make(map[Flag]bool)}
	for key, value := range raw {
		switch key {
		case "id":
			if err := json.Unmarshal(value, &u.ID); err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
		case "username":
			if err := json.Unmarshal(value, &u.Username); err != nil {
				return fmt.Errorf("invalid username: %w", err)
			}
		// Descriptive fields never affect access; a non-string value is dropped.
		case "job_name":
			if err := json.Unmarshal(value, &u.JobName); err != nil {
				u.JobName = ""
			}
		case "phone_number":
			if err := json.Unmarshal(value, &u.PhoneNumber); err != nil {
				u.PhoneNumber = ""
			}
		default:
			f := Flag(key)
			if !f.Valid() {
				continue
			}
			var granted bool
			if err := json.Unmarshal(value, &granted); err != nil {
				granted = false
			}
			u.Flags[f] = granted
		}
	}
	return nil
}

// MarshalJSON encodes the record back into the flat backend shape.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(u.Flags)+4)
	out["id"] = u.ID
	out["username"] = u.Username
	out["job_name"] = u.JobName
	out["phone_number"] = u.PhoneNumber
	for f, v := range u.Flags {
		out[string(f)] = v
	}
	return json.Marshal(out)
}

// RequirementKind selects how a Requirement combines its flags.
type RequirementKind string

const (
	RequireNone  RequirementKind = "none"
	RequireAdmin RequirementKind = "admin"
	RequireAllOf RequirementKind = "all_of"
	RequireAnyOf RequirementKind = "any_of"
)

// Requirement is a declarative permission requirement attached to a route or
// a navigation entry. The zero value requires nothing beyond a session.
type Requirement struct {
	Kind  RequirementKind `json:"kind,omitempty"`
	Flags []Flag          `json:"flags,omitempty"`
}

// None requires only an authenticated user.
func None() Requirement { return Requirement{Kind: RequireNone} }

// AdminOnly requires the admin identity.
func AdminOnly() Requirement { return Requirement{Kind: RequireAdmin} }

// AllOf requires every flag.
func AllOf(flags ...Flag) Requirement { return Requirement{Kind: RequireAllOf, Flags: flags} }

// AnyOf requires at least one flag.
func AnyOf(flags ...Flag) Requirement { return Requirement{Kind: RequireAnyOf, Flags: flags} }

// ParseRequirement builds a requirement from its textual kind and flag names,
// as written in Caddyfile directives and CLI flags.
func ParseRequirement(kind string, names []string) (Requirement, error) {
	k := RequirementKind(strings.ToLower(strings.ReplaceAll(kind, "-", "_")))
	switch k {
	case "", RequireNone:
		if len(names) > 0 {
			return Requirement{}, fmt.Errorf("requirement %q takes no flags", kind)
		}
		return None(), nil
	case RequireAdmin:
		if len(names) > 0 {
			return Requirement{}, fmt.Errorf("requirement %q takes no flags", kind)
		}
		return AdminOnly(), nil
	case RequireAllOf, RequireAnyOf:
		flags, err := ParseFlags(names)
		if err != nil {
			return Requirement{}, err
		}
		return Requirement{Kind: k, Flags: flags}, nil
	default:
		return Requirement{}, fmt.Errorf("unknown requirement kind %q", kind)
	}
}

// Validate checks that the kind is known and every flag is in the vocabulary.
func (r Requirement) Validate() error {
	switch r.Kind {
	case "", RequireNone, RequireAdmin:
		if len(r.Flags) > 0 {
			return fmt.Errorf("requirement %q takes no flags", r.Kind)
		}
	case RequireAllOf, RequireAnyOf:
		for _, f := range r.Flags {
			if !f.Valid() {
				return fmt.Errorf("unknown permission flag %q", f)
			}
		}
	default:
		return fmt.Errorf("unknown requirement kind %q", r.Kind)
	}
	return nil
}

func (r Requirement) String() string {
	switch r.Kind {
	case "", RequireNone:
		return "none"
	case RequireAdmin:
		return "admin"
	}
	names := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s(%s)", r.Kind, strings.Join(names, ","))
}
