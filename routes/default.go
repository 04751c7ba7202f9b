package routes

import (
	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/nav"
)

var (
	itemsAccess      = auth.AnyOf(auth.FlagItemsAdd, auth.FlagItemsEdit, auth.FlagItemsDelete)
	machinesAccess   = auth.AnyOf(auth.FlagMachinesAdd, auth.FlagMachinesEdit, auth.FlagMachinesDelete)
	mechanismsAccess = auth.AnyOf(auth.FlagMechanismsAdd, auth.FlagMechanismsEdit, auth.FlagMechanismsDelete)
	suppliersAccess  = auth.AnyOf(auth.FlagSuppliersAdd, auth.FlagSuppliersEdit, auth.FlagSuppliersDelete)
	invoiceCreation  = auth.AnyOf(
		auth.FlagCreateAddition,
		auth.FlagCreateWithdrawal,
		auth.FlagCreateReturn,
		auth.FlagCreateBooking,
		auth.FlagCreateDamaged,
	)
	invoiceReview = auth.AnyOf(
		auth.FlagInvoicesView,
		auth.FlagInvoicesEdit,
		auth.FlagInvoicesDelete,
		auth.FlagInvoicesConfirm,
		auth.FlagInvoicesRecover,
	)
)

// DefaultRoutes returns the page declarations of the inventory application.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "dashboard", Path: "/", Requirement: auth.None()},
		{Name: "profile", Path: "/profile", Requirement: auth.None()},

		{Name: "items", Path: "/items", Requirement: itemsAccess},
		{Name: "item-new", Path: "/items/new", Requirement: auth.AllOf(auth.FlagItemsAdd), Fallback: "/items"},
		{Name: "item-edit", Path: "/items/:id/edit", Requirement: auth.AllOf(auth.FlagItemsEdit), Fallback: "/items"},
		{Name: "machines", Path: "/machines", Requirement: machinesAccess},
		{Name: "machine-new", Path: "/machines/new", Requirement: auth.AllOf(auth.FlagMachinesAdd), Fallback: "/machines"},
		{Name: "machine-edit", Path: "/machines/:id/edit", Requirement: auth.AllOf(auth.FlagMachinesEdit), Fallback: "/machines"},
		{Name: "mechanisms", Path: "/mechanisms", Requirement: mechanismsAccess},
		{Name: "mechanism-new", Path: "/mechanisms/new", Requirement: auth.AllOf(auth.FlagMechanismsAdd), Fallback: "/mechanisms"},
		{Name: "mechanism-edit", Path: "/mechanisms/:id/edit", Requirement: auth.AllOf(auth.FlagMechanismsEdit), Fallback: "/mechanisms"},
		{Name: "suppliers", Path: "/suppliers", Requirement: suppliersAccess},
		{Name: "supplier-new", Path: "/suppliers/new", Requirement: auth.AllOf(auth.FlagSuppliersAdd), Fallback: "/suppliers"},
		{Name: "supplier-edit", Path: "/suppliers/:id/edit", Requirement: auth.AllOf(auth.FlagSuppliersEdit), Fallback: "/suppliers"},

		{Name: "users", Path: "/users", Requirement: auth.AdminOnly()},
		{Name: "user-new", Path: "/users/new", Requirement: auth.AdminOnly()},
		{Name: "user-edit", Path: "/users/:id/edit", Requirement: auth.AdminOnly()},

		{Name: "invoices", Path: "/invoices", Requirement: invoiceReview},
		{Name: "invoice-detail", Path: "/invoices/:id", Requirement: auth.AllOf(auth.FlagInvoicesView)},
		{Name: "invoice-edit", Path: "/invoices/:id/edit", Requirement: auth.AllOf(auth.FlagInvoicesEdit), Fallback: "/invoices"},
		{Name: "invoice-new", Path: "/invoices/new", Requirement: invoiceCreation},
		{Name: "invoice-new-addition", Path: "/invoices/new/addition", Requirement: auth.AllOf(auth.FlagCreateAddition)},
		{Name: "invoice-new-withdrawal", Path: "/invoices/new/withdrawal", Requirement: auth.AllOf(auth.FlagCreateWithdrawal)},
		{Name: "invoice-new-return", Path: "/invoices/new/return", Requirement: auth.AllOf(auth.FlagCreateReturn)},
		{Name: "invoice-new-booking", Path: "/invoices/new/booking", Requirement: auth.AllOf(auth.FlagCreateBooking)},
		{Name: "invoice-new-damaged", Path: "/invoices/new/damaged", Requirement: auth.AllOf(auth.FlagCreateDamaged)},

		{Name: "reports", Path: "/reports", Requirement: auth.AllOf(auth.FlagReportsView)},
	}
}

// Default returns the table of DefaultRoutes.
func Default() *Table {
	t, err := NewTable(DefaultRoutes()...)
	if err != nil {
		// the declarations above are static
		panic(err)
	}
	return t
}

func req(r auth.Requirement) *auth.Requirement { return &r }

// DefaultMenu returns the navigation tree matching DefaultRoutes.
func DefaultMenu() []nav.Entry {
	return []nav.Entry{
		{Key: "dashboard", Label: "Dashboard", Path: "/"},
		{
			Key:   "resources",
			Label: "Resources",
			Children: []nav.Entry{
				{Key: "items", Label: "Items", Path: "/items", Requirement: req(itemsAccess)},
				{Key: "machines", Label: "Machines", Path: "/machines", Requirement: req(machinesAccess)},
				{Key: "mechanisms", Label: "Mechanisms", Path: "/mechanisms", Requirement: req(mechanismsAccess)},
				{Key: "suppliers", Label: "Suppliers", Path: "/suppliers", Requirement: req(suppliersAccess)},
			},
		},
		{
			Key:   "invoices",
			Label: "Invoices",
			Children: []nav.Entry{
				{Key: "invoices-list", Label: "All invoices", Path: "/invoices", Requirement: req(invoiceReview)},
				{Key: "invoice-addition", Label: "New addition", Path: "/invoices/new/addition", Requirement: req(auth.AllOf(auth.FlagCreateAddition))},
				{Key: "invoice-withdrawal", Label: "New withdrawal", Path: "/invoices/new/withdrawal", Requirement: req(auth.AllOf(auth.FlagCreateWithdrawal))},
				{Key: "invoice-return", Label: "New return", Path: "/invoices/new/return", Requirement: req(auth.AllOf(auth.FlagCreateReturn))},
				{Key: "invoice-booking", Label: "New booking", Path: "/invoices/new/booking", Requirement: req(auth.AllOf(auth.FlagCreateBooking))},
				{Key: "invoice-damaged", Label: "New damaged", Path: "/invoices/new/damaged", Requirement: req(auth.AllOf(auth.FlagCreateDamaged))},
			},
		},
		{Key: "reports", Label: "Reports", Path: "/reports", Requirement: req(auth.AllOf(auth.FlagReportsView))},
		{Key: "users", Label: "Users", Path: "/users", Requirement: req(auth.AdminOnly())},
	}
}
