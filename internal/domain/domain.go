package domain

import (
	"time"
)

// ScrapedRow is one line of the panel's subscriber report, as displayed.
type ScrapedRow struct {
	RawName   string `json:"raw_name"`
	RawPlan   string `json:"raw_plan"`
	RawStatus string `json:"raw_status"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Customer is a record of the customer table. Only ID, Name, Plan, Status and
// LastContact are read by the sync, everything else is carried in Extra untouched.
type Customer struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Plan        string         `json:"plan"`
	Status      string         `json:"status"`
	LastContact time.Time      `json:"last_contact"`
	Extra       map[string]any `json:"-"`
}

// logical field names, stores translate them through Columns
const (
	FieldPlan        = "plan"
	FieldStatus      = "status"
	FieldLastContact = "last_contact"
)

type Fields map[string]any

type UpdatePlan struct {
	CustomerID string `json:"customer_id"`
	Fields     Fields `json:"fields"`
}

// Columns maps the logical customer fields to the column names of a table.
type Columns struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Plan        string `json:"plan"`
	Status      string `json:"status"`
	LastContact string `json:"last_contact"`
}

// DefaultColumns is the layout of the "clientes" table the panel sync was built for.
func DefaultColumns() Columns {
	return Columns{
		ID:          "id",
		Name:        "nome",
		Plan:        "plano_atual",
		Status:      "status_assinatura",
		LastContact: "ultima_sincronizacao",
	}
}

// WithDefaults fills every empty column name from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Plan == "" {
		c.Plan = d.Plan
	}
	if c.Status == "" {
		c.Status = d.Status
	}
	if c.LastContact == "" {
		c.LastContact = d.LastContact
	}
	return c
}

// Column returns the column a logical field is stored in, or "" for unknown fields.
func (c Columns) Column(field string) string {
	switch field {
	case FieldPlan:
		return c.Plan
	case FieldStatus:
		return c.Status
	case FieldLastContact:
		return c.LastContact
	}
	return ""
}
