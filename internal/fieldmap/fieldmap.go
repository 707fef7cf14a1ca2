package fieldmap

import (
	"cashsync/internal/domain"
	"cashsync/lib/textutil"
	"fmt"
	"strings"
)

const (
	KindPlan   = "plan"
	KindStatus = "status"
)

// UnmappedLabelError is returned in strict mode for a panel label that has no
// entry in the configured table.
type UnmappedLabelError struct {
	Kind  string
	Label string
}

func (e *UnmappedLabelError) Error() string {
	return fmt.Sprintf("unmapped %s label %q", e.Kind, e.Label)
}

// DefaultStatuses is the status vocabulary of the subscriber report.
func DefaultStatuses() map[string]string {
	return map[string]string{
		"Em dia":             "ativo",
		"Pagamento recusado": "inadimplente",
		"Cancelado":          "cancelado",
		"Pendente":           "pendente",
	}
}

type table struct {
	exact  map[string]string
	folded map[string]string
}

func newTable(entries map[string]string) table {
	t := table{
		exact:  make(map[string]string, len(entries)),
		folded: make(map[string]string, len(entries)),
	}
	for k, v := range entries {
		k = strings.TrimSpace(k)
		t.exact[k] = v
		t.folded[textutil.NormalizeName(k)] = v
	}
	return t
}

func (t table) lookup(label string) (string, bool) {
	if v, ok := t.exact[label]; ok {
		return v, true
	}
	v, ok := t.folded[textutil.NormalizeName(label)]
	return v, ok
}

// Mapper translates panel plan/status labels into the vocabulary of the
// customer table. Lookups are exact first, then case and accent insensitive.
type Mapper struct {
	plans    table
	statuses table
	strict   bool
}

type Options struct {
	Plans    map[string]string
	Statuses map[string]string
	Strict   bool
}

func New(opts Options) Mapper {
	return Mapper{
		plans:    newTable(opts.Plans),
		statuses: newTable(opts.Statuses),
		strict:   opts.Strict,
	}
}

func (m Mapper) translate(kind string, t table, raw string) (value string, mapped bool, err error) {
	label := strings.TrimSpace(raw)
	if v, ok := t.lookup(label); ok {
		return v, true, nil
	}
	if m.strict {
		return "", false, &UnmappedLabelError{Kind: kind, Label: label}
	}
	return label, false, nil
}

// MapPlan returns the stored plan for a panel plan label. In lenient mode an
// unknown label is returned as is.
func (m Mapper) MapPlan(raw string) (string, error) {
	v, _, err := m.translate(KindPlan, m.plans, raw)
	return v, err
}

// MapStatus returns the stored status for a panel status label. In lenient
// mode an unknown label is returned as is.
func (m Mapper) MapStatus(raw string) (string, error) {
	v, _, err := m.translate(KindStatus, m.statuses, raw)
	return v, err
}

type Mapped struct {
	Plan   string
	Status string
	// Unmapped lists the kinds (KindPlan, KindStatus) that were passed through
	// unchanged in lenient mode.
	Unmapped []string
}

// Map translates both labels of a row. The first strict mode failure is returned.
func (m Mapper) Map(row domain.ScrapedRow) (Mapped, error) {
	var out Mapped

	plan, ok, err := m.translate(KindPlan, m.plans, row.RawPlan)
	if err != nil {
		return Mapped{}, err
	}
	if !ok {
		out.Unmapped = append(out.Unmapped, KindPlan)
	}
	out.Plan = plan

	status, ok, err := m.translate(KindStatus, m.statuses, row.RawStatus)
	if err != nil {
		return Mapped{}, err
	}
	if !ok {
		out.Unmapped = append(out.Unmapped, KindStatus)
	}
	out.Status = status

	return out, nil
}
