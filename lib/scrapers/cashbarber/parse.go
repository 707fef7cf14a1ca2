package cashbarber

import (
	"cashsync/internal/domain"
	"cashsync/lib/htmlutil"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrTableNotFound = errors.New("subscriber table not found in report page")

const subscriberTable = "table.table-striped"

// ParseSubscribers reads the rows of the subscriber report. The trailing total
// row (a cell with colspan, or fewer than four cells) is skipped.
func ParseSubscribers(doc *goquery.Document) ([]domain.ScrapedRow, error) {
	table := doc.Find(subscriberTable).First()
	if table.Length() == 0 {
		return nil, ErrTableNotFound
	}

	rows := []domain.ScrapedRow{}
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 4 {
			return
		}
		if _, spans := cells.First().Attr("colspan"); spans {
			return
		}

		row := domain.ScrapedRow{
			RawName:   htmlutil.SelectionText(cells.Eq(0)),
			RawPlan:   htmlutil.SelectionText(cells.Eq(1)),
			RawStatus: htmlutil.SelectionText(cells.Eq(2)),
			CreatedAt: htmlutil.SelectionText(cells.Eq(3)),
		}
		if row.RawName == "" {
			return
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// TotalCount reads the panel's own subscriber count from the bold text in the
// last cell of the last row.
func TotalCount(doc *goquery.Document) (int, bool) {
	last := doc.Find(subscriberTable).First().Find("tbody tr").Last()
	bold := last.ChildrenFiltered("td").Last().Find("b")
	if bold.Length() == 0 {
		return 0, false
	}
	text := htmlutil.SelectionText(bold)
	text = strings.NewReplacer(".", "", ",", "").Replace(text)
	total, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return total, true
}

type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Stats struct {
	Total    int     `json:"total"`
	ByStatus []Count `json:"by_status"`
	ByPlan   []Count `json:"by_plan"`
}

func countBy(rows []domain.ScrapedRow, key func(domain.ScrapedRow) string) []Count {
	counts := map[string]int{}
	for _, r := range rows {
		counts[key(r)]++
	}
	out := make([]Count, 0, len(counts))
	for label, n := range counts {
		out = append(out, Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ComputeStats counts rows by status and by plan, most frequent first.
func ComputeStats(rows []domain.ScrapedRow) Stats {
	return Stats{
		Total:    len(rows),
		ByStatus: countBy(rows, func(r domain.ScrapedRow) string { return r.RawStatus }),
		ByPlan:   countBy(rows, func(r domain.ScrapedRow) string { return r.RawPlan }),
	}
}
