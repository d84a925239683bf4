// Package renderer renders the views of a Book as markdown.
package renderer

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
)

//go:embed templates/*.md
var templatesFS embed.FS

var templates = must(fs.Sub(templatesFS, "templates"))

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// SectorTable is the data of the sectors template.
type SectorTable struct {
	Rows  []tradehistory.SectorRow
	Total tradehistory.Money
}

var funcs = template.FuncMap{
	// cell makes a value safe inside a table cell.
	"cell": func(v any) string {
		s := strings.ReplaceAll(fmt.Sprint(v), "|", `\|`)
		return strings.Join(strings.Fields(s), " ")
	},
	"day": func(d date.Date) string {
		if d.IsZero() {
			return "-"
		}
		return d.String()
	},
	"nullQty": func(q tradehistory.NullQuantity) string {
		if !q.Valid {
			return "-"
		}
		return q.String()
	},
	"percent": func(p float64) string { return fmt.Sprintf("%.2f%%", p) },
	"status": func(r tradehistory.MonthlyRow) string {
		switch r.Status {
		case tradehistory.StatusWarning:
			return "⚠ warning"
		case tradehistory.StatusMissingSnapshot:
			if err := r.Err(); errors.Is(err, tradehistory.ErrMissingStatementMetric) {
				return "missing " + strings.TrimPrefix(err.Error(), tradehistory.ErrMissingStatementMetric.Error()+": ")
			}
			return "missing snapshot"
		}
		return string(r.Status)
	},
	"pageInfo": func(page, size, total int) string {
		if size <= 0 {
			return fmt.Sprintf("%d item(s).", total)
		}
		pages := max((total+size-1)/size, 1)
		return fmt.Sprintf("Page %d of %d, %d item(s).", page, pages, total)
	},
	"sectorTable": func(rows []tradehistory.SectorRow, total tradehistory.Money) SectorTable {
		return SectorTable{Rows: rows, Total: total}
	},
}

// partials maps template names to their file; every view can be used as a
// partial of another.
var partials = map[string]string{
	"closed":      "closed.md",
	"warnings":    "warnings.md",
	"events":      "events.md",
	"valuation":   "valuation.md",
	"sectors":     "sectors.md",
	"recon":       "recon.md",
	"recon_lines": "recon_lines.md",
	"catalog":     "catalog.md",
}

// RenderClosed renders a page of closed lots followed by the matching warnings.
func RenderClosed(page tradehistory.Page[tradehistory.ClosedPositionLot], warnings []tradehistory.Warning) string {
	return renderTemplate("closed", page) + "\n" + renderTemplate("warnings", warnings)
}

// RenderEvents renders a page of ledger events.
func RenderEvents(page tradehistory.Page[tradehistory.EventRow]) string {
	return renderTemplate("events", page)
}

// RenderValuation renders grouped positions.
func RenderValuation(v tradehistory.Valuation) string {
	return renderTemplate("valuation", v)
}

// RenderSectors renders the sector breakdown.
func RenderSectors(rows []tradehistory.SectorRow, total tradehistory.Money) string {
	return renderTemplate("sectors", SectorTable{Rows: rows, Total: total})
}

// RenderReconciliation renders monthly reconciliation rows.
func RenderReconciliation(rows []tradehistory.MonthlyRow) string {
	return renderTemplate("recon", rows)
}

// RenderSnapshotLines renders the statement lines behind one row.
func RenderSnapshotLines(lines []tradehistory.SnapshotLineView) string {
	return renderTemplate("recon_lines", lines)
}

// RenderCatalog renders the symbol catalog.
func RenderCatalog(entries []tradehistory.CatalogEntry) string {
	return renderTemplate("catalog", entries)
}

// RenderReport renders all the views of a report.
func RenderReport(r *tradehistory.Report) string {
	return renderFile("report", "report.md", r)
}

func renderTemplate(name string, data any) string {
	return renderFile(name, partials[name], data)
}

// renderFile renders mainFile with every partial available to it.
func renderFile(templateName, mainFile string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}
	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}
	for name, file := range partials {
		if name == templateName {
			continue
		}
		content, err := fs.ReadFile(templates, file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
