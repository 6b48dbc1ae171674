// Package review exports plans that need an operator's attention. Nothing in
// this package writes to the catalog.
package review

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/plansync/internal/model"
)

// Sheet names written by WriteWorkbook.
const (
	SheetSummary  = "Summary"
	SheetNewPlans = "New Plans"
	SheetChanges  = "Changes"
)

var newPlanHeader = []string{
	"Provider", "Plan", "Class", "Contract Months", "Rate 500", "Rate 1000", "Rate 2000",
	"Renewable %", "Base Fee", "Early Exit Fee", "Facts Label", "Terms of Service", "Your Rights",
	"Provenance", "Requires Verification", "Region", "Missing Documents",
}

var changeHeader = []string{"Kind", "Entry ID", "Provider", "Plan", "Old Rate", "New Rate", "Note"}

// WriteWorkbook saves the session as an XLSX workbook at path: a summary
// sheet, the new plans awaiting manual entry with every collected field, and
// the updated and removed plans.
func WriteWorkbook(path string, sess *model.Session) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "review: add summary sheet")
	}
	completed := ""
	if sess.CompletedAt != nil {
		completed = sess.CompletedAt.Format("2006-01-02 15:04:05")
	}
	for _, kv := range [][]string{
		{"Session", sess.ID},
		{"Mode", string(sess.Mode)},
		{"Status", string(sess.Status)},
		{"Started", sess.StartedAt.Format("2006-01-02 15:04:05")},
		{"Completed", completed},
		{"Provenance", string(sess.Provenance)},
		{"Total Plans", strconv.Itoa(sess.TotalPlansFound)},
		{"Unique Plans", strconv.Itoa(sess.UniquePlans)},
		{"New", strconv.Itoa(len(sess.NewPlans))},
		{"Updated", strconv.Itoa(len(sess.UpdatedPlans))},
		{"Removed", strconv.Itoa(len(sess.RemovedPlans))},
	} {
		addStringRow(summary, kv)
	}

	plans, err := f.AddSheet(SheetNewPlans)
	if err != nil {
		return eris.Wrap(err, "review: add new plans sheet")
	}
	addStringRow(plans, newPlanHeader)
	for _, c := range sess.NewPlans {
		addNewPlanRow(plans, c)
	}

	changes, err := f.AddSheet(SheetChanges)
	if err != nil {
		return eris.Wrap(err, "review: add changes sheet")
	}
	addStringRow(changes, changeHeader)
	for _, c := range sess.UpdatedPlans {
		addChangeRow(changes, c)
	}
	for _, c := range sess.RemovedPlans {
		addChangeRow(changes, c)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "review: save workbook %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addNewPlanRow(sheet *xlsx.Sheet, c model.ChangeRecord) {
	row := sheet.AddRow()
	if c.Source == nil {
		row.AddCell().SetString(c.ProviderName)
		row.AddCell().SetString(c.PlanName)
		return
	}
	s := c.Source
	row.AddCell().SetString(s.ProviderName)
	row.AddCell().SetString(s.PlanName)
	row.AddCell().SetString(string(s.Class))
	row.AddCell().SetInt(s.ContractMonths)
	row.AddCell().SetFloat(s.Rates.Rate500)
	row.AddCell().SetFloat(s.Rates.Rate1000)
	row.AddCell().SetFloat(s.Rates.Rate2000)
	row.AddCell().SetFloat(s.RenewablePct)
	row.AddCell().SetFloat(s.Fees.BaseMonthly)
	row.AddCell().SetFloat(s.Fees.EarlyExit)
	row.AddCell().SetString(s.Documents.FactsLabel)
	row.AddCell().SetString(s.Documents.TermsOfService)
	row.AddCell().SetString(s.Documents.YourRights)
	row.AddCell().SetString(string(s.Provenance))
	row.AddCell().SetBool(s.RequiresVerification)
	row.AddCell().SetString(s.RegionID)
	row.AddCell().SetString(yesNo(s.Documents.Empty()))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func addChangeRow(sheet *xlsx.Sheet, c model.ChangeRecord) {
	row := sheet.AddRow()
	row.AddCell().SetString(string(c.Kind))
	row.AddCell().SetInt64(c.EntryID)
	row.AddCell().SetString(c.ProviderName)
	row.AddCell().SetString(c.PlanName)
	rateCell(row, c.OldRate)
	rateCell(row, c.NewRate)
	row.AddCell().SetString(c.Note)
}

func rateCell(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v == nil {
		cell.SetString("")
		return
	}
	cell.SetFloat(*v)
}
