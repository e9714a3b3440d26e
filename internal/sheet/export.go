package sheet

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/store"
)

var exportHeader = []string{"lead_id", "url", "title", "origin", "digits", "primary"}

// ExportContacts writes one row per harvested contact to an .xlsx file and
// returns the number of contact rows written.
func ExportContacts(ctx context.Context, st store.Store, path string) (int, error) {
	leads, err := st.ListLeads(ctx, store.LeadFilter{HasContacts: true})
	if err != nil {
		return 0, eris.Wrap(err, "sheet: list leads")
	}

	f := xlsx.NewFile()
	sh, err := f.AddSheet("contacts")
	if err != nil {
		return 0, eris.Wrap(err, "sheet: add worksheet")
	}
	addRow(sh, exportHeader)

	n := 0
	for _, l := range leads {
		for _, c := range l.Contacts {
			primary := ""
			if c.Digits == l.PrimaryPhone {
				primary = "yes"
			}
			addRow(sh, []string{strconv.FormatInt(l.ID, 10), l.URL, l.Title, string(c.Origin), c.Digits, primary})
			n++
		}
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "sheet: save %s", path)
	}
	return n, nil
}

func addRow(sh *xlsx.Sheet, cells []string) {
	row := sh.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}
