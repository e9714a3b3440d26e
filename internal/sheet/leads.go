package sheet

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// LeadRow is one lead parsed from an import file.
type LeadRow struct {
	Line         int
	URL          string
	Title        string
	HasPhoneHint bool
}

var headerAliases = map[string]string{
	"url":          "url",
	"link":         "url",
	"anuncio":      "url",
	"anúncio":      "url",
	"title":        "title",
	"titulo":       "title",
	"título":       "title",
	"has_phone":    "phone",
	"phone":        "phone",
	"telefone":     "phone",
	"tem_telefone": "phone",
}

// ParseLeads maps rows to leads. The first row must be a header naming at
// least a url column; title and has-phone columns are optional. Rows
// without a valid http(s) URL are returned as rejected line numbers.
func ParseLeads(rows [][]string) (leads []LeadRow, rejected []int, err error) {
	if len(rows) == 0 {
		return nil, nil, eris.New("sheet: empty file")
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	urlCol, ok := cols["url"]
	if !ok {
		return nil, nil, eris.Errorf("sheet: no url column in header %v", rows[0])
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for n, row := range rows[1:] {
		line := n + 2
		if urlCol >= len(row) || strings.TrimSpace(row[urlCol]) == "" {
			if isBlank(row) {
				continue
			}
			rejected = append(rejected, line)
			continue
		}
		raw := strings.TrimSpace(row[urlCol])
		if !validListingURL(raw) {
			rejected = append(rejected, line)
			continue
		}
		leads = append(leads, LeadRow{
			Line:         line,
			URL:          raw,
			Title:        cell(row, "title"),
			HasPhoneHint: truthy(cell(row, "phone")),
		})
	}
	return leads, rejected, nil
}

func validListingURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "sim", "s", "yes", "y", "x":
		return true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ImportReport counts the outcome of an import.
type ImportReport struct {
	Inserted   int   `json:"inserted"`
	Duplicates int   `json:"duplicates"`
	Rejected   []int `json:"rejected_lines,omitempty"`
}

// ImportLeads inserts rows into the inbox stage. Listings already present
// are counted as duplicates.
func ImportLeads(ctx context.Context, st store.Store, rows []LeadRow) (ImportReport, error) {
	var rep ImportReport
	for _, r := range rows {
		lead := &model.Lead{
			URL:           r.URL,
			Title:         r.Title,
			HasPhoneHint:  r.HasPhoneHint,
			PipelineStage: model.StageInbox,
			Contacts:      []model.Contact{},
		}
		if err := st.InsertLead(ctx, lead); err != nil {
			if eris.Is(err, store.ErrDuplicate) {
				rep.Duplicates++
				continue
			}
			return rep, eris.Wrapf(err, "sheet: import line %d", r.Line)
		}
		rep.Inserted++
	}
	zap.L().Info("sheet: leads imported",
		zap.Int("inserted", rep.Inserted),
		zap.Int("duplicates", rep.Duplicates),
	)
	return rep, nil
}
