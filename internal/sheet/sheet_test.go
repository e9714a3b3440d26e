package sheet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sh, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, r := range rows {
			addRow(sh, r)
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadRows_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Leads": {
			{"url", "titulo"},
			{"https://sp.olx.com.br/anuncio/1", "Sofá"},
		},
	})

	rows, err := ReadRows(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"url", "titulo"}, {"https://sp.olx.com.br/anuncio/1", "Sofá"}}, rows)

	rows, err = ReadRows(path, ReadOptions{SheetName: "Leads"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadRows(path, ReadOptions{SheetName: "Missing"})
	assert.Error(t, err)

	_, err = ReadRows(path, ReadOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestReadRows_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(path, []byte("link,telefone\nhttps://olx.com.br/a,sim\nhttps://olx.com.br/b\n"), 0o644))

	rows, err := ReadRows(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"link", "telefone"}, {"https://olx.com.br/a", "sim"}, {"https://olx.com.br/b"}}, rows)
}

func TestReadRows_Unsupported(t *testing.T) {
	_, err := ReadRows("leads.ods", ReadOptions{})
	assert.Error(t, err)
}

func TestParseLeads(t *testing.T) {
	rows := [][]string{
		{"Título", "URL", "Tem_Telefone"},
		{"Sofá retrátil", "https://sp.olx.com.br/anuncio/1", "sim"},
		{"Mesa", " https://sp.olx.com.br/anuncio/2 ", ""},
		{"", "", ""},
		{"Sem link", "", "true"},
		{"Inválido", "not a url", "no"},
		{"Cadeira"},
	}

	leads, rejected, err := ParseLeads(rows)
	require.NoError(t, err)
	assert.Equal(t, []LeadRow{
		{Line: 2, URL: "https://sp.olx.com.br/anuncio/1", Title: "Sofá retrátil", HasPhoneHint: true},
		{Line: 3, URL: "https://sp.olx.com.br/anuncio/2", Title: "Mesa"},
	}, leads)
	assert.Equal(t, []int{5, 6, 7}, rejected)
}

func TestParseLeads_NoURLColumn(t *testing.T) {
	_, _, err := ParseLeads([][]string{{"name", "phone"}})
	assert.Error(t, err)

	_, _, err = ParseLeads(nil)
	assert.Error(t, err)
}

func TestImportLeads(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.InsertLead(ctx, &model.Lead{URL: "https://olx.com.br/existing"}))

	rep, err := ImportLeads(ctx, st, []LeadRow{
		{Line: 2, URL: "https://olx.com.br/new", Title: "Bicicleta", HasPhoneHint: true},
		{Line: 3, URL: "https://olx.com.br/existing"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 1, rep.Duplicates)

	leads, err := st.ListLeads(ctx, store.LeadFilter{PipelineStage: model.StageInbox, Order: store.OrderByPriority})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "https://olx.com.br/new", leads[0].URL)
	assert.True(t, leads[0].HasPhoneHint)
	assert.False(t, leads[0].PhoneSearched)
}

func TestExportContacts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.InsertLead(ctx, &model.Lead{
		URL:           "https://olx.com.br/a",
		Title:         "Geladeira",
		PhoneSearched: true,
		PrimaryPhone:  "11987654321",
		Contacts: []model.Contact{
			{Digits: "11987654321", Origin: model.OriginButton},
			{Digits: "1132210000", Origin: model.OriginDescription},
		},
	}))
	require.NoError(t, st.InsertLead(ctx, &model.Lead{URL: "https://olx.com.br/b", PhoneSearched: true}))

	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	n, err := ExportContacts(ctx, st, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := ReadRows(path, ReadOptions{SheetName: "contacts"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{"1", "https://olx.com.br/a", "Geladeira", "button", "11987654321", "yes"}, rows[1])
	require.GreaterOrEqual(t, len(rows[2]), 5)
	assert.Equal(t, []string{"1", "https://olx.com.br/a", "Geladeira", "description", "1132210000"}, rows[2][:5])
}
