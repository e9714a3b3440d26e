package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/sheet"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Import listings and export harvested contacts",
}

var leadsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import listing URLs from an .xlsx or .csv file into the inbox",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")
		sheetName, _ := cmd.Flags().GetString("sheet")
		sheetIndex, _ := cmd.Flags().GetInt("sheet-index")

		rows, err := sheet.ReadRows(path, sheet.ReadOptions{SheetName: sheetName, SheetIndex: sheetIndex})
		if err != nil {
			return err
		}
		leads, rejected, err := sheet.ParseLeads(rows)
		if err != nil {
			return err
		}
		for _, line := range rejected {
			zap.L().Warn("skipping row without a valid listing url", zap.Int("line", line))
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := sheet.ImportLeads(ctx, st, leads)
		if err != nil {
			return eris.Wrap(err, "leads import")
		}
		rep.Rejected = rejected
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every harvested contact to an .xlsx file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := sheet.ExportContacts(ctx, st, out)
		if err != nil {
			return eris.Wrap(err, "leads export")
		}
		zap.L().Info("contacts exported", zap.String("file", out), zap.Int("contacts", n))
		return nil
	},
}

func init() {
	leadsImportCmd.Flags().String("file", "", "spreadsheet with a url column (required)")
	leadsImportCmd.Flags().String("sheet", "", "worksheet name (default first sheet)")
	leadsImportCmd.Flags().Int("sheet-index", 0, "worksheet index when --sheet is not set")
	_ = leadsImportCmd.MarkFlagRequired("file")

	leadsExportCmd.Flags().String("out", "contacts.xlsx", "output .xlsx path")

	leadsCmd.AddCommand(leadsImportCmd)
	leadsCmd.AddCommand(leadsExportCmd)
	rootCmd.AddCommand(leadsCmd)
}
