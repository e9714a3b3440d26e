package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage the outreach message sequence",
}

var templatesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert message templates from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")

		tmpls, err := model.LoadTemplates(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, t := range tmpls {
			if err := st.UpsertTemplate(ctx, t); err != nil {
				return eris.Wrapf(err, "templates sync: order %d", t.Order)
			}
		}
		zap.L().Info("templates synced", zap.String("file", path), zap.Int("count", len(tmpls)))
		return nil
	},
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List message templates in send order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tmpls, err := st.ListTemplates(ctx)
		if err != nil {
			return eris.Wrap(err, "templates list")
		}
		if len(tmpls) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No templates found.")
			return nil
		}
		formatTemplates(cmd.OutOrStdout(), tmpls)
		return nil
	},
}

func formatTemplates(out io.Writer, tmpls []model.Template) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORDER\tCONTENT")
	_, _ = fmt.Fprintln(w, "-----\t-------")
	for _, t := range tmpls {
		content := strings.ReplaceAll(t.Content, "\n", " ")
		if len(content) > 72 {
			content = content[:69] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\n", t.Order, content)
	}
	_ = w.Flush()
}

func init() {
	templatesSyncCmd.Flags().String("file", "templates.yaml", "YAML file with the template sequence")

	templatesCmd.AddCommand(templatesSyncCmd)
	templatesCmd.AddCommand(templatesListCmd)
	rootCmd.AddCommand(templatesCmd)
}
