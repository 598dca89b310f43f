package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect saved reviews",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reviews saved to the Firestore mirror, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		review, ctx, cancel, err := openReview(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer review.Close()

		docs, err := review.RemoteArchive(ctx)
		if err != nil {
			return err
		}
		return printArchive(cmd, docs)
	},
}

func printArchive(cmd *cobra.Command, docs []models.SavedDocument) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tREFERENCE\tCREATED")
	for _, d := range docs {
		ref := "-"
		if d.ReferenceDoc != nil {
			ref = d.ReferenceDoc.Title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.OutputKind, ref, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
