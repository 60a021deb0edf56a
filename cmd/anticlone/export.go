package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klirineu/offertrack-web/internal/logger"
	"github.com/klirineu/offertrack-web/internal/services/reports"
	"github.com/klirineu/offertrack-web/internal/shortid"
)

var exportOutFlag string

var exportCmd = &cobra.Command{
	Use:   "export <site id | short id>",
	Short: "List detected clones of a site, or write them to an .xlsx report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		site, err := findSite(ctx, store, args[0])
		if err != nil {
			return err
		}
		svc := reports.New(store, store)

		if exportOutFlag == "" {
			dets, err := svc.Detections(ctx, site.ID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Clones of %s (%s)\n", site.OriginalDomain, shortid.Encode(site.ID))
			fmt.Fprintln(w, "DOMAIN\tURL\tCOUNT\tFIRST SEEN\tLAST ACCESS")
			for _, d := range dets {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", d.CloneDomain, d.CloneURL, d.AccessCount,
					d.FirstSeenAt.Format("2006-01-02 15:04"), d.LastAccessAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		}

		f, err := os.Create(exportOutFlag)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOutFlag, err)
		}
		if err := svc.ExportXLSX(ctx, site, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("report for %s written to %s", site.OriginalDomain, exportOutFlag)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutFlag, "out", "o", "", "write an .xlsx report to this path")
	rootCmd.AddCommand(exportCmd)
}
