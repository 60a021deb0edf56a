package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/services/sites"
	"github.com/klirineu/offertrack-web/internal/shortid"
)

var (
	sitesAddDomain string
	sitesAddAction string
	sitesAddTarget string
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage protected sites",
}

var sitesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a protected site and print its embed snippet",
	Example: `  anticlone sites add --domain brand.example --action replace_links --target https://brand.example/offer
  anticlone sites add --domain https://brand.example --action redirect --target https://brand.example`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if sitesAddAction != "" && domain.ParseActionType(sitesAddAction) == domain.ActionNone && sitesAddAction != string(domain.ActionNone) {
			return fmt.Errorf("unknown action %q (redirect, replace_links, replace_images or none)", sitesAddAction)
		}
		svc := sites.New(store, cfg.PublicBaseURL, cfg.ScriptPath)
		site, err := svc.Register(ctx, sitesAddDomain, domain.Countermeasure{
			Type:   domain.ParseActionType(sitesAddAction),
			Target: sitesAddTarget,
		})
		if err != nil {
			return err
		}
		fmt.Printf("id:       %s\nshort id: %s\n\n%s\n", site.ID, shortid.Encode(site.ID), svc.Snippet(site))
		return nil
	},
}

var sitesListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List protected sites",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		all, err := store.ListSites(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No protected sites.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSHORT\tDOMAIN\tACTION\tTARGET\tCREATED")
		for _, s := range all {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, shortid.Encode(s.ID), s.OriginalDomain,
				s.Countermeasure.Type, s.Countermeasure.Target, s.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var sitesSnippetCmd = &cobra.Command{
	Use:   "snippet <site id | short id>",
	Short: "Print the script tag for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		site, err := findSite(ctx, store, args[0])
		if err != nil {
			return err
		}
		fmt.Println(sites.New(store, cfg.PublicBaseURL, cfg.ScriptPath).Snippet(site))
		return nil
	},
}

func init() {
	sitesAddCmd.Flags().StringVar(&sitesAddDomain, "domain", "", "original domain of the site (required)")
	sitesAddCmd.Flags().StringVar(&sitesAddAction, "action", "none", "countermeasure: redirect, replace_links, replace_images or none")
	sitesAddCmd.Flags().StringVar(&sitesAddTarget, "target", "", "countermeasure target url")
	_ = sitesAddCmd.MarkFlagRequired("domain")

	sitesCmd.AddCommand(sitesAddCmd, sitesListCmd, sitesSnippetCmd)
	rootCmd.AddCommand(sitesCmd)
}
