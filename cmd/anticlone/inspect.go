package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/klirineu/offertrack-web/internal/beacon"
	"github.com/klirineu/offertrack-web/internal/countermeasure"
)

var (
	inspectServerFlag     string
	inspectScriptPathFlag string
	inspectAsFlag         string
	inspectHTMLFlag       bool
	inspectTimeoutFlag    time.Duration
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <page url>",
	Short: "Load a page, run its beacon against a verification server and show the outcome",
	Long: `inspect fetches a page, finds the anticlone script tag, performs the same
verification the beacon would and applies the returned countermeasure to the
fetched document. --as pretends the page was served from another url, which is
how a clone of a protected page can be simulated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeoutFlag)
		defer cancel()

		doc, err := fetchDocument(ctx, args[0])
		if err != nil {
			return err
		}
		if inspectAsFlag != "" {
			doc.Navigate(inspectAsFlag)
		}

		base := inspectServerFlag
		if base == "" {
			src, ok := beacon.FindScript(doc, inspectScriptPathFlag)
			if !ok {
				fmt.Println("no beacon script on page")
				return nil
			}
			base = src.Scheme + "://" + src.Host
		}

		session := beacon.NewSession(beacon.NewClient(base), inspectScriptPathFlag)
		state := session.Run(ctx, doc)

		names := make([]string, 0, len(session.History()))
		for _, s := range session.History() {
			names = append(names, s.String())
		}
		fmt.Printf("page:      %s\n", args[0])
		fmt.Printf("short id:  %s\n", session.ID())
		fmt.Printf("states:    %s\n", strings.Join(names, " -> "))
		if err := session.Err(); err != nil {
			fmt.Printf("error:     %v\n", err)
		}
		if d := session.Directive(); d.Action != nil {
			fmt.Printf("action:    %s %s\n", d.Action.Type, d.Action.Data)
		}
		res := session.Result()
		if res.Navigated {
			fmt.Printf("location:  %s\n", doc.Location())
		}
		if state == beacon.CountermeasureApplied && !res.Navigated {
			fmt.Printf("rewritten: %d attributes\n", res.Rewritten)
		}
		if inspectHTMLFlag {
			out, err := doc.HTML()
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(out)
		}
		return nil
	},
}

func fetchDocument(ctx context.Context, pageURL string) (*countermeasure.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "anticlone-inspect/1.0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	return countermeasure.NewDocument(io.LimitReader(resp.Body, 8<<20), resp.Request.URL.String())
}

func init() {
	inspectCmd.Flags().StringVar(&inspectServerFlag, "server", "", "verification server base url (default: origin of the script tag)")
	inspectCmd.Flags().StringVar(&inspectScriptPathFlag, "script-path", "/anticlone.js", "path of the beacon script")
	inspectCmd.Flags().StringVar(&inspectAsFlag, "as", "", "treat the page as served from this url")
	inspectCmd.Flags().BoolVar(&inspectHTMLFlag, "html", false, "print the document after countermeasures")
	inspectCmd.Flags().DurationVar(&inspectTimeoutFlag, "timeout", 15*time.Second, "overall timeout")
	rootCmd.AddCommand(inspectCmd)
}
