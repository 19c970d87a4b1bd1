package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/textfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var feedOpts struct {
	tab          string
	search       string
	category     string
	jurisdiction string
	pages        int
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the public lead feed as the home page would show it",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := leadsapi.New(cfg.APIURL, logger.Named("api"), leadsapi.WithTimeout(cfg.APITimeout))
		if err != nil {
			return err
		}
		c := feed.NewController(api, feed.Options{
			Enrichers: []feed.Enricher{feed.PinFirst},
			Logger:    logger.Named("feed"),
		})
		defer c.Close()

		if _, err := c.SetFilter(
			feed.WithTab(feedOpts.tab),
			feed.WithSearch(feedOpts.search),
			feed.WithCategory(feedOpts.category),
			feed.WithJurisdiction(feedOpts.jurisdiction),
		); err != nil {
			return err
		}

		for range max(feedOpts.pages, 1) {
			outcome, err := c.FetchPage(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch feed: %w", err)
			}
			logger.Debug("page fetched", zap.Stringer("outcome", outcome))
			if c.Snapshot().Exhausted() {
				break
			}
		}
		return printFeed(cmd.OutOrStdout(), c.Snapshot(), time.Now())
	},
}

func init() {
	f := feedCmd.Flags()
	f.StringVar(&feedOpts.tab, "tab", feed.DefaultTab, "feed tab")
	f.StringVar(&feedOpts.search, "search", "", "search text")
	f.StringVar(&feedOpts.category, "category", "", "category id")
	f.StringVar(&feedOpts.jurisdiction, "jurisdiction", "", "unit id")
	f.IntVar(&feedOpts.pages, "pages", 1, "number of pages to load")
}

func printFeed(out io.Writer, snap feed.Snapshot, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTOKEN\tPRIORITY\tVOTES\tAGE\tTITLE")
	for _, l := range snap.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", l.ID, l.Token, priority(l), l.Votes, age(l.CreatedAt, now), l.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	more := "more available"
	if snap.Exhausted() {
		more = "end of feed"
	}
	_, err := fmt.Fprintf(out, "\n%d leads, %d pages, %s\n", len(snap.Items), snap.Page, more)
	return err
}

func priority(l model.Lead) string {
	p := string(l.Priority)
	if p == "" {
		p = "-"
	}
	if l.IsPinned {
		p += " (pinned)"
	}
	return p
}

func age(ts model.Timestamp, now time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return textfmt.TimeAgo(ts.Time, now)
}
