package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/track"
	"github.com/citizenintel/portal/internal/wizard"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track <token>",
	Short: "Look up the status of a submitted report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := leadsapi.New(cfg.APIURL, logger.Named("api"), leadsapi.WithTimeout(cfg.APITimeout))
		if err != nil {
			return err
		}
		st, err := track.New(api, logger.Named("track")).Lookup(cmd.Context(), args[0])
		if errors.Is(err, track.ErrTokenNotFound) {
			return fmt.Errorf("no report found for token %s", args[0])
		}
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), args[0], st)
	},
}

func printStatus(out io.Writer, token string, st *model.TrackStatus) error {
	fmt.Fprintf(out, "Token:  %s\n", token)
	fmt.Fprintf(out, "Status: %s\n", st.Status)
	if st.RewardStatus != "" {
		fmt.Fprintf(out, "Reward: %s\n", st.RewardStatus)
	}
	if wizard.IsFallbackToken(token) {
		fmt.Fprintln(out, "Note:   this token was issued locally and never reached the server.")
	}
	for _, s := range st.Timeline {
		mark := " "
		if s.Completed {
			mark = "x"
		}
		fmt.Fprintf(out, "  [%s] %-10s %s\n", mark, s.Name, s.Date)
	}
	return nil
}
