package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runner func(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error

// statsConcurrency caps concurrent per-team stats queries.
const statsConcurrency = 4

func issueCmd(out io.Writer, s *settings, run runner) *cobra.Command {
	var (
		teamID  string
		by      string
		ttlDays int
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a guest access link for a team",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				team, err := b.teams.GetByHex(ctx, teamID)
				if errors.Is(err, teamstore.ErrNotFound) {
					return fmt.Errorf("team %q not found", teamID)
				}
				if err != nil {
					return err
				}
				link, err := b.links.IssueLink(ctx, accesslinks.IssueRequest{
					TeamID:    team.ID.Hex(),
					TeamName:  team.Name,
					CreatedBy: by,
					TTLDays:   ttlDays,
				})
				if err != nil {
					return err
				}
				if s.asJSON {
					return writeJSON(out, link)
				}
				fmt.Fprintf(out, "Issued link for %s\n", team.Name)
				fmt.Fprintf(out, "  URL:     %s\n", link.URL)
				fmt.Fprintf(out, "  Expires: %s\n", link.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "Team id")
	cmd.Flags().StringVar(&by, "by", "cli", "Issuer recorded on the link")
	cmd.Flags().IntVar(&ttlDays, "ttl-days", 0, "Link lifetime in days (0 uses the default)")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func listCmd(out io.Writer, s *settings, run runner) *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a team's active guest links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				links, err := b.links.ListActiveLinks(ctx, teamID)
				if err != nil {
					return err
				}
				if s.asJSON {
					return writeJSON(out, links)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED BY\tEXPIRES\tACCESSES")
				for _, l := range links {
					expires := "never"
					if l.ExpiresAt != nil {
						expires = l.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", l.ID, l.CreatedBy, expires, l.AccessCount)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "Team id")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func revokeCmd(out io.Writer, s *settings, run runner) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "revoke <link-id>",
		Short: "Revoke a guest access link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				err := b.links.RevokeLink(ctx, args[0], by)
				if errors.Is(err, accesslinks.ErrLinkNotFound) {
					return fmt.Errorf("link %q not found", args[0])
				}
				if err != nil {
					return err
				}
				if s.asJSON {
					return writeJSON(out, map[string]string{"revoked": args[0]})
				}
				fmt.Fprintf(out, "Revoked %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "cli", "Revoker recorded on the link")
	return cmd
}

type teamStats struct {
	TeamID string `json:"teamId"`
	accesslinks.Stats
}

func statsCmd(out io.Writer, s *settings, run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <team-id>...",
		Short: "Summarise guest links for one or more teams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				results, err := collectStats(ctx, b.links, args)
				if err != nil {
					return err
				}
				if s.asJSON {
					return writeJSON(out, results)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TEAM\tTOTAL\tACTIVE\tREVOKED\tEXPIRED\tACCESSES")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
						r.TeamID, r.Total, r.Active, r.Revoked, r.Expired, r.TotalAccesses)
				}
				return tw.Flush()
			})
		},
	}
}

// collectStats queries each team concurrently. Results keep argument order.
func collectStats(ctx context.Context, links *accesslinks.Service, teamIDs []string) ([]teamStats, error) {
	results := make([]teamStats, len(teamIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsConcurrency)
	for i, id := range teamIDs {
		g.Go(func() error {
			st, err := links.GetStats(gctx, id)
			if err != nil {
				return fmt.Errorf("team %s: %w", id, err)
			}
			results[i] = teamStats{TeamID: id, Stats: st}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
