package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-core/internal/di"
	"github.com/sandeepkv93/credential-session-core/internal/domain"
)

type userSelector struct {
	userID uint
	email  string
}

func (s *userSelector) bind(cmd *cobra.Command) {
	cmd.Flags().UintVar(&s.userID, "user-id", 0, "target user id")
	cmd.Flags().StringVar(&s.email, "email", "", "target user email")
}

func (s *userSelector) resolve(ctx context.Context, core *di.Core) (uint, error) {
	if s.userID != 0 {
		return s.userID, nil
	}
	if s.email == "" {
		return 0, errors.New("one of --user-id or --email is required")
	}
	user, err := core.Users.FindByEmail(ctx, s.email)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", s.email, err)
	}
	return user.ID, nil
}

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Inspect and revoke user sessions"}
	cmd.AddCommand(newSessionsListCommand(opts), newSessionsRevokeAllCommand(opts))
	return cmd
}

func newSessionsListCommand(opts *options) *cobra.Command {
	sel := &userSelector{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *di.Core) error {
				userID, err := sel.resolve(cmd.Context(), core)
				if err != nil {
					return err
				}
				views, err := core.Sessions.ListActiveSessions(cmd.Context(), userID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						strconv.FormatUint(uint64(v.ID), 10),
						v.CreatedAt.UTC().Format(time.RFC3339),
						v.ExpiresAt.UTC().Format(time.RFC3339),
						v.IP,
						v.UserAgent,
					})
				}
				headers := []string{"ID", "CREATED", "EXPIRES", "IP", "USER AGENT"}
				if opts.ci {
					for _, r := range rows {
						fmt.Fprintf(opts.out, "id=%s created=%s expires=%s ip=%s user_agent=%q\n", r[0], r[1], r[2], r[3], r[4])
					}
					return nil
				}
				if len(rows) == 0 {
					fmt.Fprintln(opts.out, detailStyle.Render("no active sessions"))
					return nil
				}
				fmt.Fprint(opts.out, renderTable(headers, rows))
				return nil
			})
		},
	}
	sel.bind(cmd)
	return cmd
}

func newSessionsRevokeAllCommand(opts *options) *cobra.Command {
	sel := &userSelector{}
	cmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every active session of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withCore(cmd.Context(), func(core *di.Core) error {
				userID, err := sel.resolve(cmd.Context(), core)
				if err != nil {
					return err
				}
				return runTask(cmd.Context(), opts.out, opts.ci, "sessions revoke-all", func(ctx context.Context) ([]string, error) {
					n, err := core.Sessions.RevokeAllSessions(ctx, userID, domain.RevokeReasonLogoutAll)
					if err != nil {
						return nil, err
					}
					return []string{fmt.Sprintf("user_id=%d revoked=%d", userID, n)}, nil
				})
			})
		},
	}
	sel.bind(cmd)
	return cmd
}
