package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/igorvasilek/hoshi/common/trace"
	"github.com/igorvasilek/hoshi/internal/hoshi/audit"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

// cliActor is the audit actor id recorded for offline maintenance.
const cliActor int64 = 0

func openStore(flag string) (*store.Store, error) {
	s, err := store.New(dbPath(flag))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func newStatsCmd() *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print history and access statistics from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(db)
			if err != nil {
				return err
			}
			defer s.Close()
			return printStats(cmd.Context(), cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "database path (default $DATABASE_PATH or ./hoshi.db)")
	return cmd
}

func printStats(ctx context.Context, w io.Writer, s *store.Store) error {
	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	admins, err := s.ListAdmins(ctx)
	if err != nil {
		return err
	}
	blocked, err := s.ListBlacklist(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "users:       %d\n", st.Users)
	fmt.Fprintf(w, "turns:       %d\n", st.Turns)
	fmt.Fprintf(w, "admins:      %d\n", len(admins))
	fmt.Fprintf(w, "blacklisted: %d\n", len(blocked))
	return nil
}

func newAdminsCmd() *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Inspect or change the admin set while the bot is stopped",
	}
	cmd.PersistentFlags().StringVar(&db, "db", "", "database path (default $DATABASE_PATH or ./hoshi.db)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List admin user ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(db)
			if err != nil {
				return err
			}
			defer s.Close()
			ids, err := s.ListAdmins(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <user-id>",
		Short: "Grant admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeAdmin(cmd, db, args[0], audit.KindAdminAdded)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <user-id>",
		Short: "Revoke admin rights (the last admin cannot be removed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeAdmin(cmd, db, args[0], audit.KindAdminRemoved)
		},
	})
	return cmd
}

func changeAdmin(cmd *cobra.Command, db, arg string, kind audit.Kind) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid user id %q", arg)
	}

	s, err := openStore(db)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := trace.WithTraceID(cmd.Context(), trace.GenerateID())
	if kind == audit.KindAdminAdded {
		err = s.AddAdmin(ctx, id)
	} else {
		err = s.RemoveAdmin(ctx, id)
	}

	result, errMsg := "success", ""
	if err != nil {
		result, errMsg = "error", err.Error()
	}
	target := strconv.FormatInt(id, 10)
	payload := store.AuditPayload{"source": "cli"}
	if werr := s.WriteAudit(ctx, trace.FromContext(ctx), cliActor, string(kind), target, result, payload, errMsg); werr != nil {
		err = errors.Join(err, werr)
	}
	if err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			return fmt.Errorf("%d is the last admin and cannot be removed", id)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", kind, id)
	return nil
}
