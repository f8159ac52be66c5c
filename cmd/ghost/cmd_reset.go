package main

import (
	"context"
	"fmt"

	"ghostbot/internal/system"

	"github.com/spf13/cobra"
)

var (
	resetUser        int64
	resetSessionOnly bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a user's stored conversation",
	Long: `Removes the stored history and session of one user, the same as the
"Hapus" menu action. With --session only the active session is ended.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().Int64Var(&resetUser, "user", 0, "User id (required)")
	resetCmd.Flags().BoolVar(&resetSessionOnly, "session", false, "End the active session only")
	_ = resetCmd.MarkFlagRequired("user")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := system.OpenStore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if resetSessionOnly {
		name, ended, err := st.EndSession(ctx, resetUser)
		if err != nil {
			return err
		}
		if !ended {
			fmt.Fprintf(out, "user %d has no active session\n", resetUser)
			return nil
		}
		fmt.Fprintf(out, "ended session %q for user %d\n", name, resetUser)
		return nil
	}

	removed, err := st.Reset(ctx, resetUser)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintf(out, "deleted context for user %d\n", resetUser)
	} else {
		fmt.Fprintf(out, "no context stored for user %d\n", resetUser)
	}
	return nil
}
