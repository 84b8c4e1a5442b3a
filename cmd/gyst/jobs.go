package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Create missing task instances for every user",
	Args:  cobra.NoArgs,
	RunE:  runMaterialize,
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send today's digest to every user now",
	Args:  cobra.NoArgs,
	RunE:  runDigest,
}

var (
	materializeDays int
	materializeUser uint
)

func init() {
	rootCmd.AddCommand(materializeCmd)
	rootCmd.AddCommand(digestCmd)

	materializeCmd.Flags().IntVar(&materializeDays, "days", 0, "Window in days (7-90, default from config)")
	materializeCmd.Flags().UintVar(&materializeUser, "user", 0, "Only this user id")
}

func runMaterialize(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	total, users, err := materializeUsers(ctx, a, materializeUser, materializeDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d instances for %d users\n", total, users)
	return nil
}

func runDigest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return a.reminders.SendDailyDigests(ctx)
}

// materializeUsers fills the window for one user, or for everyone when
// userID is zero, and returns the instances created and users visited.
func materializeUsers(ctx context.Context, a *app, userID uint, days int) (int, int, error) {
	ids := []uint{userID}
	if userID == 0 {
		users, err := a.repos.Users.ListAll(ctx)
		if err != nil {
			return 0, 0, err
		}
		ids = ids[:0]
		for _, u := range users {
			ids = append(ids, u.ID)
		}
	}

	total := 0
	for _, id := range ids {
		n, err := a.services.Instances.Materialize(ctx, id, days)
		if err != nil {
			return total, len(ids), fmt.Errorf("user %d: %w", id, err)
		}
		total += n
	}
	return total, len(ids), nil
}
