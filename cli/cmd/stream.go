package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Create and inspect livestreams",
}

var streamCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a scheduled livestream with a credit balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		credits, _ := cmd.Flags().GetInt("credits")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		ls, err := backend.CreateLivestream(ctx, title, credits)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d credits\n", ls.ID, ls.Status, ls.RemainingCredits)
		return nil
	},
}

var streamShowCmd = &cobra.Command{
	Use:   "show <livestream-id>",
	Short: "Show a livestream's status and credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		ls, err := backend.GetLivestream(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ID:        %s\nTitle:     %s\nStatus:    %s\nCredits:   %d left, %d used\n",
			ls.ID, ls.Title, ls.Status, ls.RemainingCredits, ls.CreditsConsumed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.AddCommand(streamCreateCmd, streamShowCmd)

	streamCreateCmd.Flags().StringP("title", "t", "", "livestream title")
	streamCreateCmd.Flags().IntP("credits", "c", 4, "credits to load; one is used every metering interval")
	streamCreateCmd.MarkFlagRequired("title")
}
