package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-shellwords"
	"github.com/ponyo877/livebid/cli/domain"
	"github.com/ponyo877/livebid/cli/usecase"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

// controller is the part of the session the interactive shells drive.
type controller interface {
	StartBidding(ctx context.Context, productID string, startingPrice float64, duration int) (domain.BiddingRound, error)
	EndBidding(ctx context.Context) error
	SendChat(ctx context.Context, content string) (domain.ChatMessage, error)
	BanViewer(ctx context.Context, viewerID string) error
	Snapshot(ctx context.Context) (usecase.Snapshot, error)
}

// shell executes one line of seller input against a running session.
type shell struct {
	ctrl    controller
	timeout time.Duration
}

func newShell(ctrl controller) *shell {
	return &shell{ctrl: ctrl, timeout: 10 * time.Second}
}

// Exec parses line with shell quoting rules and runs it. It returns errQuit
// when the seller asks to leave.
func (s *shell) Exec(line string) (string, error) {
	args, err := shellwords.Parse(strings.TrimSpace(line))
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}
	if args[0] == "quit" || args[0] == "exit" {
		return "", errQuit
	}

	var out bytes.Buffer
	root := s.commands()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err = root.Execute()
	return out.String(), err
}

func (s *shell) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "livebid",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	start := &cobra.Command{
		Use:   "start <product-id>",
		Short: "Start a bidding round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, _ := cmd.Flags().GetFloat64("price")
			duration, _ := cmd.Flags().GetInt("duration")
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			round, err := s.ctrl.StartBidding(ctx, args[0], price, duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "round %s: %s from %.2f for %ds\n", round.ID, round.Product.Name, round.StartingPrice, round.Duration)
			return nil
		},
	}
	start.Flags().Float64P("price", "p", 0, "starting price (default: list price)")
	start.Flags().IntP("duration", "d", 60, "round length in seconds")

	end := &cobra.Command{
		Use:   "end",
		Short: "End the active bidding round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			return s.ctrl.EndBidding(ctx)
		},
	}

	say := &cobra.Command{
		Use:   "say <message>",
		Short: "Send a chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			_, err := s.ctrl.SendChat(ctx, strings.Join(args, " "))
			if errors.Is(err, domain.ErrOffline) {
				fmt.Fprintln(cmd.OutOrStdout(), "offline: message kept locally")
				return nil
			}
			return err
		},
	}

	ban := &cobra.Command{
		Use:   "ban <viewer-id>",
		Short: "Ban a viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			return s.ctrl.BanViewer(ctx, args[0])
		},
	}

	root.AddCommand(start, end, say, ban,
		s.view("status", "Show the livestream and round", writeStatus),
		s.view("bids", "List bids, leader first", writeBids),
		s.view("chat", "Show recent chat", writeChat),
		s.view("viewers", "List viewers", writeViewers),
		s.view("products", "List auctionable products", writeProducts),
	)
	return root
}

func (s *shell) view(use, short string, write func(io.Writer, usecase.Snapshot)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			snap, err := s.ctrl.Snapshot(ctx)
			if err != nil {
				return err
			}
			write(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func writeStatus(w io.Writer, snap usecase.Snapshot) {
	ls := snap.Livestream
	conn := "online"
	if !snap.Online {
		conn = "offline"
	}
	fmt.Fprintf(w, "livestream %s [%s] %s, viewers %d, credits %d left (%d used)\n",
		ls.ID, ls.Status, conn, ls.ViewerCount, ls.RemainingCredits, ls.CreditsConsumed)

	r := snap.Round
	if r.ID == "" {
		fmt.Fprintln(w, "no round yet")
		return
	}
	fmt.Fprintf(w, "round %s [%s] %s from %.2f, %ds left, %d bids\n",
		r.ID, r.Status, r.Product.Name, r.StartingPrice, r.Remaining, len(snap.Bids))
	if snap.Leader != nil {
		fmt.Fprintf(w, "leader %s at %.2f\n", bidderName(*snap.Leader), snap.Leader.Amount)
	}
}

func writeBids(w io.Writer, snap usecase.Snapshot) {
	if len(snap.Bids) == 0 {
		fmt.Fprintln(w, "no bids")
		return
	}
	for i, b := range snap.Bids {
		fmt.Fprintf(w, "%2d. %-16s %10.2f  %s\n", i+1, bidderName(b), b.Amount, b.Timestamp.Local().Format("15:04:05"))
	}
}

func writeChat(w io.Writer, snap usecase.Snapshot) {
	for _, m := range snap.Messages {
		fmt.Fprintln(w, m.String())
	}
}

func writeViewers(w io.Writer, snap usecase.Snapshot) {
	fmt.Fprintf(w, "%d watching\n", snap.Livestream.ViewerCount)
	for _, v := range snap.Viewers {
		fmt.Fprintf(w, "  %s (%s)\n", v.DisplayName, v.ID)
	}
}

func writeProducts(w io.Writer, snap usecase.Snapshot) {
	for _, p := range snap.Products {
		fmt.Fprintf(w, "%-28s %-24s %10.2f\n", p.ID, p.Name, p.Price)
	}
}

func bidderName(b domain.Bid) string {
	if b.BidderName != "" {
		return b.BidderName
	}
	return b.BidderID
}

var shellSuggestions = []prompt.Suggest{
	{Text: "start", Description: "start <product-id> [-p price] [-d seconds]"},
	{Text: "end", Description: "end the active round"},
	{Text: "say", Description: "say <message>"},
	{Text: "ban", Description: "ban <viewer-id>"},
	{Text: "status", Description: "livestream and round"},
	{Text: "bids", Description: "ranked bids"},
	{Text: "chat", Description: "recent chat"},
	{Text: "viewers", Description: "who is watching"},
	{Text: "products", Description: "auctionable products"},
	{Text: "quit", Description: "end the livestream and exit"},
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(shellSuggestions, d.GetWordBeforeCursor(), true)
}
