package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/ponyo877/livebid/cli/domain"
	"github.com/spf13/cobra"
)

var liveCmd = &cobra.Command{
	Use:   "live <livestream-id>",
	Short: "Go live and run the auction from an interactive prompt",
	Long: `Takes the livestream live and opens an interactive prompt. Type 'start <product-id>'
to open a bidding round, 'say' to chat, 'status' to see the round, and 'quit' to end
the livestream.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		session, err := startSession(ctx, args[0])
		if err != nil {
			return err
		}
		defer session.EndSession(ctx)

		go func() {
			for {
				select {
				case n := <-session.Notices():
					fmt.Println(n.String())
				case <-session.Done():
					fmt.Println("[terminal] session is over, press enter to exit")
					return
				}
			}
		}()

		sh := newShell(session)
		quit := false
		executor := func(line string) {
			out, err := sh.Exec(line)
			if out != "" {
				fmt.Print(out)
			}
			switch {
			case errors.Is(err, errQuit):
				quit = true
			case errors.Is(err, domain.ErrSessionNotActive):
				quit = true
			case err != nil:
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		}
		exitChecker := func(in string, breakline bool) bool {
			if !breakline {
				return false
			}
			select {
			case <-session.Done():
				return true
			default:
			}
			return quit || strings.TrimSpace(in) == "quit" || strings.TrimSpace(in) == "exit"
		}

		fmt.Printf("livestream %s is live, type 'quit' to end it\n", args[0])
		prompt.New(executor, completer,
			prompt.OptionPrefix(args[0]+" ❯❯ "),
			prompt.OptionTitle("livebid"),
			prompt.OptionSetExitCheckerOnInput(exitChecker),
		).Run()

		if err := session.EndSession(ctx); err != nil {
			return err
		}
		fmt.Println("livestream ended")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(liveCmd)
}
