package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/ponyo877/livebid/cli/domain"
	"github.com/ponyo877/livebid/cli/usecase"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console <livestream-id>",
	Short: "Go live with a full-screen seller console",
	Long: `Takes the livestream live in a tview-based console showing the round,
chat and viewers side by side. Commands typed at the bottom are the same as in
'livebid live'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetDuration("refresh")
		ctx := context.Background()
		session, err := startSession(ctx, args[0])
		if err != nil {
			return err
		}
		defer session.EndSession(ctx)

		if err := runConsole(session, refresh); err != nil {
			return err
		}
		return session.EndSession(ctx)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().Duration("refresh", 500*time.Millisecond, "screen refresh interval")
}

type liveSession interface {
	controller
	Notices() <-chan domain.Notice
	Done() <-chan struct{}
}

func runConsole(session liveSession, refresh time.Duration) error {
	app := tview.NewApplication()

	status := tview.NewTextView().SetDynamicColors(true)
	status.SetBorder(true).SetTitle(" round ")

	chat := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	chat.SetBorder(true).SetTitle(" chat ")

	viewers := tview.NewTextView()
	viewers.SetBorder(true).SetTitle(" viewers ")

	events := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		ScrollToEnd()
	events.SetBorder(true).SetTitle(" events ")

	input := tview.NewInputField().
		SetLabel("❯❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(256))

	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(status, 0, 1, false).
		AddItem(viewers, 0, 1, false)
	body := tview.NewFlex().
		AddItem(chat, 0, 2, false).
		AddItem(right, 0, 1, false)
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 3, false).
		AddItem(events, 0, 1, false).
		AddItem(input, 1, 0, true)

	app.SetRoot(root, true).SetFocus(input)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	draw := func(snap usecase.Snapshot) {
		var b bytes.Buffer
		writeStatus(&b, snap)
		status.SetText(tview.Escape(b.String()))

		b.Reset()
		for _, m := range snap.Messages {
			color := "white"
			switch {
			case m.Unsent:
				color = "red"
			case m.Pending:
				color = "gray"
			case m.Role == domain.RoleSeller:
				color = "yellow"
			}
			fmt.Fprintf(&b, "[%s]%s[white]\n", color, tview.Escape(m.String()))
		}
		chat.SetText(b.String())
		chat.ScrollToEnd()

		b.Reset()
		writeViewers(&b, snap)
		viewers.SetText(b.String())
	}

	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-session.Done():
				app.QueueUpdateDraw(func() {
					fmt.Fprintln(events, "[red]session is over, press Ctrl+C to exit")
				})
				return
			case n := <-session.Notices():
				app.QueueUpdateDraw(func() {
					fmt.Fprintf(events, "[%s]%s %s[white]\n", noticeColor(n.Level), n.At.Format("15:04:05"), tview.Escape(n.Message))
				})
			case <-ticker.C:
				snap, err := session.Snapshot(ctx)
				if err != nil {
					continue
				}
				app.QueueUpdateDraw(func() { draw(snap) })
			}
		}
	}()

	sh := newShell(session)
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := strings.TrimSpace(input.GetText())
		input.SetText("")
		if line == "" {
			return
		}
		// Commands block on the session loop; keep them off the draw goroutine.
		go func() {
			out, err := sh.Exec(line)
			if errors.Is(err, errQuit) {
				app.Stop()
				return
			}
			app.QueueUpdateDraw(func() {
				if out != "" {
					fmt.Fprint(events, tview.Escape(out))
				}
				if err != nil {
					fmt.Fprintf(events, "[red]%s[white]\n", tview.Escape(err.Error()))
				}
			})
		}()
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			cancel()
			app.Stop()
			return nil
		}
		return event
	})

	return app.Run()
}

func noticeColor(level domain.NoticeLevel) string {
	switch level {
	case domain.NoticeWarning:
		return "yellow"
	case domain.NoticeError, domain.NoticeTerminal:
		return "red"
	default:
		return "green"
	}
}
