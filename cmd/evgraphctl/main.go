// Command evgraphctl queries a running EVGraph API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/client"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/viewport"
)

const usage = `usage: evgraphctl [flags] <command> [command flags]

commands:
  sessions   list recent sessions with bet counts
  bets       list the bets of a session (-session ID)
  segments   list sustained-EV segments of a bet (-bet ID)
  chart      summarize a bet chart and replay gestures (-bet ID [-session ID] [-events zoom_in,pan_left])

flags:
`

func main() {
	addr := flag.String("addr", envOr("EVGRAPH_API_URL", "http://localhost:8000"), "API base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	retries := flag.Int("retries", 3, "Attempts per request")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger.Init(level, "text")

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*addr, *timeout, client.ClientConfig{MaxRetries: *retries, RetryDelayBase: 500 * time.Millisecond})
	ctx := context.Background()
	logger.Debug("Using API at %s", *addr)

	if err := run(ctx, c, os.Stdout, flag.Arg(0), flag.Args()[1:]); err != nil {
		if client.IsNotFound(err) {
			fmt.Fprintln(os.Stderr, "not found:", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, c *client.Client, out io.Writer, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	limit := fs.Int("limit", 0, "Maximum rows (0 uses the server default)")
	sessionID := fs.Int64("session", 0, "Session ID")
	betID := fs.String("bet", "", "Bet ID")
	events := fs.String("events", "", "Comma-separated gestures to replay on the chart")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	switch cmd {
	case "sessions":
		return listSessions(ctx, c, out, *limit)
	case "bets":
		if *sessionID < 1 {
			return fmt.Errorf("%w: bets needs -session", errUsage)
		}
		return listBets(ctx, c, out, *sessionID, *limit)
	case "segments":
		if *betID == "" {
			return fmt.Errorf("%w: segments needs -bet", errUsage)
		}
		ch, err := c.Chart(ctx, *betID, 0)
		if err != nil {
			return err
		}
		return printSegments(out, ch)
	case "chart":
		if *betID == "" {
			return fmt.Errorf("%w: chart needs -bet", errUsage)
		}
		return showChart(ctx, c, out, *betID, *sessionID, *events)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func listSessions(ctx context.Context, c *client.Client, out io.Writer, limit int) error {
	sessions, err := c.Sessions(ctx, limit, true)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tACTIVE\tBETS\tPLACED\tCHANGE")
	for _, s := range sessions {
		end := "-"
		if s.EndTime != nil {
			end = s.EndTime.UTC().Format(time.DateTime)
		}
		change := "-"
		if s.BalanceChange != nil {
			change = s.BalanceChange.StringFixed(2)
		}
		total, placed := 0, 0
		if s.SessionStats != nil {
			total, placed = s.TotalBets, s.PlacedBets
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%d\t%s\n",
			s.ID, s.StartTime.UTC().Format(time.DateTime), end, s.IsActive, total, placed, change)
	}
	return w.Flush()
}

func listBets(ctx context.Context, c *client.Client, out io.Writer, sessionID int64, limit int) error {
	bets, err := c.SessionBets(ctx, sessionID, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BET\tTIME\tEVENT\tMARKET\tODDS\tEV%\tSTATUS")
	for _, b := range bets {
		fmt.Fprintf(w, "%s\t%s\t%s vs %s\t%s\t%.2f\t%.2f\t%s\n",
			b.BetID, b.Time.UTC().Format(time.DateTime), b.Home, b.Away, b.Market, b.Koef, b.Profit, b.Status)
	}
	return w.Flush()
}

func printSegments(out io.Writer, ch *chart.Chart) error {
	if ch.Empty {
		fmt.Fprintf(out, "bet %s has no EV records\n", ch.BetID)
		return nil
	}
	if len(ch.Segments) == 0 {
		fmt.Fprintf(out, "bet %s: no sustained segments in %d samples\n", ch.BetID, ch.N())
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tDURATION\tLEVEL")
	for _, s := range ch.Segments {
		start := time.UnixMilli(s.StartTime).UTC()
		end := time.UnixMilli(s.EndTime).UTC()
		fmt.Fprintf(w, "%s\t%s\t%v\t%.2f%%\n",
			start.Format(time.DateTime), end.Format(time.DateTime), end.Sub(start), s.Level)
	}
	return w.Flush()
}

func showChart(ctx context.Context, c *client.Client, out io.Writer, betID string, sessionID int64, events string) error {
	ch, err := c.Chart(ctx, betID, sessionID)
	if err != nil {
		return err
	}
	st := ch.Stats
	fmt.Fprintf(out, "bet %s: %d samples, mean EV %.2f%% (sd %.2f), max %.2f%%\n",
		ch.BetID, st.Count, st.MeanEV, st.StdDevEV, st.MaxEV)
	for _, o := range ch.Overlays {
		fmt.Fprintf(out, "  %s: %s at %s\n", o.Kind, o.Label, time.UnixMilli(o.TimeMs).UTC().Format(time.DateTime))
	}
	if err := printSegments(out, ch); err != nil {
		return err
	}
	if events == "" || ch.Empty {
		return nil
	}

	current := ch.Viewport
	for _, name := range strings.Split(events, ",") {
		ev := viewport.Event{Kind: viewport.EventKind(strings.TrimSpace(name))}
		if ev.Kind == viewport.EventWheel {
			ev.DeltaY, ev.AnchorFraction = -1, 0.5
		}
		res, err := c.ApplyViewport(ctx, ch.N(), current, ev)
		if err != nil {
			return err
		}
		current = res.Viewport
		if w, ok := ch.Window(*current); ok {
			fmt.Fprintf(out, "%-10s [%d, %d] %s .. %s, %d segments visible\n",
				ev.Kind, current.Start, current.End,
				w.Samples[0].Label, w.Samples[len(w.Samples)-1].Label, len(w.Segments))
		}
	}
	return nil
}
