package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/getmockd/mockfleet/pkg/cli/internal/output"
	"github.com/getmockd/mockfleet/pkg/config"
	"github.com/getmockd/mockfleet/pkg/requestlog"
)

const defaultAdminURL = "http://127.0.0.1:9999"

type logsFlags struct {
	adminURL string
	token    string
	limit    int
	service  string
	follow   bool
	history  bool
	clear    bool
	json     bool
}

func newLogsCommand() *cobra.Command {
	var f logsFlags
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show request logs of a running mockfleet",
		Example: `  # recent entries of every service
  mockfleet logs --token $MOCKFLEET_ADMIN_TOKEN

  # persisted entries of one service
  mockfleet logs --history --service users

  # stream new entries until Ctrl+C
  mockfleet logs -f`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newAdminClient(f.adminURL, f.token)
			out := cmd.OutOrStdout()

			if f.follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return followLogs(ctx, c, out, f.json)
			}

			ctx := cmd.Context()
			if f.clear {
				if err := c.clearLogs(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Request logs cleared")
				return nil
			}

			var (
				entries []*requestlog.Entry
				err     error
			)
			if f.history {
				entries, err = c.history(ctx, f.service, f.limit)
			} else {
				entries, err = c.logs(ctx, f.limit)
				entries = filterService(entries, f.service)
			}
			if err != nil {
				return err
			}
			return printEntries(out, entries, f.json)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.adminURL, "admin-url", defaultAdminURL, "admin API base URL")
	fl.StringVar(&f.token, "token", os.Getenv(config.EnvAdminToken), "admin bearer token (default $"+config.EnvAdminToken+")")
	fl.IntVarP(&f.limit, "limit", "n", 100, "entries per service")
	fl.StringVarP(&f.service, "service", "s", "", "only this service")
	fl.BoolVarP(&f.follow, "follow", "f", false, "stream new entries")
	fl.BoolVar(&f.history, "history", false, "read persisted entries instead of the in-memory buffers")
	fl.BoolVar(&f.clear, "clear", false, "clear in-memory and persisted logs")
	fl.BoolVar(&f.json, "json", false, "print JSON")
	cmd.MarkFlagsMutuallyExclusive("follow", "history", "clear")
	return cmd
}

func filterService(entries []*requestlog.Entry, service string) []*requestlog.Entry {
	if service == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Service == service {
			out = append(out, e)
		}
	}
	return out
}

func printEntries(w io.Writer, entries []*requestlog.Entry, asJSON bool) error {
	if asJSON {
		if entries == nil {
			entries = []*requestlog.Entry{}
		}
		return output.JSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No request logs")
		return nil
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "TIMESTAMP\tSERVICE\tMETHOD\tPATH\tSTATUS\tDURATION")
	for _, e := range entries {
		printRow(tw, e)
	}
	return tw.Flush()
}

func printRow(w io.Writer, e *requestlog.Entry) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\n",
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.Service, e.Method, output.Truncate(e.Path, 40), e.Status, e.DurationMs)
}

// followLogs prints entries from the admin websocket until ctx is done or
// the server closes the stream.
func followLogs(ctx context.Context, c *adminClient, w io.Writer, asJSON bool) error {
	u, err := c.streamURL()
	if err != nil {
		return err
	}
	header := http.Header{"Authorization": {"Bearer " + c.token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			return &apiError{Status: resp.StatusCode}
		}
		return fmt.Errorf("cannot reach admin API at %s: %w", c.baseURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("log stream: %w", err)
		}
		if asJSON {
			fmt.Fprintln(w, string(data))
			continue
		}
		var e requestlog.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		printRow(w, &e)
	}
}
