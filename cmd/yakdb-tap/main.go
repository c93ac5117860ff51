// Command yakdb-tap is a read-only observability daemon: it polls a
// YakDB server's tables on an interval and publishes every verb
// invocation to a live dashboard (HTTP/SSE) and terminal viewer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/monitor"
	"github.com/yakdb/yakdb-go/tui"
	"github.com/yakdb/yakdb-go/web"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("yakdb-tap", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "yakdb-tap — watch YakDB verb traffic in real time\n\nUsage:\n  yakdb-tap [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	endpoint := fs.String("endpoint", client.DefaultRequestReplyEndpoint, "YakDB server request-reply endpoint")
	tables := fs.String("tables", "", "comma-separated table numbers to poll (e.g. 1,2,3)")
	poll := fs.Duration("poll", 2*time.Second, "polling interval for table stats")
	httpAddr := fs.String("http", "", "HTTP server address for the web dashboard (e.g. :8080)")
	tuiMode := fs.Bool("tui", true, "show the terminal event viewer")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("yakdb-tap %s\n", version)
		return
	}

	tableNums, err := parseTables(*tables)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(*endpoint, tableNums, *poll, *httpAddr, *tuiMode); err != nil {
		log.Fatal(err)
	}
}

func parseTables(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var out []uint32
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("yakdb-tap: invalid table number %q: %w", part, err)
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

func run(endpoint string, tables []uint32, poll time.Duration, httpAddr string, tuiMode bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := monitor.NewBroker()

	conn, err := client.NewSync(client.WithEndpoint(endpoint), client.WithSink(b))
	if err != nil {
		return fmt.Errorf("yakdb-tap: connect %s: %w", endpoint, err)
	}
	defer conn.Close()

	if httpAddr != "" {
		var lc net.ListenConfig
		httpLis, err := lc.Listen(ctx, "tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("yakdb-tap: listen http %s: %w", httpAddr, err)
		}
		webSrv := web.New(b)
		go func() {
			log.Printf("HTTP dashboard listening on %s", httpAddr)
			if err := webSrv.Serve(httpLis); err != nil {
				log.Printf("http serve: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = webSrv.Shutdown(shutdownCtx)
		}()
	}

	go pollTables(ctx, conn, tables, poll)

	if tuiMode {
		ch, id := b.Subscribe(256)
		defer b.Unsubscribe(id)
		return tui.Run(ctx, ch)
	}

	<-ctx.Done()
	return nil
}

// pollTables periodically issues a TableInfo call against each
// configured table, which alone is enough to keep the dashboard
// populated with live verb events even absent external traffic.
func pollTables(ctx context.Context, conn *client.Sync, tables []uint32, interval time.Duration) {
	if len(tables) == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, table := range tables {
				if _, err := conn.TableInfo(table); err != nil {
					log.Printf("table-info %d: %v", table, err)
				}
			}
		}
	}
}
