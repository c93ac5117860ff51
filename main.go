// Command yakdb is a CLI client for a YakDB server: get/put/scan/count
// against a table, plus dump/import for the YDF snapshot format.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/yakdb/yakdb-go/clipboard"
	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/ydf"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "-version" || cmd == "--version" {
		fmt.Printf("yakdb %s\n", version)
		return
	}

	var err error
	switch cmd {
	case "get":
		err = runGet(args)
	case "put":
		err = runPut(args)
	case "scan":
		err = runScan(args)
	case "count":
		err = runCount(args)
	case "dump":
		err = runDump(args)
	case "import":
		err = runImport(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "yakdb: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `yakdb — CLI client for a YakDB server

Usage:
  yakdb get    -endpoint <addr> -table <n> <key>
  yakdb put    -endpoint <addr> -table <n> <key> <value>
  yakdb scan   -endpoint <addr> -table <n> [-start <k>] [-end <k>] [-limit <n>]
  yakdb count  -endpoint <addr> -table <n> [-start <k>] [-end <k>]
  yakdb dump   -endpoint <addr> -table <n> <file.ydf[.gz|.xz]>
  yakdb import -endpoint <addr> -table <n> <file.ydf[.gz|.xz]>
  yakdb -version
`)
}

func connect(fs *flag.FlagSet) (*client.Sync, uint32, error) {
	endpoint := fs.Lookup("endpoint").Value.String()
	table, err := strconv.ParseUint(fs.Lookup("table").Value.String(), 10, 32)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid -table: %w", err)
	}
	conn, err := client.NewSync(client.WithEndpoint(endpoint))
	if err != nil {
		return nil, 0, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return conn, uint32(table), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("endpoint", client.DefaultRequestReplyEndpoint, "YakDB server request-reply endpoint")
	fs.Uint64("table", 1, "table number")
	return fs
}

func runGet(args []string) error {
	fs := newFlagSet("get")
	copyToClipboard := fs.Bool("copy", false, "copy the value to the system clipboard instead of printing it")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("get: expected exactly one key argument")
	}
	conn, table, err := connect(fs)
	if err != nil {
		return err
	}
	defer conn.Close()

	values, err := conn.Read(table, []any{[]byte(fs.Arg(0))})
	if err != nil {
		return err
	}
	if len(values[0]) == 0 {
		return fmt.Errorf("key not found")
	}
	if *copyToClipboard {
		return clipboard.Copy(context.Background(), string(values[0]))
	}
	fmt.Println(string(values[0]))
	return nil
}

func runPut(args []string) error {
	fs := newFlagSet("put")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("put: expected key and value arguments")
	}
	conn, table, err := connect(fs)
	if err != nil {
		return err
	}
	defer conn.Close()

	kv := client.KV{Key: []byte(fs.Arg(0)), Value: []byte(fs.Arg(1))}
	return conn.Put(table, []client.KV{kv}, false, false)
}

func runScan(args []string) error {
	fs := newFlagSet("scan")
	start := fs.String("start", "", "inclusive start key")
	end := fs.String("end", "", "exclusive end key")
	limit := fs.Int64("limit", 0, "max number of results (0 = unlimited)")
	_ = fs.Parse(args)

	conn, table, err := connect(fs)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := client.ScanOptions{}
	if *start != "" {
		opts.StartKey = []byte(*start)
	}
	if *end != "" {
		opts.EndKey = []byte(*end)
	}
	if *limit > 0 {
		opts.Limit = limit
	}
	pairs, err := conn.Scan(table, opts)
	if err != nil {
		return err
	}
	for _, kv := range pairs {
		fmt.Printf("%s\t%s\n", kv.Key, kv.Value)
	}
	return nil
}

func runCount(args []string) error {
	fs := newFlagSet("count")
	start := fs.String("start", "", "inclusive start key")
	end := fs.String("end", "", "exclusive end key")
	_ = fs.Parse(args)

	conn, table, err := connect(fs)
	if err != nil {
		return err
	}
	defer conn.Close()

	var startKey, endKey any
	if *start != "" {
		startKey = []byte(*start)
	}
	if *end != "" {
		endKey = []byte(*end)
	}
	n, err := conn.Count(table, startKey, endKey)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func runDump(args []string) error {
	fs := newFlagSet("dump")
	chunkSize := fs.Int64("chunk-size", 1000, "records per job chunk")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("dump: expected exactly one output file argument")
	}
	conn, table, err := connect(fs)
	if err != nil {
		return err
	}
	defer conn.Close()

	return ydf.Dump(conn, fs.Arg(0), table, nil, nil, 0, *chunkSize)
}

func runImport(args []string) error {
	fs := newFlagSet("import")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("import: expected exactly one input file argument")
	}
	conn, table, err := connect(fs)
	if err != nil {
		return err
	}
	defer conn.Close()

	return ydf.Import(conn, fs.Arg(0), table)
}
