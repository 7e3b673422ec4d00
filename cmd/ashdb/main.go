// Command ashdb is the CLI front end for the embeddable engine: a
// "shell" REPL, a one-shot "exec", and the usual "version"/"help"
// housekeeping subcommands. The REPL's meta-command dispatch and table
// printer follow the shape of the pack's own tinySQL REPL, trimmed
// down to what ashdb's Connection surface actually supports.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ashlang/ashdb"
	"github.com/ashlang/ashdb/pkg/conn"
	"github.com/ashlang/ashdb/pkg/logging"
	"github.com/ashlang/ashdb/pkg/storage"
	"github.com/ashlang/ashdb/pkg/types"
	"github.com/ashlang/ashdb/pkg/vm"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "shell":
		path := ""
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		runShell(path)
	case "exec":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: ashdb exec <db-path|:memory:> <sql>")
			os.Exit(1)
		}
		runExec(os.Args[2], strings.Join(os.Args[3:], " "))
	case "version":
		fmt.Println("ashdb", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ashdb - an embeddable relational database engine

Usage:
  ashdb shell [path]          start an interactive REPL (":memory:" or no path opens an in-memory database)
  ashdb exec <path> <sql>     run one statement and print its result
  ashdb version               print the version
  ashdb help                  print this message`)
}

// cliLogLevel reads ASHDB_LOG so the shell and exec commands can be run
// with "ASHDB_LOG=debug ashdb shell" to see engine/WAL diagnostics on
// stderr; unset means quiet (the pkg/storage default Nop logger).
func cliLogLevel() (zerolog.Level, bool) {
	lvl, ok := os.LookupEnv("ASHDB_LOG")
	if !ok {
		return zerolog.Disabled, false
	}
	parsed, err := zerolog.ParseLevel(lvl)
	if err != nil {
		return zerolog.InfoLevel, true
	}
	return parsed, true
}

func openTarget(path string) (*ashdb.Connection, error) {
	opts := storage.DefaultOptions()
	if path != "" && path != ":memory:" {
		opts.Path = path
	}
	if lvl, on := cliLogLevel(); on {
		opts.Logger = logging.New(os.Stderr, lvl)
	}
	engine, err := storage.Open(opts)
	if err != nil {
		return nil, err
	}
	return conn.NewOwned(engine), nil
}

func runExec(path, sql string) {
	c, err := openTarget(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}
	defer c.Close()

	res, err := c.Execute(sql)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	printResult(res)
}

func runShell(path string) {
	c, err := openTarget(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}

	repl := &shell{conn: c}
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	interactive := isTerminal(os.Stdin)
	if interactive {
		fmt.Println("ashdb shell. Statements end with ';'. '.help' for meta-commands, '.quit' to exit.")
	}

	var buf strings.Builder
	for {
		if interactive {
			if buf.Len() == 0 {
				fmt.Print("ashdb> ")
			} else {
				fmt.Print("    -> ")
			}
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if repl.handleMeta(line) {
				continue
			}
		}
		if line == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(buf.String()), ";")
			buf.Reset()
			repl.runStatement(stmt)
		}
	}
}

type shell struct {
	conn     *ashdb.Connection
	lastStmt *ashdb.Stmt
}

func (s *shell) runStatement(sql string) {
	res, err := s.conn.Execute(sql)
	if err != nil {
		fmt.Println("ERR:", err)
		return
	}
	printResult(res)
}

func (s *shell) handleMeta(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".help":
		fmt.Println(`.open <path>      reopen against a file
.memory           reopen as an in-memory database
.close            close the current connection
.tables           list tables
.schema [table]   show table/column definitions
.stats            print basic catalog counts
.prepare <sql>    prepare a statement, bind with .bind
.bind <i> <v>     bind parameter i of the last prepared statement
.execute          run the last prepared statement
.quit             exit`)
		return true
	case ".open":
		if len(fields) < 2 {
			fmt.Println("ERR: .open requires a path")
			return true
		}
		_ = s.conn.Close()
		c, err := ashdb.Open(fields[1])
		if err != nil {
			fmt.Println("ERR:", err)
			return true
		}
		s.conn = c
		return true
	case ".memory":
		_ = s.conn.Close()
		c, err := ashdb.OpenMemory()
		if err != nil {
			fmt.Println("ERR:", err)
			return true
		}
		s.conn = c
		return true
	case ".close":
		if err := s.conn.Close(); err != nil {
			fmt.Println("ERR:", err)
		}
		return true
	case ".tables":
		cat := s.conn.Catalog()
		names := make([]string, 0, len(cat.Tables))
		for name := range cat.Tables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
		return true
	case ".schema":
		cat := s.conn.Catalog()
		if len(fields) > 1 {
			printSchema(cat, fields[1])
			return true
		}
		names := make([]string, 0, len(cat.Tables))
		for name := range cat.Tables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printSchema(cat, name)
		}
		return true
	case ".stats":
		cat := s.conn.Catalog()
		fmt.Printf("tables: %d, indexes: %d\n", len(cat.Tables), len(cat.Indexes))
		return true
	case ".prepare":
		sql := strings.TrimSpace(strings.TrimPrefix(line, ".prepare"))
		stmt, err := s.conn.Prepare(sql)
		if err != nil {
			fmt.Println("ERR:", err)
			return true
		}
		s.lastStmt = stmt
		return true
	case ".bind":
		if s.lastStmt == nil {
			fmt.Println("ERR: no prepared statement")
			return true
		}
		if len(fields) < 3 {
			fmt.Println("ERR: .bind <index> <value>")
			return true
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("ERR:", err)
			return true
		}
		if err := s.lastStmt.Bind(idx, parseLiteral(fields[2])); err != nil {
			fmt.Println("ERR:", err)
		}
		return true
	case ".execute":
		if s.lastStmt == nil {
			fmt.Println("ERR: no prepared statement")
			return true
		}
		res, err := s.lastStmt.Execute()
		if err != nil {
			fmt.Println("ERR:", err)
			return true
		}
		printResult(res)
		return true
	case ".quit":
		_ = s.conn.Close()
		os.Exit(0)
	}
	return false
}

func parseLiteral(s string) types.Value {
	if s == "NULL" {
		return types.Null()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.Integer(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.Real(f)
	}
	return types.Text(strings.Trim(s, "'\""))
}

func printSchema(cat *storage.Catalog, table string) {
	def, err := cat.Table(table)
	if err != nil {
		fmt.Println("ERR:", err)
		return
	}
	fmt.Printf("%s:\n", def.Name)
	for _, c := range def.Columns {
		pk := ""
		if c.PrimaryKey {
			pk = " PRIMARY KEY"
		}
		null := " NOT NULL"
		if c.Nullable {
			null = ""
		}
		fmt.Printf("  %s %s%s%s\n", c.Name, c.Kind, pk, null)
	}
	indexes := cat.IndexesOn(table)
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	for _, idx := range indexes {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		fmt.Printf("  INDEX %s%s ON (%s)\n", unique, idx.Name, idx.Column)
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func printResult(res vm.Result) {
	if len(res.Columns) == 0 && len(res.Rows) == 0 {
		fmt.Printf("OK (%d row(s) affected)\n", res.AffectedRows)
		return
	}
	width := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		width[i] = len(c)
	}
	cellStrings := make([][]string, len(res.Rows))
	for r, row := range res.Rows {
		cellStrings[r] = make([]string, len(row))
		for i, v := range row {
			s := v.String()
			cellStrings[r][i] = s
			if i < len(width) && len(s) > width[i] {
				width[i] = len(s)
			}
		}
	}
	for i, c := range res.Columns {
		fmt.Print(padRight(c, width[i]), "  ")
	}
	fmt.Println()
	for _, w := range width {
		fmt.Print(strings.Repeat("-", w), "  ")
	}
	fmt.Println()
	for _, row := range cellStrings {
		for i, s := range row {
			fmt.Print(padRight(s, width[i]), "  ")
		}
		fmt.Println()
	}
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
