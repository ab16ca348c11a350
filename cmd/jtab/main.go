package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/jtab/pkg/seed"
	"github.com/umputun/jtab/pkg/store"
	"github.com/umputun/jtab/pkg/table"
)

type options struct {
	Conn string `short:"c" long:"conn" env:"JTAB_CONN" default:"jtab.db" description:"connection string to use for the tables database"`
	Dbg  bool   `long:"dbg" description:"debug mode"`

	LoadCmd struct {
		PositionalArgs struct {
			File string `positional-arg-name:"file" description:"seed file with table definitions and rows"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"load" description:"register tables and write rows from a seed file"`

	DumpCmd struct {
		PositionalArgs struct {
			Table string `positional-arg-name:"table" description:"table to dump, all tables if omitted"`
		} `positional-args:"yes" positional-optional:"yes"`
	} `command:"dump" description:"dump one table or all tables as json"`

	CountCmd struct {
		PositionalArgs struct {
			Table string `positional-arg-name:"table" description:"table to count rows in"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"count" description:"report the number of stored rows"`

	DemoCmd struct {
	} `command:"demo" description:"write a generated sample table"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	fmt.Printf("jtab %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
	}
	setupLog(opts.Dbg)

	if err := run(p, opts); err != nil {
		log.Printf("[WARN] %v", err)
	}
}

func run(p *flags.Parser, opts options) error {
	ctx := context.Background()

	st, err := store.New(opts.Conn)
	if err != nil {
		return fmt.Errorf("can't create store: %w", err)
	}
	if err = st.Init(ctx); err != nil {
		return fmt.Errorf("can't init store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Printf("[WARN] can't close store: %v", closeErr)
		}
	}()

	// load seed file
	if p.Active != nil && p.Command.Find("load") == p.Active {
		log.Printf("[INFO] load command, file=%s", opts.LoadCmd.PositionalArgs.File)
		if loadErr := loadSeed(ctx, st, opts.LoadCmd.PositionalArgs.File); loadErr != nil {
			return fmt.Errorf("can't load seed file %q: %w", opts.LoadCmd.PositionalArgs.File, loadErr)
		}
	}

	// dump table(s)
	if p.Active != nil && p.Command.Find("dump") == p.Active {
		log.Printf("[INFO] dump command, table=%q", opts.DumpCmd.PositionalArgs.Table)
		if dumpErr := dump(ctx, st, opts.DumpCmd.PositionalArgs.Table); dumpErr != nil {
			return fmt.Errorf("can't dump: %w", dumpErr)
		}
	}

	// count rows
	if p.Active != nil && p.Command.Find("count") == p.Active {
		log.Printf("[INFO] count command, table=%q", opts.CountCmd.PositionalArgs.Table)
		count, countErr := st.RowCount(ctx, opts.CountCmd.PositionalArgs.Table)
		if countErr != nil {
			return fmt.Errorf("can't count rows: %w", countErr)
		}
		fmt.Printf("%d\n", count)
	}

	// write generated sample data
	if p.Active != nil && p.Command.Find("demo") == p.Active {
		log.Printf("[INFO] demo command")
		if demoErr := writeDemo(ctx, st); demoErr != nil {
			return fmt.Errorf("can't write demo data: %w", demoErr)
		}
	}

	return nil
}

func loadSeed(ctx context.Context, st *store.Store, fname string) error {
	data, err := seed.Load(fname)
	if err != nil {
		return err
	}
	for _, cfg := range data.Configs() {
		if err := st.CreateTable(ctx, cfg); err != nil {
			return err
		}
	}
	if err := st.Write(ctx, data.TableData()); err != nil {
		return err
	}
	log.Printf("[INFO] loaded %d tables from %s", len(data.Tables), fname)
	return nil
}

func dump(ctx context.Context, st *store.Store, tableKey string) error {
	var res any
	var err error
	if tableKey == "" {
		res, err = st.DumpAll(ctx)
	} else {
		res, err = st.DumpTable(ctx, tableKey)
	}
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("can't serialize dump: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func writeDemo(ctx context.Context, st *store.Store) error {
	cfg := table.Config{Key: "notes", Type: "demo", Columns: []table.Column{
		{Key: "id", Type: table.String},
		{Key: "title", Type: table.String},
		{Key: "done", Type: table.Boolean},
		{Key: "tags", Type: table.JSONArray},
	}}
	if err := st.CreateTable(ctx, cfg); err != nil {
		return err
	}

	tbl := &table.Table{Type: "demo", Data: []table.Row{
		{"id": uuid.New().String(), "title": "first note", "done": false, "tags": []any{"demo", "first"}},
		{"id": uuid.New().String(), "title": "second note", "done": true},
	}}
	if err := st.Write(ctx, map[string]*table.Table{"notes": tbl}); err != nil {
		return err
	}

	count, err := st.RowCount(ctx, "notes")
	if err != nil {
		return err
	}
	log.Printf("[INFO] demo table %q has %d rows", "notes", count)
	return nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
