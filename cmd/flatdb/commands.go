package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andreyvit/flatdb"
	"golang.org/x/sync/errgroup"
)

type env struct {
	cfg   config
	store *flatdb.Store
	out   io.Writer
}

type command struct {
	name  string
	args  string
	help  string
	run   func(ctx context.Context, e *env, args []string) error
	watch bool
}

var commands = []*command{
	{name: "list", help: "list collections", run: runList},
	{name: "dump", args: "<coll>", help: "print records, one JSON object per line", run: runDump},
	{name: "find", args: "[-all] <coll> <query>", help: "print the first (or every) matching record", run: runFind},
	{name: "insert", args: "<coll> <record>...", help: "append records", run: runInsert},
	{name: "update", args: "[-upsert] [-multi] <coll> <query> <update>", help: "apply update operators", run: runUpdate},
	{name: "delete", args: "[-multi] <coll> <query>", help: "remove matching records", run: runDelete},
	{name: "stats", args: "<coll>", help: "print collection statistics", run: runStats},
	{name: "convert", args: "[-out dir] [-legacy] <format> [coll...]", help: "rewrite collections in another format", run: runConvert},
	{name: "watch", help: "log index invalidations caused by external writes", run: runWatch, watch: true},
}

func findCommand(name string) *command {
	i := slices.IndexFunc(commands, func(c *command) bool { return c.name == name })
	if i < 0 {
		return nil
	}
	return commands[i]
}

func printCommands(w io.Writer) {
	fmt.Fprintf(w, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %-44s %s\n", c.name, c.args, c.help)
	}
}

func needArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: wanted %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func parseQuery(s string) (*flatdb.Object, error) {
	q, err := flatdb.ParseObject(s)
	if err != nil {
		return nil, fmt.Errorf("invalid query %s: %w", s, err)
	}
	return q, nil
}

func printRecords(w io.Writer, coll flatdb.Collection) error {
	for _, rec := range coll {
		if _, err := fmt.Fprintln(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func runList(ctx context.Context, e *env, args []string) error {
	if err := needArgs("list", args, 0); err != nil {
		return err
	}
	names, err := e.store.Collections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(e.out, name)
	}
	return nil
}

func runDump(ctx context.Context, e *env, args []string) error {
	if err := needArgs("dump", args, 1); err != nil {
		return err
	}
	coll, err := e.store.Find(ctx, args[0], flatdb.NewObject())
	if err != nil {
		return err
	}
	return printRecords(e.out, coll)
}

func runFind(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	all := fs.Bool("all", false, "print every match")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs("find", fs.Args(), 2); err != nil {
		return err
	}
	name := fs.Arg(0)
	query, err := parseQuery(fs.Arg(1))
	if err != nil {
		return err
	}
	if *all {
		coll, err := e.store.Find(ctx, name, query)
		if err != nil {
			return err
		}
		return printRecords(e.out, coll)
	}
	rec, err := e.store.FindOne(ctx, name, query)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("find: no record in %s matches %v", name, query)
	}
	return printRecords(e.out, flatdb.Collection{rec})
}

func runInsert(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("insert: wanted a collection and at least one record")
	}
	for _, s := range args[1:] {
		rec, err := flatdb.ParseObject(s)
		if err != nil {
			return fmt.Errorf("invalid record %s: %w", s, err)
		}
		rec, err = e.store.Insert(ctx, args[0], rec)
		if err != nil {
			return err
		}
		id, _ := rec.Get(e.store.IDField())
		slog.InfoContext(ctx, "Inserted", "collection", args[0], "id", id.String())
	}
	return nil
}

func runUpdate(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	var opt flatdb.UpdateOptions
	fs.BoolVar(&opt.Upsert, "upsert", false, "insert a record when nothing matches")
	fs.BoolVar(&opt.Multi, "multi", false, "update every matching record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs("update", fs.Args(), 3); err != nil {
		return err
	}
	query, err := parseQuery(fs.Arg(1))
	if err != nil {
		return err
	}
	update, err := flatdb.ParseUpdate(fs.Arg(2))
	if err != nil {
		return fmt.Errorf("invalid update %s: %w", fs.Arg(2), err)
	}
	res, err := e.store.Update(ctx, fs.Arg(0), query, update, opt)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "matched=%d modified=%d", res.Matched, res.Modified)
	if !res.UpsertedID.IsNull() {
		fmt.Fprintf(e.out, " upserted=%v", res.UpsertedID)
	}
	fmt.Fprintln(e.out)
	return nil
}

func runDelete(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	multi := fs.Bool("multi", false, "delete every matching record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs("delete", fs.Args(), 2); err != nil {
		return err
	}
	query, err := parseQuery(fs.Arg(1))
	if err != nil {
		return err
	}
	n, err := e.store.Delete(ctx, fs.Arg(0), query, *multi)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "deleted=%d\n", n)
	return nil
}

func runStats(ctx context.Context, e *env, args []string) error {
	if err := needArgs("stats", args, 1); err != nil {
		return err
	}
	st, err := e.store.Stats(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "records=%d fields=%d nested=%d max_depth=%d indexed_values=%d\n", st.Records, st.Fields, st.NestedValues, st.MaxDepth, st.IndexedValues)
	return nil
}

// runConvert copies collections into a file adapter of another format,
// several collections at a time.
func runConvert(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	outDir := fs.String("out", "", "output directory (defaults to the data directory)")
	legacy := fs.Bool("legacy", e.cfg.Legacy, "write binary files in the legacy layout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("convert: wanted a target format")
	}
	format, err := flatdb.ParseFormat(fs.Arg(0))
	if err != nil {
		return err
	}
	if *outDir == "" {
		if _, isFile := e.store.Adapter().(*flatdb.FileAdapter); !isFile {
			return errors.New("convert: -out is required unless data_dir is a directory")
		}
		*outDir = e.cfg.DataDir
	}
	dst, err := flatdb.NewFileAdapter(*outDir, flatdb.FileOptions{
		Format: format,
		Secret: e.cfg.secret(),
		Legacy: *legacy,
	})
	if err != nil {
		return err
	}

	names := fs.Args()[1:]
	if len(names) == 0 {
		names, err = e.store.Collections(ctx)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		g.Go(func() error {
			coll, err := e.store.Find(ctx, name, flatdb.NewObject())
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := dst.Persist(ctx, name, coll); err != nil {
				return err
			}
			slog.InfoContext(ctx, "Converted", "collection", name, "records", len(coll), "file", dst.Path(name))
			return nil
		})
	}
	return g.Wait()
}

func runWatch(ctx context.Context, e *env, args []string) error {
	if err := needArgs("watch", args, 0); err != nil {
		return err
	}
	fa, ok := e.store.Adapter().(*flatdb.FileAdapter)
	if !ok {
		return errors.New("watch: data_dir must be a directory")
	}
	dir, err := filepath.Abs(fa.Dir())
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Watching", "dir", dir)
	return e.store.Watch(ctx, dir)
}

// storeLogf forwards Store logs to slog. Lines already carry a "flatdb: "
// prefix, which is dropped.
func storeLogf(ctx context.Context, level slog.Level) func(format string, args ...any) {
	return func(format string, args ...any) {
		msg := strings.TrimPrefix(fmt.Sprintf(format, args...), "flatdb: ")
		slog.Log(ctx, level, msg)
	}
}
