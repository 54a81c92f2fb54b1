// segtool inspects and maintains a segment store directory.
//
// Usage:
//
//	segtool [global flags] <command> [command flags]
//
// Commands:
//
//	check      open the store, recovering unsealed files, and print its state
//	graph      print the segment graph, one edge per line
//	blobrefs   print every external blob id referenced by a data segment
//	gc         delete blobs of the blob store that no segment references
//	head       print the head record, or move it with "head set <record-id>"
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/hupe1980/segstore"
	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	dir        string
	readOnly   bool
	quarantine bool
	logLevel   string
	jsonLog    bool
	blobStore  string
	blobCache  int64
	revisions  string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&g.dir, "dir", "d", ".", "segment store directory")
	fs.BoolVar(&g.readOnly, "read-only", false, "open the store read-only (fails if recovery is needed)")
	fs.BoolVar(&g.quarantine, "quarantine", false, "quarantine undecodable entries during recovery instead of failing")
	fs.StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolVar(&g.jsonLog, "json-log", false, "write JSON log records")
	fs.StringVar(&g.blobStore, "blob-store", "", "external blob store: file://<dir>, s3://<bucket>/<prefix> or minio://<endpoint>/<bucket>/<prefix>")
	fs.Int64Var(&g.blobCache, "blob-cache", 0, "block cache size in bytes in front of the blob store (0 disables)")
	fs.StringVar(&g.revisions, "revisions", "", "head store: bolt://<path> or dynamodb://<table>/<store>")
}

func (g *globalFlags) logger() (*segstore.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	if g.jsonLog {
		return segstore.NewJSONLogger(level), nil
	}
	return segstore.NewTextLogger(level), nil
}

// open opens the store with the configured backends. Closing the store also
// closes the revisions backend.
func (g *globalFlags) open(ctx context.Context) (*segstore.Store, error) {
	logger, err := g.logger()
	if err != nil {
		return nil, err
	}

	opts := []segstore.Option{
		segstore.WithLogger(logger),
		segstore.WithReadOnly(g.readOnly),
	}
	if g.quarantine {
		opts = append(opts, segstore.WithRecoveryPolicy(segstore.RecoveryQuarantine))
	}

	bs, err := openBlobStore(ctx, g.blobStore, g.blobCache)
	if err != nil {
		return nil, err
	}
	if bs != nil {
		opts = append(opts, segstore.WithBlobStore(bs))
	}

	rev, err := openRevisions(ctx, g.revisions)
	if err != nil {
		return nil, err
	}
	if rev != nil {
		opts = append(opts, segstore.WithRevisions(rev))
	}

	s, err := segstore.Open(g.dir, opts...)
	if err != nil {
		if rev != nil {
			_ = rev.Close()
		}
		return nil, err
	}
	return s, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("segtool", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	g.register(flagSet)
	flagSet.Usage = func() { printUsage(out, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(out, flagSet)
		return errors.New("missing command")
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "check":
		return runCheck(ctx, &g, cmdArgs, out)
	case "graph":
		return runGraph(ctx, &g, cmdArgs, out)
	case "blobrefs":
		return runBlobRefs(ctx, &g, cmdArgs, out)
	case "gc":
		return runGC(ctx, &g, cmdArgs, out)
	case "head":
		return runHead(ctx, &g, cmdArgs, out)
	case "help":
		printUsage(out, flagSet)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(out io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(out, "Usage: segtool [global flags] <check|graph|blobrefs|gc|head> [command flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Global flags:")
	fmt.Fprint(out, fs.FlagUsages())
}

func withStore(ctx context.Context, g *globalFlags, fn func(s *segstore.Store) error) (err error) {
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}

func runCheck(ctx context.Context, g *globalFlags, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(ctx, g, func(s *segstore.Store) error {
		fmt.Fprintf(out, "store version: %d\n", s.StoreVersion())

		ids := s.SegmentIDs()
		var data, bulk int
		for _, id := range ids {
			if id.IsData() {
				data++
			} else {
				bulk++
			}
		}
		fmt.Fprintf(out, "segments: %d (data %d, bulk %d)\n", len(ids), data, bulk)

		for _, f := range s.Files() {
			state := "sealed"
			if !f.Sealed {
				state = "active"
			}
			fmt.Fprintf(out, "file %s: %d bytes, %d entries, %s\n", f.Name, f.Size, f.Entries, state)
		}

		graph := s.SegmentGraph()
		edges := 0
		for _, to := range graph {
			edges += len(to)
		}
		fmt.Fprintf(out, "graph: %d segments with %d edges\n", len(graph), edges)

		for _, q := range s.QuarantinedEntries() {
			fmt.Fprintf(out, "quarantined %s: %s: %v\n", q.ID, q.Kind, q.Err)
		}
		return nil
	})
}

func runGraph(ctx context.Context, g *globalFlags, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("graph", pflag.ContinueOnError)
	var roots []string
	fs.StringSliceVar(&roots, "from", nil, "print only segments reachable from these segment ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(ctx, g, func(s *segstore.Store) error {
		graph := s.SegmentGraph()

		if len(roots) > 0 {
			ids := make([]model.SegmentID, 0, len(roots))
			for _, r := range roots {
				id, err := model.ParseSegmentID(r)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			keep := make(map[model.SegmentID]bool)
			for _, id := range s.ReachableSegments(ids...) {
				keep[id] = true
			}
			for from := range graph {
				if !keep[from] {
					delete(graph, from)
				}
			}
		}

		lines := make([]string, 0, len(graph))
		for from, to := range graph {
			for _, t := range to {
				lines = append(lines, from.String()+" -> "+t.String())
			}
		}
		sort.Strings(lines)
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
		return nil
	})
}

func runBlobRefs(ctx context.Context, g *globalFlags, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("blobrefs", pflag.ContinueOnError)
	counts := fs.Bool("count", false, "print the number of occurrences next to each blob id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(ctx, g, func(s *segstore.Store) error {
		refs, err := collectReferences(ctx, s)
		if err != nil {
			return err
		}
		for _, id := range sortedKeys(refs) {
			if *counts {
				fmt.Fprintf(out, "%s\t%d\n", id, refs[id])
			} else {
				fmt.Fprintln(out, id)
			}
		}
		return nil
	})
}

func runGC(ctx context.Context, g *globalFlags, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gc", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report unreferenced blobs without deleting them")
	prefix := fs.String("prefix", "", "only consider blobs with this name prefix")
	concurrency := fs.Int("concurrency", 8, "concurrent deletes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if g.blobStore == "" {
		return errors.New("gc needs --blob-store")
	}

	return withStore(ctx, g, func(s *segstore.Store) error {
		refs, err := collectReferences(ctx, s)
		if err != nil {
			return err
		}

		report, err := blobstore.Sweep(ctx, s.BlobStore(), func(name string) bool {
			_, ok := refs[name]
			return ok
		}, blobstore.SweepOptions{
			Prefix:      *prefix,
			DryRun:      *dryRun,
			Concurrency: *concurrency,
		})
		for _, name := range report.Deleted {
			if *dryRun {
				fmt.Fprintf(out, "would delete %s\n", name)
			} else {
				fmt.Fprintf(out, "deleted %s\n", name)
			}
		}
		fmt.Fprintf(out, "listed %d, kept %d, unreferenced %d\n", report.Listed, report.Kept, len(report.Deleted))
		return err
	})
}

func runHead(ctx context.Context, g *globalFlags, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("head", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if g.revisions == "" {
		return errors.New("head needs --revisions")
	}

	return withStore(ctx, g, func(s *segstore.Store) error {
		current, ok, err := s.Head(ctx)
		if err != nil {
			return err
		}

		rest := fs.Args()
		if len(rest) == 0 {
			if !ok {
				fmt.Fprintln(out, "no head")
				return nil
			}
			fmt.Fprintln(out, current)
			return nil
		}
		if rest[0] != "set" || len(rest) != 2 {
			return errors.New(`usage: segtool head [set <record-id>]`)
		}

		head, err := model.ParseRecordID(rest[1])
		if err != nil {
			return err
		}
		swapped, err := s.SetHead(ctx, current, head)
		if err != nil {
			return err
		}
		if !swapped {
			return fmt.Errorf("head moved concurrently from %s", current)
		}
		fmt.Fprintln(out, head)
		return nil
	})
}

// collectReferences counts the occurrences of every referenced blob id.
func collectReferences(ctx context.Context, s *segstore.Store) (map[string]int, error) {
	refs := make(map[string]int)
	err := s.CollectBlobReferences(ctx, func(blobID string) {
		refs[blobID]++
	})
	return refs, err
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
