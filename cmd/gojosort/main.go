// Command gojosort creates, inspects and sorts paged record files.
//
//	gojosort [--config file] generate <file> --count N [--seed S]
//	gojosort [--config file] insert <file> --id ID --name N --surname S --city C
//	gojosort [--config file] print <file>
//	gojosort [--config file] sort <input> <output> --field city [--budget 10]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/sushant-115/gojosort/config"
	externalsort "github.com/sushant-115/gojosort/core/external_sort"
	recordfile "github.com/sushant-115/gojosort/core/record_file"
	bufferpool "github.com/sushant-115/gojosort/core/storage_engine/buffer_pool"
	"github.com/sushant-115/gojosort/pkg/logger"
	"github.com/sushant-115/gojosort/pkg/telemetry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const usage = `usage: gojosort [--config file] <command> [flags] [args]

commands:
  generate <file>          create a record file with random records
  insert <file>            append one record
  print <file>             list every record
  sort <input> <output>    write the records of input, sorted, to output
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "gojosort:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// app is the wiring shared by every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry
	bpm    *bufferpool.BufferPoolManager
	files  *recordfile.Manager
	out    io.Writer
}

func newApp(cfg config.Config, out io.Writer) (*app, error) {
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	tel, err := telemetry.New(cfg.Telemetry, log)
	if err != nil {
		return nil, err
	}
	bpm, err := bufferpool.NewBufferPoolManager(cfg.Storage.BufferPoolPages, cfg.Storage.PageSize, log)
	if err != nil {
		return nil, multierr.Append(err, tel.Shutdown(context.Background()))
	}
	files, err := recordfile.NewManager(bpm, log)
	if err != nil {
		return nil, multierr.Combine(err, bpm.Close(), tel.Shutdown(context.Background()))
	}
	return &app{cfg: cfg, logger: log, tel: tel, bpm: bpm, files: files, out: out}, nil
}

// Close writes back every cached page before closing the pool.
func (a *app) Close(ctx context.Context) error {
	err := multierr.Combine(a.bpm.FlushAllPages(), a.bpm.Close(), a.tel.Shutdown(ctx))
	_ = a.logger.Sync()
	return err
}

func run(ctx context.Context, args []string, out io.Writer) (err error) {
	global := pflag.NewFlagSet("gojosort", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	configPath := global.StringP("config", "c", "", "YAML configuration file")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if global.NArg() == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	var cmd func(context.Context, *app, []string) error
	switch name := global.Arg(0); name {
	case "generate":
		cmd = runGenerate
	case "insert":
		cmd = runInsert
	case "print":
		cmd = runPrint
	case "sort":
		cmd = runSort
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	a, err := newApp(cfg, out)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close(ctx)) }()
	return cmd(ctx, a, global.Args()[1:])
}

// parseCommand parses the flags of command name and checks its positional argument count.
func parseCommand(name string, fs *pflag.FlagSet, args []string, positional int) ([]string, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUsage, name, err)
	}
	if fs.NArg() != positional {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, name, positional, fs.NArg())
	}
	return fs.Args(), nil
}

var (
	genNames    = []string{"Giorgos", "Maria", "Nikos", "Eleni", "Kostas", "Sofia", "Dimitris", "Anna"}
	genSurnames = []string{"Papadopoulos", "Georgiou", "Nikolaou", "Ioannou", "Christodoulou", "Pappas"}
	genCities   = []string{"Athens", "Thessaloniki", "Patra", "Heraklion", "Larisa", "Volos"}
)

func runGenerate(_ context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	count := fs.IntP("count", "n", 1000, "number of records")
	seed := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	pos, err := parseCommand("generate", fs, args, 1)
	if err != nil {
		return err
	}
	if *count < 0 {
		return fmt.Errorf("%w: generate: negative count %d", errUsage, *count)
	}

	path := pos[0]
	if err := a.files.CreateFile(path); err != nil {
		return err
	}
	f, err := a.files.OpenFile(path)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(*seed))
	for i := 0; i < *count; i++ {
		rec := recordfile.Record{
			ID:      int32(rng.Intn(*count + 1)),
			Name:    genNames[rng.Intn(len(genNames))],
			Surname: genSurnames[rng.Intn(len(genSurnames))],
			City:    genCities[rng.Intn(len(genCities))],
		}
		if err := a.files.InsertEntry(f, rec); err != nil {
			return multierr.Append(err, a.files.CloseFile(f))
		}
	}
	if err := a.files.CloseFile(f); err != nil {
		return err
	}
	a.logger.Info("Generated record file", zap.String("path", path), zap.Int("records", *count), zap.Int64("seed", *seed))
	return a.report(path)
}

func runInsert(_ context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("insert", pflag.ContinueOnError)
	id := fs.Int32("id", 0, "record id")
	name := fs.String("name", "", "first name")
	surname := fs.String("surname", "", "surname")
	city := fs.String("city", "", "city")
	create := fs.Bool("create", false, "create the file if it does not exist")
	pos, err := parseCommand("insert", fs, args, 1)
	if err != nil {
		return err
	}

	path := pos[0]
	if *create {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			if err := a.files.CreateFile(path); err != nil {
				return err
			}
		}
	}
	f, err := a.files.OpenFile(path)
	if err != nil {
		return err
	}
	rec := recordfile.Record{ID: *id, Name: *name, Surname: *surname, City: *city}
	return multierr.Append(a.files.InsertEntry(f, rec), a.files.CloseFile(f))
}

func runPrint(_ context.Context, a *app, args []string) error {
	pos, err := parseCommand("print", pflag.NewFlagSet("print", pflag.ContinueOnError), args, 1)
	if err != nil {
		return err
	}
	f, err := a.files.OpenFile(pos[0])
	if err != nil {
		return err
	}
	return multierr.Append(a.files.PrintAllEntries(f, a.out), a.files.CloseFile(f))
}

func runSort(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("sort", pflag.ContinueOnError)
	fieldName := fs.StringP("field", "f", "id", "field to sort by: id, name, surname, city or 0-3")
	budget := fs.IntP("budget", "b", a.cfg.Sort.BufferBudget, "pages the sort may pin")
	pos, err := parseCommand("sort", fs, args, 2)
	if err != nil {
		return err
	}
	field, err := externalsort.ParseField(*fieldName)
	if err != nil {
		return err
	}

	sorter, err := externalsort.NewSorter(a.files, externalsort.Options{
		ScratchRoot:         a.cfg.Sort.ScratchRoot,
		CopyRateBytesPerSec: a.cfg.Sort.CopyRateBytesPerSec,
		Meter:               a.tel.Meter,
		Tracer:              a.tel.Tracer,
	}, a.logger)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := sorter.SortedFile(ctx, pos[0], pos[1], field, *budget); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "sorted %s by %s in %s\n", pos[0], field, time.Since(start).Round(time.Millisecond))
	return a.report(pos[1])
}

// report prints a one-line summary of a record file.
func (a *app) report(path string) error {
	f, err := a.files.OpenFile(path)
	if err != nil {
		return err
	}
	md, err := a.files.Metadata(f)
	if err = multierr.Append(err, a.files.CloseFile(f)); err != nil {
		return err
	}
	size := uint64(md.PageCount) * uint64(a.bpm.PageSize())
	fmt.Fprintf(a.out, "%s: %s records, %s pages, %s\n",
		path, humanize.Comma(int64(md.RecordCount)), humanize.Comma(int64(md.PageCount)), humanize.IBytes(size))
	return nil
}
