package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/JonMunkholm/issuerdesk/internal/config"
	"github.com/JonMunkholm/issuerdesk/internal/core"
	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/store"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

type columnsCmd struct {
	recordType string

	out io.Writer
}

func (*columnsCmd) Name() string     { return "columns" }
func (*columnsCmd) Synopsis() string { return "show a file's columns and the automatic mapping" }
func (*columnsCmd) Usage() string {
	return `columns -type <issuers|securities> <file>

  Loads a .csv or .xlsx file and prints its header row together with the
  mapping that would be applied without any -map overrides. Nothing is
  written.
`
}

func (c *columnsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.recordType, "type", "issuers", "record type: issuers or securities")
}

func (c *columnsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one file is required.")
		return subcommands.ExitUsageError
	}
	rt, err := schema.ParseRecordType(c.recordType)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	table, err := tabular.LoadFile(f.Arg(0), loadOptions(cfg))
	if err != nil {
		return reportError(err)
	}

	return writeResult(c.out, struct {
		File      string             `json:"file"`
		Columns   []string           `json:"columns"`
		Rows      int                `json:"rows"`
		Candidate core.MappingResult `json:"candidate"`
	}{
		File:      table.FileName,
		Columns:   table.Columns,
		Rows:      len(table.Rows),
		Candidate: core.MapRecordFields(rt, table.Columns, nil, nil),
	})
}

// importCmd loads one file of recordType. It is registered once per record
// type.
type importCmd struct {
	recordType schema.RecordType

	mapping pairsFlag
	custom  pairsFlag
	user    string
	role    string
	dryRun  bool

	out io.Writer
}

func (c *importCmd) Name() string { return c.recordType.Plural() }
func (c *importCmd) Synopsis() string {
	return "import a " + string(c.recordType) + " spreadsheet"
}
func (c *importCmd) Usage() string {
	return c.Name() + ` [-map field=column]... [-custom column=label]... [-user name] [-role role] [-dry-run] <file>

  Maps the file's columns, validates every row and merges the valid rows
  into the store configured by STORE_BACKEND. Row errors are reported but
  do not stop the import. With -dry-run the file is previewed instead and
  nothing is written.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	c.mapping = pairsFlag{}
	c.custom = pairsFlag{}
	f.Var(c.mapping, "map", "map a canonical field to a column, field=column (repeatable)")
	f.Var(c.custom, "custom", "keep a column as a custom field, column=label (repeatable)")
	f.StringVar(&c.user, "user", os.Getenv("USER"), "uploading principal")
	f.StringVar(&c.role, "role", string(core.RoleCustodian), "principal role")
	f.BoolVar(&c.dryRun, "dry-run", false, "preview the import without writing")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one file is required.")
		return subcommands.ExitUsageError
	}
	if len(c.custom) > schema.MaxCustomFields {
		fmt.Fprintf(os.Stderr, "Error: at most %d custom fields.\n", schema.MaxCustomFields)
		return subcommands.ExitUsageError
	}

	p := core.Principal{Username: strings.TrimSpace(c.user), Role: core.Role(strings.ToLower(c.role))}
	if err := core.Authorize(p); err != nil {
		return reportError(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}

	table, err := tabular.LoadFile(f.Arg(0), loadOptions(cfg))
	if err != nil {
		return reportError(err)
	}

	st, closeStore, err := store.Open(ctx, store.OpenOptions{
		Backend:         cfg.Store.Backend,
		Dir:             cfg.Store.Dir,
		DatabaseURL:     cfg.Store.DatabaseURL,
		MaxConns:        cfg.Store.MaxConns,
		MinConns:        cfg.Store.MinConns,
		MaxConnLifetime: cfg.Store.MaxConnLifetime,
		MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s store: %v\n", cfg.Store.Backend, err)
		return subcommands.ExitFailure
	}
	defer closeStore()

	svc := core.NewService(st, core.Options{MaxConcurrent: 1, MaxWait: time.Second})

	u := core.NewUpload(c.recordType, table, p, time.Now().UTC())
	if _, err := u.ApplyMapping(c.mapping.mapOrNil(), c.custom.mapOrNil()); err != nil {
		return reportError(err)
	}

	if c.dryRun {
		preview, err := svc.Preview(ctx, u)
		if err != nil {
			return reportError(err)
		}
		return writeResult(c.out, preview)
	}

	res, err := svc.Process(ctx, u)
	if err != nil {
		return reportError(err)
	}
	if status := writeResult(c.out, res); status != subcommands.ExitSuccess {
		return status
	}
	fmt.Fprintf(os.Stderr, "Imported %d %s from %s (%d row errors).\n",
		res.Processed, c.recordType.Plural(), table.FileName, len(res.Errors))
	return subcommands.ExitSuccess
}

func loadOptions(cfg *config.Config) tabular.Options {
	return tabular.Options{MaxBytes: cfg.Upload.MaxFileSize, MaxRows: cfg.Upload.MaxRows}
}

// reportError prints the coded message and, for file-level failures, the
// detail needed to fix the file.
func reportError(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %s\n", core.FormatUserError(err))

	var fe *core.FileError
	if errors.As(err, &fe) {
		if len(fe.Fields) > 0 {
			fmt.Fprintf(os.Stderr, "  unmapped: %s\n", strings.Join(fe.Fields, ", "))
		}
		for i := range fe.RowErrors {
			fmt.Fprintf(os.Stderr, "  %s\n", fe.RowErrors[i].Error())
		}
	} else if !core.IsUserFacing(err) {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
	}
	return subcommands.ExitFailure
}

func writeResult(w io.Writer, v any) subcommands.ExitStatus {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing result: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
