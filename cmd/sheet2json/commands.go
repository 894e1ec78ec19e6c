package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetjson/internal/config"
	"github.com/JonMunkholm/sheetjson/internal/core"
	"github.com/JonMunkholm/sheetjson/internal/logging"
	"github.com/JonMunkholm/sheetjson/internal/source"
)

// app holds the flags and streams shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	lookup config.LookupFunc

	xlsxPath    string
	spreadsheet string
	outputPath  string
	logLevel    string
	pretty      bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sheet2json",
		Short:         "Print spreadsheet tables as JSON records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupWriter(a.stderr, a.logLevel, "text")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.xlsxPath, "xlsx", "", "Read a local .xlsx workbook instead of Google Sheets")
	flags.StringVar(&a.spreadsheet, "spreadsheet", "", "Spreadsheet id (default: $SPREADSHEET_ID)")
	flags.StringVarP(&a.outputPath, "output", "o", "", "Output file path (default: stdout)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level for diagnostics on stderr: debug, info, warn, error")
	flags.BoolVar(&a.pretty, "pretty", false, "Pretty-print JSON output")

	root.AddCommand(a.tablesCmd(), a.getCmd(), a.batchCmd(), a.authCmd())
	return root
}

func (a *app) tablesCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRetriever(cmd.Context(), func(ctx context.Context, r *core.Retriever) error {
				md, err := r.Metadata(ctx, refresh)
				if err != nil {
					return err
				}
				return a.write(md)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore cached metadata")
	return cmd
}

// layoutFlags override the configured layout when set.
type layoutFlags struct {
	titleLine      int
	validationLine int
	firstLine      int
	sort           bool
	vertical       bool
}

func (l *layoutFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&l.titleLine, "title-line", 0, "1-based line holding column titles")
	f.IntVar(&l.validationLine, "validation-line", 0, "1-based line holding column rules, 0 for none")
	f.IntVar(&l.firstLine, "first-line", 0, "1-based first data line")
	f.BoolVar(&l.sort, "sort", false, "Sort record keys by column title")
	f.BoolVar(&l.vertical, "vertical", false, "Tables are laid out in columns instead of rows")
}

// layout returns nil when no layout flag was given.
func (l *layoutFlags) layout(cmd *cobra.Command, base core.Layout) *core.Layout {
	f := cmd.Flags()
	changed := false
	if f.Changed("title-line") {
		base.TitleLine, changed = l.titleLine, true
	}
	if f.Changed("validation-line") {
		base.ValidationLine, changed = l.validationLine, true
	}
	if f.Changed("first-line") {
		base.FirstDataLine, changed = l.firstLine, true
	}
	if f.Changed("sort") {
		base.Sort, changed = l.sort, true
	}
	if f.Changed("vertical") {
		base.Orientation, changed = core.RowMajor, true
		if l.vertical {
			base.Orientation = core.ColumnMajor
		}
	}
	if !changed {
		return nil
	}
	return &base
}

// rawTable is the output of --raw.
type rawTable struct {
	Titles []string   `json:"titles"`
	Rows   [][]string `json:"rows"`
}

func newRawTable(t *core.Table) rawTable {
	out := rawTable{Titles: t.Titles(), Rows: [][]string{}}
	for _, row := range t.DataRows(nil) {
		out.Rows = append(out.Rows, row.Cells)
	}
	return out
}

func (a *app) getCmd() *cobra.Command {
	var (
		lf         layoutFlags
		start, end string
		raw        bool
	)
	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print the records of one table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRetriever(cmd.Context(), func(ctx context.Context, r *core.Retriever) error {
				res, err := r.FetchOne(ctx, args[0], core.FetchOptions{
					Layout: lf.layout(cmd, r.Layout()),
					Start:  start,
					End:    end,
					Raw:    raw,
				})
				if err != nil {
					return err
				}
				if raw {
					return a.write(newRawTable(res.Table))
				}
				return a.write(records(res.Records))
			})
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVar(&start, "start", "", "Top-left cell (default A1)")
	cmd.Flags().StringVar(&end, "end", "", "Bottom-right cell (default: the table's extent)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print titles and unconverted rows instead of records")
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		lf    layoutFlags
		start string
	)
	cmd := &cobra.Command{
		Use:   "batch [NAMES...]",
		Short: "Print several tables, keyed by name; all tables when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			if len(args) > 0 {
				names = args
			}
			return a.withRetriever(cmd.Context(), func(ctx context.Context, r *core.Retriever) error {
				batch, err := r.FetchMany(ctx, names, core.BatchOptions{
					Layout: lf.layout(cmd, r.Layout()),
					Start:  start,
				})
				if err != nil {
					return err
				}

				out := core.NewRecord(len(batch.Results))
				for _, res := range batch.Results {
					if res.Err != nil {
						logging.FromContext(ctx).Error("table failed", "table", res.Name, "error", res.Err)
						continue
					}
					out.Set(res.Name, records(res.Records))
				}
				if err := a.write(out); err != nil {
					return err
				}
				if failed := batch.Failed(); len(failed) > 0 {
					return fmt.Errorf("%d of %d tables failed", len(failed), len(batch.Results))
				}
				return nil
			})
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVar(&start, "start", "", "Top-left cell for every table (default A1)")
	return cmd
}

func (a *app) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Sheets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print the consent page URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(false)
			if err != nil {
				return err
			}
			authz, err := source.Authorizer(cfg.Source)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stderr, "Open this URL, approve access, then run: sheet2json auth exchange CODE")
			fmt.Fprintln(a.stdout, authz.AuthCodeURL("sheet2json"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "exchange CODE",
		Short: "Trade an authorization code for a stored token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(false)
			if err != nil {
				return err
			}
			authz, err := source.Authorizer(cfg.Source)
			if err != nil {
				return err
			}
			if _, err := authz.Exchange(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Token saved to %s\n", cfg.Source.TokenFile)
			return nil
		},
	})
	return cmd
}

// config loads settings with the global flags applied over the environment.
func (a *app) config(validate bool) (*config.Config, error) {
	vars := map[string]string{}
	if a.xlsxPath != "" {
		vars["SOURCE_MODE"] = config.ModeXLSX
		vars["XLSX_PATH"] = a.xlsxPath
	}
	if a.spreadsheet != "" {
		vars["SPREADSHEET_ID"] = a.spreadsheet
	}
	lookup := config.Overlay(vars, a.lookup)

	if validate {
		return config.LoadFrom(lookup)
	}
	return config.Parse(lookup)
}

// withRetriever opens the configured source for the duration of fn, bounded
// by the fetch timeout.
func (a *app) withRetriever(ctx context.Context, fn func(context.Context, *core.Retriever) error) error {
	cfg, err := a.config(true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Fetch.Timeout)
	defer cancel()

	src, err := source.Open(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	return fn(ctx, source.NewRetriever(cfg, src.Transport, src.SpreadsheetID))
}

// records keeps empty tables as [] rather than null.
func records(rs []core.Record) []core.Record {
	if rs == nil {
		return []core.Record{}
	}
	return rs
}

func (a *app) write(v any) error {
	w := a.stdout
	if a.outputPath != "" {
		f, err := os.Create(a.outputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if a.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
