// Package source assembles a Retriever from configuration. Both the server
// and the CLI use it so they read spreadsheets the same way.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/api/option"

	"github.com/JonMunkholm/sheetjson/internal/auth"
	"github.com/JonMunkholm/sheetjson/internal/config"
	"github.com/JonMunkholm/sheetjson/internal/core"
	"github.com/JonMunkholm/sheetjson/internal/transport/sheets"
	"github.com/JonMunkholm/sheetjson/internal/transport/xlsx"
)

// Source is an opened transport and the spreadsheet it reads.
type Source struct {
	Transport     core.Transport
	SpreadsheetID string

	close func() error
}

// Close releases the transport.
func (s *Source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects the transport selected by cfg.Mode.
func Open(ctx context.Context, cfg config.SourceConfig) (*Source, error) {
	switch strings.ToLower(cfg.Mode) {
	case config.ModeXLSX:
		wb, err := xlsx.Open(cfg.XLSXPath)
		if err != nil {
			return nil, err
		}
		id := cfg.SpreadsheetID
		if id == "" {
			id = filepath.Base(cfg.XLSXPath)
		}
		return &Source{Transport: wb, SpreadsheetID: id, close: wb.Close}, nil

	case config.ModeSheets:
		opts, err := clientOptions(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client, err := sheets.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return &Source{Transport: client, SpreadsheetID: cfg.SpreadsheetID}, nil

	default:
		return nil, fmt.Errorf("unknown source mode %q", cfg.Mode)
	}
}

// clientOptions picks the credentials: a fixed access token when one is
// configured, otherwise the stored OAuth token, refreshed as needed.
func clientOptions(ctx context.Context, cfg config.SourceConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	if cfg.AccessToken != "" {
		return append(opts, option.WithTokenSource(auth.StaticTokenSource(cfg.AccessToken))), nil
	}

	a, err := Authorizer(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return append(opts, option.WithTokenSource(tokens)), nil
}

// Authorizer loads the OAuth client for the consent flow.
func Authorizer(cfg config.SourceConfig) (*auth.Authorizer, error) {
	oc, err := auth.LoadConfig(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return auth.New(oc, cfg.TokenFile), nil
}

// NewRetriever builds the retriever for t with the fetch and layout
// settings of cfg. Diagnostics are logged and also sent to reporters.
func NewRetriever(cfg *config.Config, t core.Transport, spreadsheetID string, reporters ...core.Reporter) *core.Retriever {
	report := core.MultiReporter(append([]core.Reporter{core.SlogReporter{}}, reporters...))

	return core.NewRetriever(t, spreadsheetID,
		core.WithBuilder(core.NewBuilder(core.WithReporter(report))),
		core.WithLimiter(core.NewFetchLimiter(cfg.Fetch.MaxConcurrent, cfg.Fetch.MaxWaitTime)),
		core.WithLayout(cfg.Layout.Core()),
		core.WithBuildConcurrency(cfg.Fetch.BuildConcurrency),
	)
}
