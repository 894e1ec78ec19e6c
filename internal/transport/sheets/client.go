// Package sheets reads spreadsheets through the Google Sheets v4 API.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// metadataFields limits spreadsheets.get to what core.Metadata needs.
const metadataFields = "spreadsheetId,properties.title,sheets.properties(sheetId,title,index,gridProperties(rowCount,columnCount))"

// Values are fetched as displayed in the UI, so numbers keep their
// formatting and the record builder does the typing.
const valueRender = "FORMATTED_VALUE"

// Client implements core.Transport with the Sheets API.
type Client struct {
	svc *sheetsapi.Service
}

// New creates a client. Authentication comes from opts, typically
// option.WithTokenSource.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Metadata returns the sheet list with grid dimensions.
func (c *Client) Metadata(ctx context.Context, spreadsheetID string) (core.Metadata, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields(metadataFields).
		Context(ctx).
		Do()
	if err != nil {
		return core.Metadata{}, err
	}

	md := core.Metadata{SpreadsheetID: ss.SpreadsheetId}
	if ss.Properties != nil {
		md.Title = ss.Properties.Title
	}
	for _, sheet := range ss.Sheets {
		p := sheet.Properties
		if p == nil {
			continue
		}
		tm := core.TableMetadata{Name: p.Title, Index: int(p.Index)}
		if p.GridProperties != nil {
			tm.RowCount = int(p.GridProperties.RowCount)
			tm.ColumnCount = int(p.GridProperties.ColumnCount)
		}
		md.Tables = append(md.Tables, tm)
	}
	return md, nil
}

// Values reads one range.
func (c *Client) Values(ctx context.Context, spreadsheetID string, rng core.Range) (core.Grid, error) {
	vr, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng.String()).
		ValueRenderOption(valueRender).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return toGrid(vr.Values), nil
}

// BatchValues reads several ranges in one request.
func (c *Client) BatchValues(ctx context.Context, spreadsheetID string, ranges []core.Range) ([]core.Grid, error) {
	addrs := make([]string, len(ranges))
	for i, rng := range ranges {
		addrs[i] = rng.String()
	}

	resp, err := c.svc.Spreadsheets.Values.BatchGet(spreadsheetID).
		Ranges(addrs...).
		ValueRenderOption(valueRender).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(resp.ValueRanges) != len(ranges) {
		return nil, fmt.Errorf("batchGet returned %d ranges, requested %d", len(resp.ValueRanges), len(ranges))
	}

	grids := make([]core.Grid, len(resp.ValueRanges))
	for i, vr := range resp.ValueRanges {
		grids[i] = toGrid(vr.Values)
	}
	return grids, nil
}

// toGrid converts API values to strings. Missing cells are empty.
func toGrid(values [][]interface{}) core.Grid {
	grid := make(core.Grid, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			switch v := v.(type) {
			case nil:
			case string:
				cells[j] = v
			default:
				cells[j] = fmt.Sprint(v)
			}
		}
		grid[i] = cells
	}
	return grid
}
