package parcel

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mapchat/internal/db"
)

// LoadOptions configures the MapPLUTO shapefile import.
type LoadOptions struct {
	BatchSize   int // rows per upsert batch (default 5,000)
	Concurrency int // parallel batch upserts (default 4)
}

// plutoColumns maps gis.mappluto columns to their DBF source fields.
var plutoColumns = []string{
	"bbl", "borough", "address", "land_use", "lot_area",
	"year_built", "zoning_district", "num_floors", "assessed_total", "geom",
}

// Load reads a MapPLUTO shapefile and writes its lots into gis.mappluto.
// A first import into an empty table goes through plain COPY; once the table
// holds rows, batches are upserted keyed by BBL so re-imports replace prior
// vintages. Lots without a BBL or a usable geometry are skipped, not fatal.
// Returns the number of rows written.
func Load(ctx context.Context, pool db.Pool, shpPath string, opts LoadOptions) (int64, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	log := zap.L().With(
		zap.String("component", "parcel.loader"),
		zap.String("path", shpPath),
	)

	reader, err := shp.Open(shpPath)
	if err != nil {
		return 0, eris.Wrapf(err, "parcel: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var populated bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gis.mappluto)`).Scan(&populated); err != nil {
		return 0, eris.Wrap(err, "parcel: check existing rows")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var total atomic.Int64

	flush := func(rows [][]any) {
		g.Go(func() error {
			var n int64
			var err error
			if populated {
				n, err = db.BulkUpsert(gCtx, pool, db.UpsertConfig{
					Table:        "gis.mappluto",
					Columns:      plutoColumns,
					ConflictKeys: []string{"bbl"},
				}, rows)
			} else {
				n, err = db.CopyFrom(gCtx, pool, "gis.mappluto", plutoColumns, rows)
			}
			if err != nil {
				return err
			}
			total.Add(n)
			return nil
		})
	}

	var batch [][]any
	var skipped int

	for reader.Next() {
		if gCtx.Err() != nil {
			break
		}

		_, shape := reader.Shape()

		bbl, err := strconv.ParseFloat(attr("bbl"), 64)
		if err != nil || bbl <= 0 {
			skipped++
			continue
		}

		wkb, err := encodeWKB(shape)
		if err != nil || wkb == nil {
			skipped++
			continue
		}

		batch = append(batch, []any{
			int64(bbl),
			attr("borough"),
			attr("address"),
			attr("landuse"),
			parseFloat(attr("lotarea")),
			parseInt(attr("yearbuilt")),
			attr("zonedist1"),
			parseFloat(attr("numfloors")),
			parseFloat(attr("assesstot")),
			wkb,
		})

		if len(batch) >= opts.BatchSize {
			flush(batch)
			batch = nil
		}
	}
	if len(batch) > 0 {
		flush(batch)
	}

	if err := g.Wait(); err != nil {
		return total.Load(), eris.Wrap(err, "parcel: load batches")
	}

	log.Info("mappluto load complete",
		zap.Int64("rows", total.Load()),
		zap.Int("skipped", skipped),
	)
	return total.Load(), nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	// Year fields sometimes arrive as "1931.0" from DBF numeric columns.
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v)
}
