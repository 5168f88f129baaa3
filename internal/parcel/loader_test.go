package parcel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestShapefile writes a two-lot MapPLUTO-shaped shapefile plus one row
// with a missing BBL that the loader must skip.
func writeTestShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mappluto.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	fields := []shp.Field{
		shp.FloatField("BBL", 19, 8),
		shp.StringField("Borough", 2),
		shp.StringField("Address", 28),
		shp.StringField("LandUse", 2),
		shp.FloatField("LotArea", 19, 8),
		shp.NumberField("YearBuilt", 4),
		shp.StringField("ZoneDist1", 9),
		shp.FloatField("NumFloors", 19, 8),
		shp.FloatField("AssessTot", 19, 8),
	}
	w.SetFields(fields)

	lot := func(x, y float64) *shp.Polygon {
		return &shp.Polygon{
			NumParts:  1,
			NumPoints: 5,
			Parts:     []int32{0},
			Points: []shp.Point{
				{X: x, Y: y},
				{X: x, Y: y + 0.001},
				{X: x + 0.001, Y: y + 0.001},
				{X: x + 0.001, Y: y},
				{X: x, Y: y},
			},
		}
	}

	rows := [][]any{
		{3002130001.0, "BK", "100 Bond St", "05", 10500.0, 1931, "M1-2", 4.0, 2150000.0},
		{1000010010.0, "MN", "1 Broadway", "05", 25000.0, 1921, "C5-3", 12.0, 81000000.0},
		{0.0, "QN", "no bbl", "01", 2000.0, 1950, "R4", 2.0, 500000.0}, // zero BBL, skipped
	}
	for i, row := range rows {
		w.Write(lot(-74.0+float64(i)*0.01, 40.7))
		for f, val := range row {
			w.WriteAttribute(i, f, val)
		}
	}
	w.Close()

	return path
}

// expectPopulated scripts the table-state check that decides between the
// COPY fast path and the upsert path.
func expectPopulated(mock pgxmock.PgxPoolIface, populated bool) {
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM gis\.mappluto\)`).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(populated))
}

func TestLoad_FirstImportUsesCopy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	path := writeTestShapefile(t)

	expectPopulated(mock, false)
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "mappluto"}, plutoColumns).WillReturnResult(2)

	n, err := Load(context.Background(), mock, path, LoadOptions{Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_UpsertsLotsAndSkipsBadRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	path := writeTestShapefile(t)

	expectPopulated(mock, true)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_gis_mappluto"}, plutoColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "gis"\."mappluto"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := Load(context.Background(), mock, path, LoadOptions{Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_MissingFile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = Load(context.Background(), mock, "/nonexistent/mappluto.shp", LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open shapefile")
}

func TestLoad_BatchSplitting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	path := writeTestShapefile(t)

	expectPopulated(mock, true)

	// BatchSize 1 forces one upsert round-trip per valid lot.
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_gis_mappluto"}, plutoColumns).WillReturnResult(1)
		mock.ExpectExec(`INSERT INTO "gis"\."mappluto"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
	}

	n, err := Load(context.Background(), mock, path, LoadOptions{BatchSize: 1, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
