package parcel

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapchat/internal/apperr"
)

const testSquare = `{"type":"Polygon","coordinates":[[[-74.0,40.7],[-73.9,40.7],[-73.9,40.8],[-74.0,40.8],[-74.0,40.7]]]}`

func parcelRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"bbl", "borough", "address", "land_use", "lot_area",
		"year_built", "zoning_district", "num_floors", "assessed_total", "st_asgeojson",
	})
}

func geomPtr(s string) *string { return &s }

func TestQuery_NoPredicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM gis\.mappluto WHERE ST_Intersects\(geom, ST_SetSRID\(ST_GeomFromGeoJSON\(\$1\), 4326\)\) ORDER BY bbl LIMIT \$2`).
		WithArgs(pgxmock.AnyArg(), 10).
		WillReturnRows(parcelRows().
			AddRow(int64(3002130001), "BK", "100 Bond St", "05", 10500.0, 1931, "M1-2", 4.0, 2150000.0,
				geomPtr(`{"type":"MultiPolygon","coordinates":[]}`)))

	records, err := NewEngine(mock).Query(context.Background(), json.RawMessage(testSquare), Predicates{}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3002130001), records[0].BBL)
	assert.Equal(t, "BK", records[0].Borough)
	assert.Equal(t, 10500.0, records[0].LotArea)
	assert.NotEmpty(t, records[0].Geometry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_MinLotAreaPredicateAndLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	minArea := 10000.0
	mock.ExpectQuery(`WHERE ST_Intersects.+ AND lot_area >= \$2 ORDER BY bbl LIMIT \$3`).
		WithArgs(pgxmock.AnyArg(), minArea, 25).
		WillReturnRows(parcelRows().
			AddRow(int64(1000010010), "MN", "", "08", 12000.0, 1965, "C5-3", 40.0, 90000000.0, geomPtr(`{}`)).
			AddRow(int64(1000010020), "MN", "", "08", 48000.0, 1972, "C5-3", 52.0, 210000000.0, geomPtr(`{}`)))

	records, err := NewEngine(mock).Query(context.Background(), json.RawMessage(testSquare),
		Predicates{MinLotArea: &minArea}, 25)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordering by native id ascending, and every record satisfies the floor.
	assert.Less(t, records[0].BBL, records[1].BBL)
	for _, r := range records {
		assert.GreaterOrEqual(t, r.LotArea, minArea)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_AllPredicatesCompose(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	landUse := "01"
	minArea := 2000.0
	maxYear := 1940
	zone := "R6"
	borough := "QN"

	mock.ExpectQuery(`land_use = \$2 AND lot_area >= \$3 AND year_built > 0 AND year_built <= \$4 AND zoning_district = \$5 AND borough = \$6 ORDER BY bbl LIMIT \$7`).
		WithArgs(pgxmock.AnyArg(), landUse, minArea, maxYear, zone, borough, DefaultLimit).
		WillReturnRows(parcelRows())

	records, err := NewEngine(mock).Query(context.Background(), json.RawMessage(testSquare), Predicates{
		LandUse:        &landUse,
		MinLotArea:     &minArea,
		MaxYearBuilt:   &maxYear,
		ZoningDistrict: &zone,
		Borough:        &borough,
	}, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_LimitCappedAtMax(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY bbl LIMIT \$2`).
		WithArgs(pgxmock.AnyArg(), MaxLimit).
		WillReturnRows(parcelRows())

	_, err = NewEngine(mock).Query(context.Background(), json.RawMessage(testSquare), Predicates{}, 50000)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_MissingGeometry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, raw := range []string{"", "null", "{}", `{"type":"Polygon","coordinates":[]}`} {
		_, err := NewEngine(mock).Query(context.Background(), json.RawMessage(raw), Predicates{}, 10)
		require.Error(t, err, raw)
		assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err), raw)
	}
}

func TestQuery_SingleFeatureCollectionUnwrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fc := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":` + testSquare + `}]}`

	// The engine passes the inner feature geometry, not the collection.
	mock.ExpectQuery(`ST_GeomFromGeoJSON`).
		WithArgs(testSquare, DefaultLimit).
		WillReturnRows(parcelRows())

	_, err = NewEngine(mock).Query(context.Background(), json.RawMessage(fc), Predicates{}, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_MultiFeatureCollectionRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	feature := `{"type":"Feature","geometry":` + testSquare + `}`
	fc := `{"type":"FeatureCollection","features":[` + feature + `,` + feature + `]}`

	_, err = NewEngine(mock).Query(context.Background(), json.RawMessage(fc), Predicates{}, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestQuery_DatasetUnreachable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM gis\.mappluto`).
		WithArgs(pgxmock.AnyArg(), 10).
		WillReturnError(fmt.Errorf("connection refused"))

	_, err = NewEngine(mock).Query(context.Background(), json.RawMessage(testSquare), Predicates{}, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
	assert.True(t, apperr.IsRetryable(err))
}
