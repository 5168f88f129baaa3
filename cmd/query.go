package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mapchat/internal/geostore"
	"github.com/sells-group/mapchat/internal/parcel"
)

var (
	queryGeoJSONFile string
	queryGeoJSONID   string
	queryLandUse     string
	queryMinLotArea  float64
	queryMaxYear     int
	queryZoning      string
	queryBorough     string
	queryLimit       int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query MapPLUTO parcels intersecting an area geometry",
	Long: `Runs a spatial parcel query against gis.mappluto and prints matching
records as JSON. The area geometry comes from either a GeoJSON file or a
stored geometry id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		var geometry json.RawMessage
		switch {
		case queryGeoJSONFile != "":
			data, err := os.ReadFile(queryGeoJSONFile)
			if err != nil {
				return eris.Wrap(err, "query: read geojson file")
			}
			geometry = data
		case queryGeoJSONID != "":
			g, err := geostore.New(pool).Resolve(ctx, queryGeoJSONID)
			if err != nil {
				return err
			}
			geometry, err = g.MarshalCanonical()
			if err != nil {
				return err
			}
		default:
			return eris.New("query: one of --geojson-file or --geojson-id is required")
		}

		preds := parcel.Predicates{}
		if cmd.Flags().Changed("land-use") {
			preds.LandUse = &queryLandUse
		}
		if cmd.Flags().Changed("min-lot-area") {
			preds.MinLotArea = &queryMinLotArea
		}
		if cmd.Flags().Changed("max-year-built") {
			preds.MaxYearBuilt = &queryMaxYear
		}
		if cmd.Flags().Changed("zoning") {
			preds.ZoningDistrict = &queryZoning
		}
		if cmd.Flags().Changed("borough") {
			preds.Borough = &queryBorough
		}

		records, err := parcel.NewEngine(pool).Query(ctx, geometry, preds, queryLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryGeoJSONFile, "geojson-file", "", "path to a GeoJSON geometry file")
	queryCmd.Flags().StringVar(&queryGeoJSONID, "geojson-id", "", "stored geometry content id")
	queryCmd.Flags().StringVar(&queryLandUse, "land-use", "", "land use code equality filter")
	queryCmd.Flags().Float64Var(&queryMinLotArea, "min-lot-area", 0, "minimum lot area in square feet")
	queryCmd.Flags().IntVar(&queryMaxYear, "max-year-built", 0, "maximum year built")
	queryCmd.Flags().StringVar(&queryZoning, "zoning", "", "zoning district equality filter")
	queryCmd.Flags().StringVar(&queryBorough, "borough", "", "borough code equality filter")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "result cap (default 100, max 1000)")
	rootCmd.AddCommand(queryCmd)
}
