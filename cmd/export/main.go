package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"backend-alluviamaps/internal/config"
	"backend-alluviamaps/internal/db"
	"backend-alluviamaps/internal/mapsync"
	"backend-alluviamaps/internal/records"
	"backend-alluviamaps/internal/shared/geo"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type exportDeps struct {
	loadConfig func() config.Config
	openSource func(config.Config) (records.Source, func(), error)
}

func defaultDeps() exportDeps {
	return exportDeps{
		loadConfig: config.Load,
		openSource: openPostgresSource,
	}
}

func openPostgresSource(cfg config.Config) (records.Source, func(), error) {
	pool, err := db.ConnectPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}
	return records.NewPostgresSource(pool), pool.Close, nil
}

type styleOptions struct {
	format string
	north  float64
	south  float64
	east   float64
	west   float64
	hide   []string
}

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(deps exportDeps) *cobra.Command {
	root := &cobra.Command{
		Use:          "alluvia-export",
		Short:        "Export AlluviaMaps map state",
		SilenceUsage: true,
	}

	opts := &styleOptions{}
	styleCmd := &cobra.Command{
		Use:   "style",
		Short: "Render the trails and sites layers as a style document (JSON by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bounds, err := opts.bounds(cmd)
			if err != nil {
				return err
			}
			return exportStyle(cmd.Context(), deps, opts, bounds, cmd.OutOrStdout())
		},
	}
	flags := styleCmd.Flags()
	flags.StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	flags.Float64Var(&opts.north, "north", 0, "Northern latitude of the export window")
	flags.Float64Var(&opts.south, "south", 0, "Southern latitude of the export window")
	flags.Float64Var(&opts.east, "east", 0, "Eastern longitude of the export window")
	flags.Float64Var(&opts.west, "west", 0, "Western longitude of the export window")
	flags.StringSliceVar(&opts.hide, "hide", nil, "Layer ids to hide")
	root.AddCommand(styleCmd)
	return root
}

// bounds returns nil when no bound flag was given.
func (o *styleOptions) bounds(cmd *cobra.Command) (*geo.Bounds, error) {
	set := 0
	for _, name := range []string{"north", "south", "east", "west"} {
		if cmd.Flags().Changed(name) {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, nil
	case set < 4:
		return nil, errors.New("--north, --south, --east and --west must be given together")
	case o.south > o.north:
		return nil, errors.New("--south must not exceed --north")
	}
	return &geo.Bounds{North: o.north, South: o.south, East: o.east, West: o.west}, nil
}

func exportStyle(ctx context.Context, deps exportDeps, opts *styleOptions, bounds *geo.Bounds, out io.Writer) error {
	if opts.format != "json" && opts.format != "yaml" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := deps.loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	source, closeSource, err := deps.openSource(cfg)
	if err != nil {
		return fmt.Errorf("open record source: %w", err)
	}
	if closeSource != nil {
		defer closeSource()
	}

	data := records.NewDataService(source, records.Options{TTL: cfg.CacheTTL, Logger: logger})
	if err := data.Refresh(ctx); err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	// Both collections are fresh in the snapshot now.
	var (
		trails []records.Trail
		sites  []records.Site
	)
	if bounds != nil {
		in := data.FetchInBounds(ctx, *bounds)
		trails, sites = in.Trails, in.Sites
	} else {
		trails = data.FetchTrails(ctx, true)
		sites = data.FetchSites(ctx, true)
	}

	var surface *mapsync.StyleSurface
	factory := mapsync.StyleSurfaceFactory("export", nil, logger, func(s *mapsync.StyleSurface) { surface = s })
	ctrl := mapsync.NewController(factory, logger)
	mapOpts := mapsync.DefaultMapOptions("export", cfg.MapStyleURL)
	if bounds != nil {
		mapOpts.Center = bounds.Bound().Center()
	}
	if err := ctrl.Init(mapOpts); err != nil {
		return fmt.Errorf("init map: %w", err)
	}
	defer ctrl.Teardown()
	surface.MarkStyleLoaded()

	ctrl.AttachTrails(trails)
	ctrl.AttachSites(sites)
	for _, id := range opts.hide {
		ctrl.SetLayerVisibility(id, false)
	}

	return writeDocument(out, surface.Snapshot(), opts.format)
}

// writeDocument renders doc through its JSON form so YAML output carries the
// same keys and GeoJSON shapes as the JSON output.
func writeDocument(out io.Writer, doc mapsync.Document, format string) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
