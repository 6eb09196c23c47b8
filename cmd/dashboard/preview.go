package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/dataviz-dashboard/internal/cache"
	"github.com/kjstillabower/dataviz-dashboard/internal/category"
	"github.com/kjstillabower/dataviz-dashboard/internal/client"
	"github.com/kjstillabower/dataviz-dashboard/internal/config"
	"github.com/kjstillabower/dataviz-dashboard/internal/console"
	"github.com/kjstillabower/dataviz-dashboard/internal/forecast"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
	"github.com/kjstillabower/dataviz-dashboard/internal/render"
	"github.com/kjstillabower/dataviz-dashboard/internal/validation"
)

type pieOptions struct {
	categories []string
	normalize  bool
	sort       bool
	hole       float64
	title      string
	out        string
	format     string
}

func newPieCmd() *cobra.Command {
	opts := &pieOptions{}
	cmd := &cobra.Command{
		Use:   "pie",
		Short: "Preview the category pie chart",
		Long: `pie loads the category CSV (or the demo rows when it is absent), prints
the transformed slices and optionally writes the chart to a file.

Example:
  dashboard pie --category Satellite,"Launch Vehicle" --out pie.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPie(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.categories, "category", nil, "categories to include (default all)")
	f.BoolVar(&opts.normalize, "normalize", true, "show shares of 100% instead of raw amounts")
	f.BoolVar(&opts.sort, "sort", true, "sort slices by amount, descending")
	f.Float64Var(&opts.hole, "hole", validation.DefaultHole, "donut hole fraction in [0, 0.6]; 0 draws a pie")
	f.StringVar(&opts.title, "title", category.DefaultTitle, "chart title")
	addChartFlags(cmd, &opts.out, &opts.format)
	return cmd
}

func runPie(cmd *cobra.Command, opts *pieOptions) error {
	if opts.hole < 0 || opts.hole > validation.MaxHole {
		return fmt.Errorf("%w: hole must be in [0, %.1f]", validation.ErrInvalidParam, validation.MaxHole)
	}
	format, err := chartFormat(opts.out, opts.format)
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefaults()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ds, err := category.Load(cfg.CategoryCSV)
	if err != nil {
		return err
	}

	transformOpts := category.Options{Normalize: opts.normalize, Sort: opts.sort}
	if cmd.Flags().Changed("category") {
		transformOpts.Selected = validation.SelectedCategories(opts.categories, true)
	}
	res := category.Transform(ds, transformOpts)

	out := cmd.OutOrStdout()
	if ds.Demo {
		fmt.Fprintf(out, "%s not found, showing demo data\n", cfg.CategoryCSV)
	}
	table, err := console.CategoryTable(res)
	if errors.Is(err, category.ErrNothingSelected) {
		fmt.Fprintln(out, category.EmptyWarning)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)

	if opts.out == "" {
		return nil
	}
	return writeChartFile(cmd, opts.out, func(f *os.File) error {
		return render.Pie(f, format, opts.title, res.Slices, opts.hole)
	})
}

func newForecastCmd() *cobra.Command {
	var city, out, format string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Preview the 14-day precipitation forecast",
		Long: `forecast fetches the daily forecast for one configured city and prints it.
When the API fails the demo series is shown with the error as a warning.

Example:
  dashboard forecast --city "Denver, CO" --out denver.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd, city, out, format)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city name or slug (default first configured city)")
	addChartFlags(cmd, &out, &format)
	return cmd
}

func runForecast(cmd *cobra.Command, cityName, outPath, formatName string) error {
	format, err := chartFormat(outPath, formatName)
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefaults()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	city := cfg.Cities[0]
	if cityName != "" {
		if city, err = validation.ValidateCity(cityName, cfg.Cities); err != nil {
			return err
		}
	}

	logger, err := observability.NewConsoleLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = observability.Flush(logger) }()

	forecastClient, err := client.NewOpenMeteoClient(cfg.ForecastAPIURL, cfg.ForecastAPITimeout, client.WithUserAgent(cfg.ForecastUserAgent))
	if err != nil {
		return fmt.Errorf("forecast client: %w", err)
	}
	loader := forecast.NewLoader(forecastClient, cache.NewInMemoryCache[forecast.Result](), cfg.ForecastCacheTTL)

	ctx := observability.WithLogger(cmdContext(cmd), logger)
	res := loader.Load(ctx, city)
	if res.IsFallback() {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Warning())
	}
	table, err := console.ForecastTable(res)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)

	if outPath == "" {
		return nil
	}
	return writeChartFile(cmd, outPath, func(f *os.File) error {
		return render.Forecast(f, format, forecast.ChartTitle(city.Name), res.Dataset)
	})
}

func newBioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bio",
		Short: "Print the bio page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.BioPanel(cfg.Bio.ResolvePhoto()))
			return nil
		},
	}
}

func addChartFlags(cmd *cobra.Command, out, format *string) {
	cmd.Flags().StringVar(out, "out", "", "write the chart to this file")
	cmd.Flags().StringVar(format, "format", "", "chart format: svg or png (default from --out extension)")
}

// chartFormat prefers an explicit --format, then the --out extension, then SVG.
func chartFormat(out, format string) (render.Format, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(out), ".")
	}
	f, err := render.ParseFormat(format)
	if err != nil {
		return "", fmt.Errorf("%w: %v", validation.ErrInvalidParam, err)
	}
	return f, nil
}

func writeChartFile(cmd *cobra.Command, path string, draw func(f *os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close chart file: %w", cerr)
		}
	}()
	if err := draw(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", path)
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
