package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"bitcoin-collector/internal/storage"
)

// Export renders stored observations as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	from, to, err := a.exportWindow(opts)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	observations, err := store.ListObservationsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsampleObservations(observations, opts.MaxPoints)
	a.Logger.Info().Int("total", len(observations)).Int("exported", len(downsampled)).Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeCSVFile(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeChartFile(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// exportWindow defaults to the span of MaxPoints cycles ending now.
func (a *App) exportWindow(opts ExportOptions) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func downsampleObservations(observations []storage.Observation, max int) []storage.Observation {
	if max <= 0 || len(observations) <= max {
		return observations
	}
	if max == 1 {
		return observations[len(observations)-1:]
	}

	result := make([]storage.Observation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

var csvHeader = []string{
	"captured_at", "name", "height", "hash", "time", "latest_url", "previous_hash", "previous_url",
	"peer_count", "unconfirmed_count", "high_fee_per_kb", "medium_fee_per_kb", "low_fee_per_kb",
	"last_fork_height", "last_fork_hash", "price", "volume_24h",
}

func writeCSVFile(path string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return writeObservationsCSV(file, observations)
}

func writeObservationsCSV(w io.Writer, observations []storage.Observation) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, obs := range observations {
		record := []string{
			csvTime(obs.CapturedAt),
			obs.Name,
			strconv.FormatInt(obs.Height, 10),
			obs.Hash,
			csvTime(obs.Time),
			obs.LatestURL,
			obs.PreviousHash,
			obs.PreviousURL,
			strconv.FormatInt(obs.PeerCount, 10),
			strconv.FormatInt(obs.UnconfirmedCount, 10),
			strconv.FormatInt(obs.HighFeePerKB, 10),
			strconv.FormatInt(obs.MediumFeePerKB, 10),
			strconv.FormatInt(obs.LowFeePerKB, 10),
			strconv.FormatInt(obs.LastForkHeight, 10),
			obs.LastForkHash,
			csvFloat(obs.Price),
			csvFloat(obs.Volume24h),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).String()
}

func writeChartFile(path string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	graph := observationChart(observations)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// observationChart plots price on the primary axis and block height on the secondary axis.
// Rows without a price are left out of the price series.
func observationChart(observations []storage.Observation) chart.Chart {
	var (
		priceX  []time.Time
		prices  []float64
		heightX = make([]time.Time, len(observations))
		heights = make([]float64, len(observations))
	)

	for i, obs := range observations {
		heightX[i] = obs.CapturedAt
		heights[i] = float64(obs.Height)
		if obs.Price != nil {
			priceX = append(priceX, obs.CapturedAt)
			prices = append(prices, *obs.Price)
		}
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Block height",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: priceX,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Height",
				XValues: heightX,
				YValues: heights,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
