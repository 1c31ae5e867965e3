package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"bitcoin-collector/internal/storage"
)

// Show prints the most recently inserted observations, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	observations, err := store.ListRecentObservations(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(a.Out, "no observations found")
		return nil
	}

	renderObservations(a.Out, observations)
	return nil
}

func renderObservations(w io.Writer, observations []storage.Observation) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Captured (UTC)", "Height", "Hash", "Block Time (UTC)", "Price", "Volume 24h", "Peers", "Unconfirmed", "Fees/kB H/M/L"})

	for _, obs := range observations {
		t.AppendRow(table.Row{
			formatTime(obs.CapturedAt),
			obs.Height,
			shortHash(obs.Hash),
			formatTime(obs.Time),
			formatFloat(obs.Price, 2),
			formatFloat(obs.Volume24h, 0),
			obs.PeerCount,
			obs.UnconfirmedCount,
			fmt.Sprintf("%d/%d/%d", obs.HighFeePerKB, obs.MediumFeePerKB, obs.LowFeePerKB),
		})
	}

	t.Render()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatFloat(v *float64, places int32) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromFloat(*v).StringFixed(places)
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "…" + h[len(h)-8:]
}
