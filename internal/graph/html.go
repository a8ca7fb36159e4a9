package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes an interactive line chart of the series to w.
func RenderHTML(w io.Writer, observations []domain.RankObservation, title string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "900px",
			Height:    "500px",
			Theme:     "dark",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d observations", len(observations)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "item",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  "Rank",
			Scale: opts.Bool(true),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Type:   "piecewise",
			Show:   opts.Bool(false),
			Pieces: tierPieces(),
		}),
	)

	xLabels := make([]string, 0, len(observations))
	yData := make([]opts.LineData, 0, len(observations))
	for _, o := range observations {
		v := o.Value()
		if v < 0 {
			continue
		}
		xLabels = append(xLabels, o.Timestamp.Local().Format("Jan 02 15:04"))
		yData = append(yData, opts.LineData{
			Name:  fmt.Sprintf("%s %d LP", domain.ShortLabel(o.Tier, o.Division), o.LeaguePoints),
			Value: v,
		})
	}

	line.SetXAxis(xLabels).
		AddSeries("Rank", yData).
		SetSeriesOptions(
			charts.WithLineChartOpts(opts.LineChart{
				Smooth:     opts.Bool(false),
				ShowSymbol: opts.Bool(true),
			}),
			charts.WithLabelOpts(opts.Label{
				Show: opts.Bool(false),
			}),
		)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// tierPieces maps each tier's span of rank values to its colour.
func tierPieces() []opts.Piece {
	var pieces []opts.Piece
	start := 0
	for i := 1; i <= len(domain.RankOrder); i++ {
		tier, _, _ := strings.Cut(domain.RankOrder[start], " ")
		if i < len(domain.RankOrder) && strings.HasPrefix(domain.RankOrder[i], tier+" ") {
			continue
		}
		piece := opts.Piece{Gte: float32(start), Color: hexColor(tierColor(tier))}
		if i < len(domain.RankOrder) {
			piece.Lt = float32(i)
		}
		pieces = append(pieces, piece)
		start = i
	}
	return pieces
}
