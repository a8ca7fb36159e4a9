package graph

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	colorBackground = color.RGBA{0x1e, 0x1f, 0x22, 0xff}
	colorGrid       = color.RGBA{0x3a, 0x3c, 0x42, 0xff}
	colorAxisText   = color.RGBA{0xb5, 0xba, 0xc1, 0xff}
	colorLine       = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
	colorSession    = color.RGBA{0x5c, 0x60, 0x6a, 0xff}
)

// TierColors are the point colours per tier.
var TierColors = map[string]color.RGBA{
	"IRON":        {0x6b, 0x5b, 0x53, 0xff},
	"BRONZE":      {0xa0, 0x6a, 0x43, 0xff},
	"SILVER":      {0x9c, 0xa9, 0xb3, 0xff},
	"GOLD":        {0xe3, 0xb2, 0x4f, 0xff},
	"PLATINUM":    {0x4e, 0xa8, 0x9a, 0xff},
	"EMERALD":     {0x2a, 0xb0, 0x6f, 0xff},
	"DIAMOND":     {0x57, 0x7b, 0xe6, 0xff},
	"MASTER":      {0x9d, 0x4d, 0xc5, 0xff},
	"GRANDMASTER": {0xd6, 0x45, 0x45, 0xff},
	"CHALLENGER":  {0xf4, 0xc8, 0x74, 0xff},
}

func tierColor(tier string) color.RGBA {
	if c, ok := TierColors[strings.ToUpper(tier)]; ok {
		return c
	}
	return colorLine
}

// Renderer draws rank history as a PNG line chart. It performs no I/O.
type Renderer struct {
	Width      int
	Height     int
	Title      string
	SessionGap time.Duration
}

func NewRenderer() *Renderer {
	return &Renderer{
		Width:      900,
		Height:     480,
		Title:      "Rank history",
		SessionGap: constants.SessionGap,
	}
}

type plotArea struct {
	left, top, right, bottom float64
}

func (p plotArea) width() float64  { return p.right - p.left }
func (p plotArea) height() float64 { return p.bottom - p.top }

type point struct {
	x, y float32
	obs  domain.RankObservation
}

// Render returns PNG bytes. Fewer than two rankable observations produce a
// placeholder image.
func (r *Renderer) Render(observations []domain.RankObservation) ([]byte, error) {
	series := make([]domain.RankObservation, 0, len(observations))
	for _, o := range observations {
		if o.Value() >= 0 {
			series = append(series, o)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	if len(series) < 2 {
		r.drawPlaceholder(img, series)
	} else {
		r.drawChart(img, series)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawPlaceholder(img *image.RGBA, series []domain.RankObservation) {
	drawText(img, r.Title, 16, 24, colorAxisText)

	cx, cy := float32(r.Width)/2, float32(r.Height)/2
	if len(series) == 0 {
		msg := "No rank data for this period"
		drawText(img, msg, int(cx)-textWidth(msg)/2, int(cy), colorAxisText)
		return
	}

	o := series[0]
	fillCircle(img, cx, cy, 6, tierColor(o.Tier))
	label := fmt.Sprintf("%s %d LP  %s", domain.ShortLabel(o.Tier, o.Division), o.LeaguePoints, o.Timestamp.Format("Jan 02 15:04"))
	drawText(img, label, int(cx)-textWidth(label)/2, int(cy)+24, colorAxisText)
}

func (r *Renderer) drawChart(img *image.RGBA, series []domain.RankObservation) {
	area := plotArea{left: 56, top: 40, right: float64(r.Width) - 24, bottom: float64(r.Height) - 40}

	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, o := range series {
		v := o.Value()
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	yMin := math.Floor(minV)
	yMax := math.Ceil(maxV)
	if yMax-yMin < 1 {
		yMax = yMin + 1
	}

	t0 := series[0].Timestamp
	span := series[len(series)-1].Timestamp.Sub(t0)
	if span <= 0 {
		span = time.Minute
	}

	project := func(o domain.RankObservation) point {
		fx := float64(o.Timestamp.Sub(t0)) / float64(span)
		fy := (o.Value() - yMin) / (yMax - yMin)
		return point{
			x:   float32(area.left + fx*area.width()),
			y:   float32(area.bottom - fy*area.height()),
			obs: o,
		}
	}

	// one horizontal line per rank slot
	for slot := int(yMin); slot <= int(yMax); slot++ {
		y := float32(area.bottom - (float64(slot)-yMin)/(yMax-yMin)*area.height())
		strokeLine(img, float32(area.left), y, float32(area.right), y, 1, colorGrid)
		if label := domain.LabelForIndex(slot); label != "" {
			drawText(img, label, 12, int(y)+4, colorAxisText)
		}
	}

	sessions := ClusterSessions(series, r.SessionGap)
	for i := 1; i < len(sessions); i++ {
		prev := project(sessions[i-1][len(sessions[i-1])-1])
		next := project(sessions[i][0])
		x := (prev.x + next.x) / 2
		dashedVLine(img, x, float32(area.top), float32(area.bottom), colorSession)
	}

	points := make([]point, len(series))
	for i, o := range series {
		points[i] = project(o)
	}
	for i := 1; i < len(points); i++ {
		strokeLine(img, points[i-1].x, points[i-1].y, points[i].x, points[i].y, 2, colorLine)
	}
	for _, p := range points {
		fillCircle(img, p.x, p.y, 4, tierColor(p.obs.Tier))
	}

	last := series[len(series)-1]
	title := fmt.Sprintf("%s  %s  %s %d LP", r.Title, domain.QueueName(last.QueueType),
		domain.ShortLabel(last.Tier, last.Division), last.LeaguePoints)
	drawText(img, title, int(area.left), 24, colorAxisText)

	start := t0.Format("Jan 02")
	end := last.Timestamp.Format("Jan 02")
	drawText(img, start, int(area.left), r.Height-16, colorAxisText)
	drawText(img, end, int(area.right)-textWidth(end), r.Height-16, colorAxisText)
}

// ClusterSessions splits a time-ordered series wherever consecutive
// observations are more than gap apart.
func ClusterSessions(series []domain.RankObservation, gap time.Duration) [][]domain.RankObservation {
	var sessions [][]domain.RankObservation
	start := 0
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Sub(series[i-1].Timestamp) > gap {
			sessions = append(sessions, series[start:i])
			start = i
		}
	}
	if len(series) > 0 {
		sessions = append(sessions, series[start:])
	}
	return sessions
}

func strokeLine(img *image.RGBA, x0, y0, x1, y1, width float32, c color.RGBA) {
	dx, dy := x1-x0, y1-y0
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2

	b := img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
	z.Draw(img, b, image.NewUniform(c), image.Point{})
}

func dashedVLine(img *image.RGBA, x, top, bottom float32, c color.RGBA) {
	const dash, gap = 6, 4
	for y := top; y < bottom; y += dash + gap {
		end := min(y+dash, bottom)
		strokeLine(img, x, y, x, end, 1, c)
	}
}

func fillCircle(img *image.RGBA, cx, cy, radius float32, c color.RGBA) {
	const segments = 16
	b := img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for i := 0; i <= segments; i++ {
		theta := 2 * math.Pi * float64(i) / segments
		x := cx + radius*float32(math.Cos(theta))
		y := cy + radius*float32(math.Sin(theta))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	z.Draw(img, b, image.NewUniform(c), image.Point{})
}

func drawText(img *image.RGBA, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
