// Package news holds the canned macro scenarios facilitators pick from and
// the headlines shown to players when a turn resembles one of them.
package news

import (
	"errors"
	"math"
	"strings"

	"github.com/atmx/allocation-game/internal/model"
)

var ErrPresetNotFound = errors.New("news: preset not found")

// Headline is one item of narrative text.
type Headline struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Preset is a named macro scenario: the shocks a facilitator applies and
// the headlines that go with it.
type Preset struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Shocks      model.Shocks `json:"shocks"`
	Headlines   []Headline   `json:"headlines"`
}

var presets = []Preset{
	{
		Key:         "goldilocks",
		Name:        "Goldilocks",
		Description: "Strong growth, stable inflation, neutral rates. Ideal conditions.",
		Shocks:      model.Shocks{Growth: 0.03, Inflation: 0.02, Rate: 0, Equity: 0.10},
		Headlines: []Headline{
			{
				Title:   "Robust economy: 3% growth expected",
				Content: "Leading indicators point to solid 3% growth driven by household consumption and business investment. Inflation holds near 2%, letting central banks keep policy accommodative.",
			},
			{
				Title:   "Manufacturing in full swing",
				Content: "Industrial orders are up 5% this quarter. Technology and pharmaceutical firms lead, carried by innovation and sustained foreign demand.",
			},
			{
				Title:   "Job market at its best in a decade",
				Content: "Unemployment falls to 4.2%, a ten-year low. Wages rise 2.5% on average, supporting purchasing power without excessive inflationary pressure.",
			},
		},
	},
	{
		Key:         "stagflation",
		Name:        "Oil shock (stagflation)",
		Description: "Record inflation (8%), recession (-4%), high rates (5%). The 1970s.",
		Shocks:      model.Shocks{Growth: -0.04, Inflation: 0.08, Rate: 0.05, Equity: -0.15},
		Headlines: []Headline{
			{
				Title:   "Oil spikes: Brent tops $140",
				Content: "Geopolitical tension in the Middle East sends Brent up 45% in three months. Analysts expect 8% inflation and a sharp slowdown. Transport and logistics are hit first.",
			},
			{
				Title:   "Inflation hits 8% year on year",
				Content: "Prices climb at a pace unseen since the 1970s, led by energy (+30%) and food (+12%). Central banks announce 500 basis points of hikes to break the wage-price spiral.",
			},
			{
				Title:   "Technical recession: GDP down 4%",
				Content: "The economy contracts 4%. Companies cut investment in the face of rising costs and uncertainty. Unemployment jumps to 9.5%.",
			},
		},
	},
	{
		Key:         "fed_pivot",
		Name:        "Fed pivot (rate cuts)",
		Description: "Moderate growth, contained inflation, 300 basis points of cuts.",
		Shocks:      model.Shocks{Growth: 0.02, Inflation: 0.01, Rate: -0.03, Equity: 0.15},
		Headlines: []Headline{
			{
				Title:   "The Fed pivots: historic 300 bp cut",
				Content: "In a major reversal the Federal Reserve cuts its policy rate by three percentage points to support 2% growth with inflation at 1%. Markets welcome the move.",
			},
			{
				Title:   "Bond markets rally",
				Content: "Government yields fall 300 bp after the announcement. Investors rush into long-duration assets and the 10-year Treasury drops below 2%.",
			},
			{
				Title:   "Tech stocks surge",
				Content: "Growth stocks jump 15% in a single session. Low rates cut the opportunity cost of risk assets and the Nasdaq sets a new record.",
			},
		},
	},
	{
		Key:         "financial_crisis",
		Name:        "Financial crisis (2008-style)",
		Description: "Severe recession (-6%), deflation (-1%), low rates but a credit crunch.",
		Shocks:      model.Shocks{Growth: -0.06, Inflation: -0.01, Rate: -0.02, Equity: -0.35},
		Headlines: []Headline{
			{
				Title:   "Banking crisis: a major investment bank collapses",
				Content: "The country's fourth largest investment bank files for bankruptcy after massive derivative losses. Markets fall 25% in 48 hours.",
			},
			{
				Title:   "Severe recession: GDP down 6%",
				Content: "Output contracts a record 6%. Layoffs spread and unemployment reaches 12%. Credit dries up despite emergency central bank action.",
			},
			{
				Title:   "Governments roll out rescue plans",
				Content: "Authorities deploy $2 trillion of nationalisations, state guarantees and toxic asset purchases to stop the deflationary spiral.",
			},
		},
	},
}

// Presets returns the canonical scenarios in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	for i, p := range presets {
		out[i] = p
		out[i].Headlines = append([]Headline(nil), p.Headlines...)
	}
	return out
}

// Lookup finds a preset by key or display name, case-insensitively.
func Lookup(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Key, name) || strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, ErrPresetNotFound
}

// Distance is the sum of absolute deviations over the four shock values.
func Distance(a, b model.Shocks) float64 {
	return math.Abs(a.Growth-b.Growth) +
		math.Abs(a.Inflation-b.Inflation) +
		math.Abs(a.Rate-b.Rate) +
		math.Abs(a.Equity-b.Equity)
}

// Nearest returns the preset closest to shocks. Ties go to the earlier
// preset.
func Nearest(shocks model.Shocks) Preset {
	all := Presets()
	best, bestDist := 0, math.Inf(1)
	for i, p := range all {
		if dist := Distance(shocks, p.Shocks); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return all[best]
}

// Suggest returns the headlines of the preset nearest to shocks.
func Suggest(shocks model.Shocks) []Headline {
	return Nearest(shocks).Headlines
}
