package projection

import "strings"

// Scenario shifts every asset's expected return and scales its volatility
// for the whole projection horizon.
type Scenario struct {
	Name                 string  `json:"name"`
	ReturnShift          float64 `json:"return_shift"`
	VolatilityMultiplier float64 `json:"volatility_multiplier"`
}

// Named scenarios.
var (
	Normal        = Scenario{Name: "normal", ReturnShift: 0, VolatilityMultiplier: 1.0}
	Crisis        = Scenario{Name: "crisis", ReturnShift: -0.15, VolatilityMultiplier: 1.5}
	HighInflation = Scenario{Name: "high_inflation", ReturnShift: -0.05, VolatilityMultiplier: 1.2}
	BullMarket    = Scenario{Name: "bull_market", ReturnShift: 0.05, VolatilityMultiplier: 0.8}
)

// Scenarios lists the named scenarios.
func Scenarios() []Scenario {
	return []Scenario{Normal, Crisis, HighInflation, BullMarket}
}

// ScenarioByName finds a named scenario, case-insensitively.
func ScenarioByName(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Scenario{}, false
}
