package engine

import (
	"fmt"
	"math"
)

// SelectOptimal returns the candidate with the highest Sharpe ratio. On ties
// the earliest candidate wins.
func SelectOptimal(pop []PortfolioStat) (PortfolioStat, error) {
	if len(pop) == 0 {
		return PortfolioStat{}, ErrEmptyPopulation
	}
	best := 0
	for i := range pop {
		if math.IsNaN(pop[i].Sharpe) {
			return PortfolioStat{}, fmt.Errorf("%w: candidate %d has NaN sharpe", ErrNonFinite, i)
		}
		if pop[i].Sharpe > pop[best].Sharpe {
			best = i
		}
	}
	return pop[best], nil
}
