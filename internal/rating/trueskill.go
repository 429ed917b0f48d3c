package rating

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Rating is the belief state for a single crash: mean skill and uncertainty.
type Rating struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Params are the TrueSkill tuning constants. Updates are pure functions over
// these; there is no process-wide configuration to set up or restore.
type Params struct {
	Mu       float64 // initial mean
	Sigma    float64 // initial standard deviation
	Beta     float64 // skill-distance scale
	Tau      float64 // dynamic factor added to sigma^2 per update
	DrawProb float64 // probability of a draw between equal players
}

func DefaultParams() Params {
	return Params{
		Mu:       25.0,
		Sigma:    25.0 / 3.0,
		Beta:     25.0 / 6.0,
		Tau:      25.0 / 300.0,
		DrawProb: 0.10,
	}
}

func (p Params) defaultRating() Rating {
	return Rating{Mu: p.Mu, Sigma: p.Sigma}
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// drawMargin converts a draw probability into the epsilon margin used by the
// win/loss truncation functions.
func drawMargin(p Params) float64 {
	return stdNormal.Quantile((p.DrawProb+1)/2) * math.Sqrt2 * p.Beta
}

// vWin is the additive correction for a won comparison: pdf/cdf of the
// truncated Gaussian at t-eps.
func vWin(t, eps float64) float64 {
	x := t - eps
	denom := stdNormal.CDF(x)
	if denom < 1e-12 {
		return -x
	}
	return stdNormal.Prob(x) / denom
}

// wWin is the multiplicative variance correction for a won comparison.
func wWin(t, eps float64) float64 {
	v := vWin(t, eps)
	w := v * (v + t - eps)
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// rate1vs1 applies a single win/loss update and returns the new ratings.
// Pure: both inputs are read-only, p carries all tuning.
func rate1vs1(winner, loser Rating, p Params) (Rating, Rating) {
	tau2 := p.Tau * p.Tau
	wVar := winner.Sigma*winner.Sigma + tau2
	lVar := loser.Sigma*loser.Sigma + tau2

	c2 := 2*p.Beta*p.Beta + wVar + lVar
	c := math.Sqrt(c2)

	t := (winner.Mu - loser.Mu) / c
	eps := drawMargin(p) / c

	v := vWin(t, eps)
	w := wWin(t, eps)

	newWinner := Rating{
		Mu:    winner.Mu + wVar/c*v,
		Sigma: math.Sqrt(wVar * (1 - wVar/c2*w)),
	}
	newLoser := Rating{
		Mu:    loser.Mu - lVar/c*v,
		Sigma: math.Sqrt(lVar * (1 - lVar/c2*w)),
	}
	return newWinner, newLoser
}
