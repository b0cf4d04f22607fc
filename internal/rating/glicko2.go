// internal/rating/glicko2.go
package rating

import "math"

const (
	// GlickoScale is the multiplier used for converting between the public
	// 1500-based scale and Glicko2's internal mu/phi scale.
	GlickoScale = 173.7178
	// BaseRating is the center of the public rating scale.
	BaseRating = 1500.0
	// Epsilon is the tolerance used in iteration stopping conditions.
	Epsilon = 0.000001
	// maxVolatilityIterations bounds the volatility convergence loop.
	maxVolatilityIterations = 100
)

// Params carries the system constants for a rating update. Tau constrains
// how fast volatility may change between rating periods (0.3–1.2 is the
// sensible range); the defaults seed newly created players.
type Params struct {
	Tau               float64
	DefaultRating     float64
	DefaultDeviation  float64
	DefaultVolatility float64
}

// DefaultParams returns the standard system constants.
func DefaultParams() Params {
	return Params{
		Tau:               0.5,
		DefaultRating:     1500.0,
		DefaultDeviation:  200.0,
		DefaultVolatility: 0.06,
	}
}

// Rating is a player's skill estimate on the public scale: rating around
// 1500, deviation is the confidence width, volatility the expected
// fluctuation of true skill.
type Rating struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// glicko2 holds the transformed rating (mu), deviation (phi) and
// volatility (sigma) in Glicko2 space.
type glicko2 struct {
	mu    float64
	phi   float64
	sigma float64
}

func toGlicko2(r Rating) glicko2 {
	return glicko2{
		mu:    (r.Rating - BaseRating) / GlickoScale,
		phi:   r.Deviation / GlickoScale,
		sigma: r.Volatility,
	}
}

func (g glicko2) toRating() Rating {
	return Rating{
		Rating:     g.mu*GlickoScale + BaseRating,
		Deviation:  g.phi * GlickoScale,
		Volatility: g.sigma,
	}
}

// ComputeUpdate applies a single-game Glicko-2 update to both participants
// and returns their new ratings. score is the result from a's perspective:
// 1.0 if a won, 0.0 if a lost, 0.5 for a draw. Both players are updated
// against the opponent's pre-match values, so the call order of the two
// internal updates does not matter.
//
// The function is pure: no shared state, safe to call concurrently.
//
// A single game is a one-game rating period, so deviation only partially
// converges per call; that is the intended model here, not a shortcut.
func ComputeUpdate(a, b Rating, score float64, p Params) (Rating, Rating) {
	ga := toGlicko2(a)
	gb := toGlicko2(b)

	newA := updateOne(ga, gb, score, p.Tau)
	newB := updateOne(gb, ga, 1.0-score, p.Tau)

	return newA.toRating(), newB.toRating()
}

// updateOne performs the single-match Glicko2 update for r against opponent
// rOpp with the given score, following Glickman's step numbering.
func updateOne(r, rOpp glicko2, score, tau float64) glicko2 {
	gVal := g(rOpp.phi)
	eVal := e(r.mu, rOpp.mu, rOpp.phi)

	// Step 3: estimated variance of the outcome.
	v := 1.0 / (gVal * gVal * eVal * (1 - eVal))
	// Step 4: estimated improvement.
	delta := v * gVal * (score - eVal)

	// Step 5: new volatility via the iterative convergence procedure.
	newSigma := volatility(r.phi, r.sigma, v, delta, tau)

	// Steps 6-7: new deviation and rating.
	phiStar := math.Sqrt(r.phi*r.phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := r.mu + phiPrime*phiPrime*gVal*(score-eVal)

	return glicko2{
		mu:    muPrime,
		phi:   phiPrime,
		sigma: newSigma,
	}
}

// volatility runs the root-finding iteration for the new sigma, bounded by
// tau and stopped at Epsilon.
func volatility(phi, sigma, v, delta, tau float64) float64 {
	a := math.Log(sigma * sigma)
	fx := func(x float64) float64 {
		return f(x, phi, v, delta, a, tau)
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for fx(a-k*tau) < 0 {
			k++
		}
		B = a - k*tau
	}

	fA := fx(A)
	fB := fx(B)
	for i := 0; i < maxVolatilityIterations && math.Abs(B-A) > Epsilon; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := fx(C)
		if fC*fB <= 0 {
			A = B
			fA = fB
		} else {
			fA /= 2
		}
		B = C
		fB = fC
	}
	return math.Exp(A / 2)
}

// g is the G(phi) weighting factor, 1/sqrt(1+3phi^2/pi^2).
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/math.Pi/math.Pi)
}

// e is the expected score, E(mu,mu2,phi2)=1/(1+exp[-g(phi2)*(mu-mu2)]).
func e(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

// f is the volatility root-finding function from the Glicko-2 paper.
func f(x, phi, v, delta, a, tau float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return (num / den) - ((x - a) / (tau * tau))
}
