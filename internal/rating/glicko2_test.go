package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWinnerUpLoserDown(t *testing.T) {
	p := DefaultParams()
	a := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	b := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}

	newA, newB := ComputeUpdate(a, b, 1.0, p)

	if newA.Rating <= 1500 {
		t.Errorf("winner's rating should have gone up, got %f", newA.Rating)
	}
	if newB.Rating >= 1500 {
		t.Errorf("loser's rating should have gone down, got %f", newB.Rating)
	}

	// Symmetric starting conditions: the deltas mirror each other.
	assert.InDelta(t, newA.Rating-1500, 1500-newB.Rating, 1e-9)

	// One game played means both players are better known than before.
	assert.Less(t, newA.Deviation, 200.0)
	assert.Less(t, newB.Deviation, 200.0)
}

func TestDeterministic(t *testing.T) {
	p := DefaultParams()
	a := Rating{Rating: 1712.3, Deviation: 110.5, Volatility: 0.059}
	b := Rating{Rating: 1444.0, Deviation: 290.1, Volatility: 0.062}

	a1, b1 := ComputeUpdate(a, b, 0.0, p)
	a2, b2 := ComputeUpdate(a, b, 0.0, p)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestSymmetricDraw(t *testing.T) {
	p := DefaultParams()
	a := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	b := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}

	newA, newB := ComputeUpdate(a, b, 0.5, p)

	// Equal players drawing learn nothing about their relative skill.
	assert.InDelta(t, 1500.0, newA.Rating, 1e-9)
	assert.InDelta(t, 1500.0, newB.Rating, 1e-9)
	assert.InDelta(t, newA.Deviation, newB.Deviation, 1e-9)
}

func TestAsymmetricDrawConverges(t *testing.T) {
	p := DefaultParams()
	strong := Rating{Rating: 1800, Deviation: 150, Volatility: 0.06}
	weak := Rating{Rating: 1400, Deviation: 150, Volatility: 0.06}

	newStrong, newWeak := ComputeUpdate(strong, weak, 0.5, p)

	// A draw is a worse-than-expected result for the favorite.
	if newStrong.Rating >= strong.Rating {
		t.Errorf("favorite should lose rating on a draw, got %f", newStrong.Rating)
	}
	if newWeak.Rating <= weak.Rating {
		t.Errorf("underdog should gain rating on a draw, got %f", newWeak.Rating)
	}
}

func TestUpsetMovesMoreThanExpectedResult(t *testing.T) {
	p := DefaultParams()
	strong := Rating{Rating: 1800, Deviation: 150, Volatility: 0.06}
	weak := Rating{Rating: 1400, Deviation: 150, Volatility: 0.06}

	_, weakAfterWin := ComputeUpdate(strong, weak, 0.0, p)
	_, weakAfterLoss := ComputeUpdate(strong, weak, 1.0, p)

	gain := weakAfterWin.Rating - weak.Rating
	loss := weak.Rating - weakAfterLoss.Rating
	if gain <= loss {
		t.Errorf("upset win should move rating more than expected loss: gain=%f loss=%f", gain, loss)
	}
}

func TestVolatilityStaysBounded(t *testing.T) {
	p := DefaultParams()
	a := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	b := Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}

	newA, _ := ComputeUpdate(a, b, 1.0, p)

	assert.Greater(t, newA.Volatility, 0.0)
	assert.False(t, math.IsNaN(newA.Volatility))
	// One game cannot move sigma far from 0.06 with tau=0.5.
	assert.InDelta(t, 0.06, newA.Volatility, 0.01)
}
