package costbasis

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestAverageCostOnBuy(t *testing.T) {
	t.Run("first purchase uses purchase price", func(t *testing.T) {
		res, err := AverageCostOnBuy(decimal.Zero, decimal.Zero, d("10"), d("100"))
		require.NoError(t, err)
		assert.True(t, d("100").Equal(res.AverageCost))
		assert.True(t, d("1000").Equal(res.TotalInvested))
	})

	t.Run("weighted average of two lots", func(t *testing.T) {
		res, err := AverageCostOnBuy(d("10"), d("100"), d("10"), d("120"))
		require.NoError(t, err)
		assert.True(t, d("110").Equal(res.AverageCost))
		assert.True(t, d("2200").Equal(res.TotalInvested))
	})

	t.Run("rounds average cost to 8 places and total to cents independently", func(t *testing.T) {
		res, err := AverageCostOnBuy(d("1"), d("10"), d("2"), d("10.005"))
		require.NoError(t, err)
		// (10 + 20.01) / 3 = 10.00333333...
		assert.Equal(t, "10.00333333", res.AverageCost.String())
		assert.Equal(t, "30.01", res.TotalInvested.String())
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		_, err := AverageCostOnBuy(d("10"), d("100"), decimal.Zero, d("50"))
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("rejects zero price", func(t *testing.T) {
		_, err := AverageCostOnBuy(d("10"), d("100"), d("5"), decimal.Zero)
		require.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("rejects negative existing state", func(t *testing.T) {
		_, err := AverageCostOnBuy(d("-1"), d("100"), d("5"), d("10"))
		require.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = AverageCostOnBuy(d("1"), d("-100"), d("5"), d("10"))
		require.ErrorIs(t, err, ErrInvalidPrice)
	})
}

func TestAverageCostOnBuy_StaysBetweenLotPrices(t *testing.T) {
	quantities := []string{"0.00000001", "0.5", "1", "3", "17.25", "1000"}
	prices := []string{"0.01", "1.5", "45.67", "100", "548.0848", "99999.99"}

	for _, eq := range quantities {
		for _, ep := range prices {
			for _, aq := range quantities {
				for _, ap := range prices {
					res, err := AverageCostOnBuy(d(eq), d(ep), d(aq), d(ap))
					require.NoError(t, err)

					lo := decimal.Min(d(ep), d(ap))
					hi := decimal.Max(d(ep), d(ap))
					assert.True(t, res.AverageCost.GreaterThanOrEqual(lo), "avg %s below %s", res.AverageCost, lo)
					assert.True(t, res.AverageCost.LessThanOrEqual(hi), "avg %s above %s", res.AverageCost, hi)

					expected := d(eq).Mul(d(ep)).Add(d(aq).Mul(d(ap)))
					assert.True(t, res.TotalInvested.Sub(expected).Abs().LessThanOrEqual(d("0.01")),
						"total %s vs %s", res.TotalInvested, expected)
				}
			}
		}
	}
}

func TestCostBasisAfterSale(t *testing.T) {
	t.Run("keeps average cost and reduces total", func(t *testing.T) {
		res, err := CostBasisAfterSale(d("20"), d("110"), d("5"))
		require.NoError(t, err)
		assert.True(t, d("15").Equal(res.RemainingQuantity))
		assert.True(t, d("110").Equal(res.AverageCost))
		assert.True(t, d("1650").Equal(res.TotalInvested))
	})

	t.Run("selling everything leaves zero quantity with basis intact", func(t *testing.T) {
		res, err := CostBasisAfterSale(d("3"), d("67.1"), d("3"))
		require.NoError(t, err)
		assert.True(t, res.RemainingQuantity.IsZero())
		assert.True(t, d("67.1").Equal(res.AverageCost))
		assert.True(t, res.TotalInvested.IsZero())
	})

	t.Run("rejects oversell", func(t *testing.T) {
		_, err := CostBasisAfterSale(d("10"), d("5"), d("15"))
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("rejects empty holding and zero sale", func(t *testing.T) {
		_, err := CostBasisAfterSale(decimal.Zero, d("5"), d("1"))
		require.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = CostBasisAfterSale(d("10"), d("5"), decimal.Zero)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("rejects non-positive average cost", func(t *testing.T) {
		_, err := CostBasisAfterSale(d("10"), decimal.Zero, d("1"))
		require.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("average cost never drifts", func(t *testing.T) {
		for _, avg := range []string{"0.00000001", "1", "33.33333333", "135.1096", "548.43"} {
			for _, sold := range []string{"0.00000001", "0.16017600", "1", "2.5", "4.89941"} {
				res, err := CostBasisAfterSale(d("4.89941"), d(avg), d(sold))
				require.NoError(t, err)
				assert.True(t, d(avg).Equal(res.AverageCost))
			}
		}
	})
}

func TestMetrics(t *testing.T) {
	pos := &models.Position{
		Quantity:      d("15"),
		AverageCost:   d("110"),
		TotalInvested: d("1650"),
	}

	t.Run("missing price yields no metrics", func(t *testing.T) {
		m := Metrics(pos, nil)
		assert.False(t, m.Known())
		assert.Nil(t, m.CurrentValue)
		assert.Nil(t, m.UnrealizedGainLoss)
		assert.Nil(t, m.UnrealizedGainLossPercentage)
	})

	t.Run("non-positive price yields no metrics", func(t *testing.T) {
		assert.Equal(t, PositionMetrics{}, Metrics(pos, dp("0")))
		assert.Equal(t, PositionMetrics{}, Metrics(pos, dp("-3")))
	})

	t.Run("computes value gain and percentage", func(t *testing.T) {
		m := Metrics(pos, dp("150"))
		require.True(t, m.Known())
		assert.Equal(t, "2250", m.CurrentValue.String())
		assert.Equal(t, "600", m.UnrealizedGainLoss.String())
		assert.Equal(t, "36.36", m.UnrealizedGainLossPercentage.String())
	})

	t.Run("percentage is zero without invested capital", func(t *testing.T) {
		empty := &models.Position{Quantity: decimal.Zero, AverageCost: d("10"), TotalInvested: decimal.Zero}
		m := Metrics(empty, dp("12"))
		require.True(t, m.Known())
		assert.True(t, m.CurrentValue.IsZero())
		assert.True(t, m.UnrealizedGainLossPercentage.IsZero())
	})
}

func TestUpdateImpact(t *testing.T) {
	pos := &models.Position{
		Quantity:      d("20"),
		AverageCost:   d("110"),
		TotalInvested: d("2200"),
	}

	t.Run("unchanged quantity is a no-op", func(t *testing.T) {
		impact, err := UpdateImpact(pos, d("20"), nil)
		require.NoError(t, err)
		assert.True(t, impact.QuantityChange.IsZero())
		assert.True(t, impact.ValueChange.IsZero())
		assert.True(t, d("110").Equal(impact.NewAverageCost))
		assert.True(t, d("2200").Equal(impact.NewTotalInvested))
	})

	t.Run("decrease is an implicit sell without price", func(t *testing.T) {
		impact, err := UpdateImpact(pos, d("15"), nil)
		require.NoError(t, err)
		assert.True(t, d("110").Equal(impact.NewAverageCost))
		assert.True(t, d("-5").Equal(impact.QuantityChange))
		assert.True(t, d("1650").Equal(impact.NewTotalInvested))
		assert.True(t, d("-550").Equal(impact.ValueChange))
	})

	t.Run("decrease ignores a supplied price", func(t *testing.T) {
		impact, err := UpdateImpact(pos, d("15"), dp("500"))
		require.NoError(t, err)
		assert.True(t, d("110").Equal(impact.NewAverageCost))
		assert.True(t, d("-550").Equal(impact.ValueChange))
	})

	t.Run("increase without price fails", func(t *testing.T) {
		_, err := UpdateImpact(pos, d("25"), nil)
		require.ErrorIs(t, err, ErrMissingPrice)

		_, err = UpdateImpact(pos, d("25"), dp("0"))
		require.ErrorIs(t, err, ErrMissingPrice)
	})

	t.Run("increase is an implicit buy", func(t *testing.T) {
		impact, err := UpdateImpact(pos, d("25"), dp("140"))
		require.NoError(t, err)
		assert.True(t, d("5").Equal(impact.QuantityChange))
		assert.True(t, d("116").Equal(impact.NewAverageCost))
		assert.True(t, d("2900").Equal(impact.NewTotalInvested))
		assert.True(t, d("700").Equal(impact.ValueChange))
	})

	t.Run("negative quantity fails", func(t *testing.T) {
		_, err := UpdateImpact(pos, d("-1"), nil)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("edit to zero sells everything", func(t *testing.T) {
		impact, err := UpdateImpact(pos, decimal.Zero, nil)
		require.NoError(t, err)
		assert.True(t, impact.NewQuantity.IsZero())
		assert.True(t, d("110").Equal(impact.NewAverageCost))
		assert.True(t, impact.NewTotalInvested.IsZero())
	})
}
