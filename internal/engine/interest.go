package engine

import (
	"github.com/shopspring/decimal"

	"github.com/talgya/tradewinds/internal/config"
	"github.com/talgya/tradewinds/internal/game"
)

// accrueInterest applies one week of debt and deposit interest and returns
// the amounts added. Interest is computed in decimal and rounded half away
// from zero to whole units.
func accrueInterest(p *game.Player, cfg config.GameConfig) (debt, deposit int64) {
	debt = weeklyInterest(p.Debt, cfg.DebtInterestRate)
	deposit = weeklyInterest(p.Deposit, cfg.DepositInterestRate)
	p.Debt += debt
	p.Deposit += deposit
	return debt, deposit
}

func weeklyInterest(balance int64, rate float64) int64 {
	if balance <= 0 || rate <= 0 {
		return 0
	}
	return decimal.NewFromInt(balance).Mul(decimal.NewFromFloat(rate)).Round(0).IntPart()
}
