package game

import (
	"testing"

	"github.com/talgya/tradewinds/internal/economy"
)

func TestInventoryAccounting(t *testing.T) {
	p := &Player{Capacity: 100}
	p.AddItem("rice", 10, 40)
	p.AddItem("rice", 10, 60)
	p.AddItem("laptop", 2, 6000)

	if got := p.Quantity("rice"); got != 20 {
		t.Fatalf("rice = %d", got)
	}
	if got := p.Inventory[0].PurchasePrice; got != 50 {
		t.Fatalf("average price = %d, want 50", got)
	}
	// rice size 2, laptop size 2.
	if got := p.InventoryUsed(economy.DefaultProducts()); got != 44 {
		t.Fatalf("used = %d, want 44", got)
	}

	if got := p.RemoveItem("rice", 25); got != 20 {
		t.Fatalf("removed = %d, want 20", got)
	}
	if p.Quantity("rice") != 0 || len(p.Inventory) != 1 {
		t.Fatalf("empty stack not dropped: %+v", p.Inventory)
	}
	if p.RemoveItem("ghost", 1) != 0 {
		t.Fatalf("removed a product the player does not hold")
	}
}

func TestNetWorth(t *testing.T) {
	m := economy.NewMarket(economy.DefaultProducts(), economy.DefaultLocations(), "harbor")
	p := &Player{Money: 1000, Debt: 500, Deposit: 200}
	p.AddItem("rice", 5, 30)
	if got := p.NetWorth(m); got != 1000+200-500+5*40 {
		t.Fatalf("net worth = %d", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := &Player{Attributes: map[string]float64{"health": 100}, PurchasedHouses: []string{"a"}}
	p.AddItem("rice", 1, 10)
	c := p.Clone()
	c.Attributes["health"] = 1
	c.Inventory[0].Quantity = 99
	c.PurchasedHouses[0] = "b"
	if p.Attributes["health"] != 100 || p.Inventory[0].Quantity != 1 || p.PurchasedHouses[0] != "a" {
		t.Fatalf("clone shares state: %+v", p)
	}
}

func TestStageBoundaries(t *testing.T) {
	cases := []struct {
		week, max int
		want      Stage
	}{
		{0, 52, StageEarly},
		{15, 52, StageEarly},
		{16, 52, StageMid},
		{36, 52, StageMid},
		{37, 52, StageLate},
		{52, 52, StageLate},
		{3, 0, StageEarly},
	}
	for _, c := range cases {
		if got := StageAt(c.week, c.max); got != c.want {
			t.Errorf("StageAt(%d,%d) = %q, want %q", c.week, c.max, got, c.want)
		}
	}
	s := &State{Week: 60, MaxWeeks: 52}
	if s.Progress() != 1 {
		t.Fatalf("progress should cap at 1")
	}
}
