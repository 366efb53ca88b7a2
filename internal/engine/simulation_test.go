package engine

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/talgya/tradewinds/internal/config"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/events"
)

type fixedTuning struct{ cfg config.GameConfig }

func (f fixedTuning) GameConfig(string) config.GameConfig { return f.cfg }
func (f fixedTuning) PhaseMultipliers(int, int) config.PhaseMultipliers {
	return config.PhaseMultipliers{EventMultiplier: 1}
}

// quiet never rolls an event.
var quiet = config.GameConfig{
	StartingMoney:        1000,
	Capacity:             100,
	VolatilityMultiplier: 1,
}

// eventful fires an event on any draw below 0.875.
var eventful = config.GameConfig{
	Events:               config.EventConfig{EventFrequency: 0.7, PositiveEventChance: 0.5},
	StartingMoney:        1000,
	Capacity:             100,
	VolatilityMultiplier: 1,
}

func newSim(t *testing.T, cat *events.Catalog, rng entropy.Source, cfg config.GameConfig, maxWeeks int) *Simulation {
	t.Helper()
	if cat == nil {
		var err error
		if cat, err = events.NewCatalog(); err != nil {
			t.Fatal(err)
		}
	}
	s, err := New(Options{
		MaxWeeks:      maxWeeks,
		Seed:          11,
		StartLocation: "harbor",
		Catalog:       cat,
		RNG:           rng,
		Tuning:        fixedTuning{cfg},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func catalog(t *testing.T, defs ...events.Definition) *events.Catalog {
	t.Helper()
	c, err := events.NewCatalog(defs...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestNewSimulation(t *testing.T) {
	s := newSim(t, nil, entropy.NewSeeded(1), quiet, 52)
	st := s.State()
	if st.Week != 0 || st.Player.Money != 1000 || st.LocationID() != "harbor" {
		t.Fatalf("initial state = %+v", st)
	}
	if len(s.Listing()) != len(economy.DefaultProducts()) {
		t.Fatalf("listing has %d products", len(s.Listing()))
	}
	if _, ok := s.Visited()["harbor"]; !ok {
		t.Fatalf("start location not visited")
	}
	if _, err := New(Options{StartLocation: "atlantis"}); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("unknown start location: err = %v", err)
	}
}

func TestAdvanceWeekAccruesInterest(t *testing.T) {
	cfg := quiet
	cfg.StartingDebt = 5000
	cfg.DebtInterestRate = 0.05
	s := newSim(t, nil, entropy.NewSeeded(1), cfg, 52)
	s.state.Player.Deposit = 1000
	s.cfg.DepositInterestRate = 0.01

	report, err := s.AdvanceWeek(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.DebtInterest != 250 || report.DepositInterest != 10 {
		t.Fatalf("interest = %d/%d, want 250/10", report.DebtInterest, report.DepositInterest)
	}
	if p := s.State().Player; p.Debt != 5250 || p.Deposit != 1010 {
		t.Fatalf("debt/deposit = %d/%d", p.Debt, p.Deposit)
	}
}

func TestWeeklyInterestRounding(t *testing.T) {
	if got := weeklyInterest(1234, 0.05); got != 62 {
		t.Fatalf("interest on 1234 = %d, want 62", got)
	}
	if weeklyInterest(-10, 0.05) != 0 || weeklyInterest(100, 0) != 0 {
		t.Fatalf("non-positive balance or rate should accrue nothing")
	}
}

func TestFullGameStaysInBand(t *testing.T) {
	s := newSim(t, nil, entropy.NewSeeded(1), quiet, 20)
	bands := map[string]economy.Product{}
	for _, p := range economy.DefaultProducts() {
		bands[p.ID] = p
	}
	for w := 1; w <= 20; w++ {
		report, err := s.AdvanceWeek(context.Background())
		if err != nil {
			t.Fatalf("week %d: %v", w, err)
		}
		for id, rec := range report.Prices {
			p := bands[id]
			if rec.Price < p.MinPrice || rec.Price > p.MaxPrice {
				t.Fatalf("week %d %s = %d outside [%d,%d]", w, id, rec.Price, p.MinPrice, p.MaxPrice)
			}
		}
	}
	if s.Outcome() != OutcomeCompleted {
		t.Fatalf("outcome = %q after the last week", s.Outcome())
	}
	if _, err := s.AdvanceWeek(context.Background()); !errors.Is(err, ErrGameOver) {
		t.Fatalf("advance after game end: err = %v", err)
	}
}

func TestAdvanceWeekIsTransactional(t *testing.T) {
	cfg := quiet
	cfg.StartingDebt = 5000
	cfg.DebtInterestRate = 0.05
	s := newSim(t, nil, entropy.NewSeeded(1), cfg, 52)
	before := s.Prices()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AdvanceWeek(ctx); err == nil {
		t.Fatalf("cancelled tick succeeded")
	}
	st := s.State()
	if st.Week != 0 || st.Player.Debt != 5000 {
		t.Fatalf("failed tick leaked state: week=%d debt=%d", st.Week, st.Player.Debt)
	}
	if !reflect.DeepEqual(before, s.Prices()) {
		t.Fatalf("failed tick changed prices")
	}
}

func TestVictoryAndBankruptcy(t *testing.T) {
	win := quiet
	win.VictoryNetWorth = 500
	s := newSim(t, nil, entropy.NewSeeded(1), win, 52)
	if r, _ := s.AdvanceWeek(context.Background()); r.Outcome != OutcomeVictory {
		t.Fatalf("outcome = %q, want victory", r.Outcome)
	}

	lose := quiet
	lose.StartingDebt = 100_000
	lose.BankruptcyDebt = 50_000
	s = newSim(t, nil, entropy.NewSeeded(1), lose, 52)
	if r, _ := s.AdvanceWeek(context.Background()); r.Outcome != OutcomeBankrupt {
		t.Fatalf("outcome = %q, want bankrupt", r.Outcome)
	}
	if _, err := s.ChangeLocation("uptown"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("travel after game over: err = %v", err)
	}
}

func TestEventFiresAndResolves(t *testing.T) {
	cat := catalog(t, events.Definition{
		ID: "gift", Title: "Gift", Repeatable: true,
		Options: []events.Option{{Text: "take", Result: "thanks", Effects: events.Effects{Money: events.Literal(100)}}},
	})
	s := newSim(t, cat, entropy.NewSequence(0), eventful, 52)

	if _, err := s.ResolveEvent(0); !errors.Is(err, ErrNoPendingEvent) {
		t.Fatalf("resolve with nothing pending: err = %v", err)
	}
	report, err := s.AdvanceWeek(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Event == nil || report.Event.ID != "gift" {
		t.Fatalf("no event in report: %+v", report.Event)
	}
	if _, err := s.ResolveEvent(3); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("bad option: err = %v", err)
	}
	res, err := s.ResolveEvent(0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Result != "thanks" || s.State().Player.Money != 1100 {
		t.Fatalf("resolution = %+v money = %d", res, s.State().Player.Money)
	}
	if _, pending := s.Pending(); pending {
		t.Fatalf("event still pending after resolution")
	}
	if rt := s.EventRuntime(); len(rt.EventHistory) != 1 || rt.EventHistory[0].Week != 1 {
		t.Fatalf("history = %+v", rt.EventHistory)
	}
}

func TestChainedEvent(t *testing.T) {
	cat := catalog(t,
		events.Definition{ID: "tip", Title: "Tip", Type: events.TypeStory, Options: []events.Option{
			{Text: "follow", Effects: events.Effects{NextEvent: "deal"}},
		}},
		events.Definition{ID: "deal", Title: "Deal", Type: events.TypeStory,
			Conditions: events.Conditions{RequiredEvents: []string{"tip"}},
			Options:    []events.Option{{Text: "take", Effects: events.Effects{Money: events.Literal(50)}}},
		},
	)
	s := newSim(t, cat, entropy.NewSequence(0), eventful, 52)
	if _, err := s.AdvanceWeek(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := s.ResolveEvent(0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Next == nil || res.Next.ID != "deal" {
		t.Fatalf("chain not followed: %+v", res.Next)
	}
	if _, err := s.ResolveEvent(0); err != nil || s.State().Player.Money != 1050 {
		t.Fatalf("chained resolve: err=%v money=%d", err, s.State().Player.Money)
	}
}

func TestChangeLocation(t *testing.T) {
	cat := catalog(t, events.Definition{
		ID: "gala", Title: "Gala", Type: events.TypeLocation, Repeatable: true,
		Conditions: events.Conditions{Locations: []string{"uptown"}},
		Options:    []events.Option{{Text: "go"}},
	})
	s := newSim(t, cat, entropy.NewSequence(0), quiet, 52)

	if _, err := s.ChangeLocation("atlantis"); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("unknown location: err = %v", err)
	}
	report, err := s.ChangeLocation("uptown")
	if err != nil {
		t.Fatal(err)
	}
	if !report.FirstVisit || report.Event == nil || report.Event.ID != "gala" {
		t.Fatalf("report = %+v", report)
	}
	for _, lp := range report.Products {
		if lp.Product.ID != "watch" {
			continue
		}
		want := int(math.Max(1, math.Round(float64(lp.CanonicalPrice)*1.12*economy.SpecialtyDiscount)))
		if !lp.Special || lp.Price != want {
			t.Fatalf("watch listing = %+v, want price %d", lp, want)
		}
	}
	if s.State().LocationID() != "uptown" {
		t.Fatalf("location not updated")
	}
	again, _ := s.ChangeLocation("uptown")
	if again.FirstVisit {
		t.Fatalf("second visit reported as first")
	}
}

func TestEventRelocatesPlayer(t *testing.T) {
	cat := catalog(t, events.Definition{
		ID: "storm", Title: "Storm", Repeatable: true,
		Options: []events.Option{{Text: "shelter", Effects: events.Effects{LocationChange: "market_street"}}},
	})
	s := newSim(t, cat, entropy.NewSequence(0), eventful, 52)
	if _, err := s.AdvanceWeek(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := s.ResolveEvent(0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Relocated != "market_street" || s.State().LocationID() != "market_street" {
		t.Fatalf("relocation = %q, location = %q", res.Relocated, s.State().LocationID())
	}
}

func TestBuyAndSell(t *testing.T) {
	s := newSim(t, nil, entropy.NewSeeded(1), quiet, 52)
	r, err := s.Buy("rice", 5)
	if err != nil {
		t.Fatal(err)
	}
	if s.State().Player.Money != 1000-r.Total || s.State().Player.Quantity("rice") != 5 {
		t.Fatalf("after buy: %+v", s.State().Player)
	}
	if _, err := s.Sell("rice", 5); err != nil {
		t.Fatal(err)
	}
	if s.State().Player.Money != 1000 {
		t.Fatalf("buy and sell at one price should net zero, money = %d", s.State().Player.Money)
	}
	if _, err := s.Buy("rice", 10_000); !errors.Is(err, ErrTrade) {
		t.Fatalf("oversized buy: err = %v", err)
	}
	if _, err := s.Sell("rice", 1); !errors.Is(err, ErrTrade) {
		t.Fatalf("selling goods not held: err = %v", err)
	}
	if _, err := s.Buy("unobtainium", 1); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("unknown product: err = %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	mk := func() *Simulation {
		s, err := New(Options{Seed: 5, MaxWeeks: 30, StartLocation: "old_town", RNG: entropy.NewSeeded(5)})
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	s := mk()
	for i := 0; i < 8; i++ {
		if _, err := s.AdvanceWeek(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, ok := s.Pending(); ok {
			if _, err := s.ResolveEvent(0); err != nil && !errors.Is(err, ErrInvalidOption) {
				t.Fatal(err)
			}
		}
	}
	snap := s.Snapshot()

	restored := mk()
	if err := restored.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if again := restored.Snapshot(); !reflect.DeepEqual(snap, again) {
		t.Fatalf("restore is not a fixed point")
	}

	a, err := s.AdvanceWeek(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := restored.AdvanceWeek(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Prices, b.Prices) {
		t.Fatalf("restored session prices diverged")
	}

	bad := snap
	bad.LocationID = "atlantis"
	if err := restored.Restore(bad); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("bad snapshot: err = %v", err)
	}
}

func TestRestoreResumesRandomStream(t *testing.T) {
	mk := func() *Simulation {
		s, err := New(Options{Seed: 9, MaxWeeks: 40, StartLocation: "harbor", RNG: entropy.NewSeeded(9), Tuning: fixedTuning{eventful}})
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	play := func(s *Simulation, weeks int) {
		for i := 0; i < weeks; i++ {
			if _, err := s.AdvanceWeek(context.Background()); err != nil {
				t.Fatal(err)
			}
			for {
				def, ok := s.Pending()
				if !ok {
					break
				}
				avail := def.AvailableOptions(s.State())
				if len(avail) == 0 {
					break
				}
				if _, err := s.ResolveEvent(avail[0]); err != nil {
					t.Fatal(err)
				}
			}
		}
	}

	whole := mk()
	play(whole, 20)

	first := mk()
	play(first, 10)
	snap := first.Snapshot()
	if snap.RNG == nil || snap.RNG.Seed != 9 || snap.RNG.Drawn == 0 {
		t.Fatalf("snapshot rng position = %+v", snap.RNG)
	}

	resumed := mk()
	if err := resumed.Restore(snap); err != nil {
		t.Fatal(err)
	}
	play(resumed, 10)

	if !reflect.DeepEqual(whole.Log(0), resumed.Log(0)) {
		t.Fatalf("restored session diverged:\nwhole:   %+v\nresumed: %+v", whole.Log(5), resumed.Log(5))
	}
	if a, b := whole.State().Player, resumed.State().Player; a.Money != b.Money || a.Debt != b.Debt {
		t.Fatalf("player diverged: %+v vs %+v", a, b)
	}
}

func TestLogLimitKeepsSequence(t *testing.T) {
	mk := func() *Simulation {
		s, err := New(Options{Seed: 1, StartLocation: "harbor", RNG: entropy.NewSeeded(1), Tuning: fixedTuning{quiet}, LogLimit: 3})
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	s := mk()
	for i := 0; i < 4; i++ {
		if _, err := s.Buy("rice", 1); err != nil {
			t.Fatal(err)
		}
	}
	log := s.Log(0)
	if len(log) != 3 || log[0].Seq != 3 || log[2].Seq != 5 || s.OldestLogSeq() != 3 {
		t.Fatalf("log = %+v", log)
	}

	restored := mk()
	if err := restored.Restore(s.Snapshot()); err != nil {
		t.Fatal(err)
	}
	if _, err := restored.Sell("rice", 1); err != nil {
		t.Fatal(err)
	}
	if last := restored.Log(1); len(last) != 1 || last[0].Seq != 6 {
		t.Fatalf("sequence after restore = %+v", last)
	}
}

func TestContentVersion(t *testing.T) {
	a := newSim(t, nil, entropy.NewSeeded(1), quiet, 52)
	b := newSim(t, nil, entropy.NewSeeded(2), quiet, 52)
	if a.ContentVersion() == "" || a.ContentVersion() != b.ContentVersion() {
		t.Fatalf("same content, versions %q and %q", a.ContentVersion(), b.ContentVersion())
	}
	c := newSim(t, catalog(t, events.Definition{ID: "x", Title: "X", Options: []events.Option{{Text: "ok"}}}), entropy.NewSeeded(1), quiet, 52)
	if c.ContentVersion() == a.ContentVersion() {
		t.Fatalf("different catalogs share version %q", a.ContentVersion())
	}
}
