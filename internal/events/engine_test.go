package events

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/game"
)

type countingSource struct {
	n int
	v float64
}

func (c *countingSource) Float() float64 {
	c.n++
	return c.v
}

func newState(week int) *game.State {
	return &game.State{
		Week:       week,
		MaxWeeks:   52,
		Difficulty: game.DifficultyNormal,
		Player:     &game.Player{Money: 1000, Capacity: 100, Attributes: map[string]float64{}},
		Market:     economy.NewMarket(economy.DefaultProducts(), economy.DefaultLocations(), "harbor"),
	}
}

func mustCatalog(t *testing.T, defs ...Definition) *Catalog {
	t.Helper()
	c, err := NewCatalog(defs...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func okOption(eff Effects) []Option {
	return []Option{{Text: "ok", Effects: eff}}
}

func get(t *testing.T, e *Engine, id string) *Definition {
	t.Helper()
	d, ok := e.Catalog().Get(id)
	if !ok {
		t.Fatalf("no event %q", id)
	}
	return d
}

func TestMinWeekBoundary(t *testing.T) {
	e := NewEngine(mustCatalog(t, Definition{ID: "a", Title: "A", Conditions: Conditions{MinWeek: 5}}), entropy.NewSeeded(1), Options{})
	d := get(t, e, "a")
	if e.IsEligible(d, newState(4)) {
		t.Fatalf("eligible one week before minWeek")
	}
	if !e.IsEligible(d, newState(5)) {
		t.Fatalf("not eligible at minWeek")
	}
}

func TestMaxWeekAndLocation(t *testing.T) {
	e := NewEngine(mustCatalog(t,
		Definition{ID: "tut", Title: "T", Conditions: Conditions{MaxWeek: 2}},
		Definition{ID: "dock", Title: "D", Conditions: Conditions{Locations: []string{"harbor"}}},
	), entropy.NewSeeded(1), Options{})
	if e.IsEligible(get(t, e, "tut"), newState(3)) {
		t.Fatalf("eligible after maxWeek")
	}
	st := newState(1)
	if !e.IsEligible(get(t, e, "dock"), st) {
		t.Fatalf("not eligible at its location")
	}
	st.Market.CurrentLocationID = "uptown"
	if e.IsEligible(get(t, e, "dock"), st) {
		t.Fatalf("eligible away from its location")
	}
}

func TestNonRepeatableNeverAgain(t *testing.T) {
	e := NewEngine(mustCatalog(t, Definition{ID: "once", Title: "Once"}), entropy.NewSeeded(1), Options{})
	d := get(t, e, "once")
	e.RecordEvent("once", 3)
	for w := 3; w <= 200; w++ {
		if e.IsEligible(d, newState(w)) {
			t.Fatalf("non-repeatable eligible again at week %d", w)
		}
	}
	if got := e.SelectWeighted([]*Definition{d}, 0.5); got != nil {
		t.Fatalf("selected a spent non-repeatable event")
	}
}

func TestCooldownByType(t *testing.T) {
	cases := []struct {
		typ   Type
		weeks int
	}{
		{TypePersonal, 6},
		{TypeMarket, 3},
		{TypeLocation, 2},
		{TypeRandom, 4},
	}
	for _, c := range cases {
		e := NewEngine(mustCatalog(t, Definition{ID: "x", Title: "X", Type: c.typ, Repeatable: true}), entropy.NewSeeded(1), Options{})
		d := get(t, e, "x")
		e.RecordEvent("x", 10)
		if e.IsEligible(d, newState(10+c.weeks)) {
			t.Errorf("%s: eligible during cooldown", c.typ)
		}
		if !e.IsEligible(d, newState(11+c.weeks)) {
			t.Errorf("%s: still blocked after cooldown", c.typ)
		}
	}
}

func TestConditionsOnPlayer(t *testing.T) {
	yes := true
	e := NewEngine(mustCatalog(t,
		Definition{ID: "rich", Title: "R", Conditions: Conditions{Money: AtLeast(5000)}},
		Definition{ID: "owner", Title: "O", Conditions: Conditions{OwnsHouse: &yes}},
		Definition{ID: "stock", Title: "S", Conditions: Conditions{Inventory: map[string]*Range{"rice": Between(5, 10)}}},
		Definition{ID: "healthy", Title: "H", Conditions: Conditions{Attributes: map[string]*Range{"health": AtLeast(50)}}},
		Definition{ID: "custom", Title: "C", Conditions: Conditions{Custom: func(s *game.State) bool { return s.Player.Debt == 0 }}},
	), entropy.NewSeeded(1), Options{})
	st := newState(1)
	for _, id := range []string{"rich", "owner", "stock", "healthy"} {
		if e.IsEligible(get(t, e, id), st) {
			t.Errorf("%s eligible before its condition holds", id)
		}
	}
	if !e.IsEligible(get(t, e, "custom"), st) {
		t.Errorf("custom predicate ignored")
	}

	st.Player.Money = 6000
	st.Player.PurchasedHouses = []string{"flat"}
	st.Player.AddItem("rice", 7, 40)
	st.Player.Attributes["health"] = 80
	st.Player.Debt = 1
	for _, id := range []string{"rich", "owner", "stock", "healthy"} {
		if !e.IsEligible(get(t, e, id), st) {
			t.Errorf("%s not eligible once its condition holds", id)
		}
	}
	if e.IsEligible(get(t, e, "custom"), st) {
		t.Errorf("custom predicate not applied")
	}
}

func TestRequiredAndExcludedEvents(t *testing.T) {
	e := NewEngine(mustCatalog(t,
		Definition{ID: "intro", Title: "I"},
		Definition{ID: "sequel", Title: "S", Conditions: Conditions{RequiredEvents: []string{"intro"}}},
		Definition{ID: "alt", Title: "A", Conditions: Conditions{ExcludedEvents: []string{"intro"}}},
	), entropy.NewSeeded(1), Options{})
	st := newState(1)
	if e.IsEligible(get(t, e, "sequel"), st) || !e.IsEligible(get(t, e, "alt"), st) {
		t.Fatalf("dependencies wrong before intro")
	}
	e.RecordEvent("intro", 1)
	if !e.IsEligible(get(t, e, "sequel"), st) || e.IsEligible(get(t, e, "alt"), st) {
		t.Fatalf("dependencies wrong after intro")
	}
}

func TestProbabilityRoll(t *testing.T) {
	cat := mustCatalog(t,
		Definition{ID: "maybe", Title: "M", Repeatable: true, Conditions: Conditions{Probability: 0.5}},
		Definition{ID: "always", Title: "A", Conditions: Conditions{Probability: 1}},
	)
	// Unseen: 0.5 is boosted to 0.75.
	e := NewEngine(cat, entropy.NewSequence(0.7), Options{})
	if !e.IsEligible(get(t, e, "maybe"), newState(1)) {
		t.Fatalf("unseen boost not applied")
	}
	e.RecordEvent("maybe", 1)
	if e.IsEligible(get(t, e, "maybe"), newState(20)) {
		t.Fatalf("boost still applied after the event was seen")
	}

	src := &countingSource{v: 0.999}
	e = NewEngine(cat, src, Options{})
	if !e.IsEligible(get(t, e, "always"), newState(1)) || src.n != 0 {
		t.Fatalf("probability 1 should pass without drawing (draws=%d)", src.n)
	}
}

func TestUnseenBoostNeverLowersProbability(t *testing.T) {
	cat := mustCatalog(t,
		Definition{ID: "likely", Title: "L", Repeatable: true, Conditions: Conditions{Probability: 0.97}},
		Definition{ID: "modest", Title: "M", Repeatable: true, Conditions: Conditions{Probability: 0.8}},
	)
	cases := []struct {
		id   string
		draw float64
		want bool
	}{
		{"likely", 0.96, true},   // 0.97 is kept, not capped down to 0.95
		{"likely", 0.975, false}, // and not raised either
		{"modest", 0.94, true},   // 0.8 × 1.5 is capped at 0.95
		{"modest", 0.951, false},
	}
	for _, tc := range cases {
		e := NewEngine(cat, entropy.NewSequence(tc.draw), Options{})
		if got := e.IsEligible(get(t, e, tc.id), newState(1)); got != tc.want {
			t.Errorf("%s unseen with draw %v: eligible = %v, want %v", tc.id, tc.draw, got, tc.want)
		}
	}
}

func TestWeightedSelectionConverges(t *testing.T) {
	e := NewEngine(mustCatalog(t,
		Definition{ID: "light", Title: "L", Weight: 1},
		Definition{ID: "heavy", Title: "H", Weight: 3},
	), entropy.NewSeeded(7), Options{})
	defs := e.Catalog().All()

	const n = 20000
	light := 0
	for i := 0; i < n; i++ {
		if e.SelectWeighted(defs, 0.1).ID == "light" {
			light++
		}
	}
	if frac := float64(light) / n; math.Abs(frac-0.25) > 0.02 {
		t.Fatalf("light selected %.3f of the time, want ≈0.25", frac)
	}
}

func TestSelectWeightedEmpty(t *testing.T) {
	e := NewEngine(mustCatalog(t, Definition{ID: "a", Title: "A"}), entropy.NewSeeded(1), Options{Deny: []string{"a"}})
	if e.SelectWeighted(nil, 0) != nil {
		t.Fatalf("empty input should select nothing")
	}
	if e.SelectWeighted(e.Catalog().All(), 0) != nil {
		t.Fatalf("denied event selected")
	}
}

func TestSelectWeightedTiesGoFirst(t *testing.T) {
	e := NewEngine(mustCatalog(t,
		Definition{ID: "first", Title: "F"},
		Definition{ID: "second", Title: "S"},
	), entropy.NewSequence(0), Options{})
	if got := e.SelectWeighted(e.Catalog().All(), 0); got.ID != "first" {
		t.Fatalf("draw 0 picked %s", got.ID)
	}
}

func TestEffectiveWeightRules(t *testing.T) {
	e := NewEngine(mustCatalog(t,
		Definition{ID: "plain", Title: "P", Repeatable: true},
		Definition{ID: "story", Title: "S", Type: TypeStory},
		Definition{ID: "market", Title: "M", Type: TypeMarket},
		Definition{ID: "house", Title: "H", Category: CategoryProperty},
		Definition{ID: "chain", Title: "C", Options: []Option{
			{Text: "go", Effects: Effects{NextEvent: "plain"}, Condition: func(*game.State) bool { return false }},
		}},
	), entropy.NewSeeded(1), Options{})

	near := func(got, want float64) bool { return math.Abs(got-want) < 1e-9 }
	cases := []struct {
		id       string
		progress float64
		want     float64
	}{
		{"plain", 0.1, 2},
		{"story", 0.1, 2.4},
		{"market", 0.1, 2.2},
		{"house", 0.3, 2},
		{"house", 0.5, 3},
		{"chain", 0.1, 2.6}, // boost holds even though the option is hidden
	}
	for _, c := range cases {
		if got := e.EffectiveWeight(get(t, e, c.id), c.progress); !near(got, c.want) {
			t.Errorf("%s at %.1f: weight %v, want %v", c.id, c.progress, got, c.want)
		}
	}

	plain := get(t, e, "plain")
	e.RecordEvent("plain", 1)
	e.RecordEvent("plain", 2)
	if got := e.EffectiveWeight(plain, 0); !near(got, 0.25) {
		t.Errorf("after two repeats weight %v, want 0.25", got)
	}
	e.RecordEvent("plain", 3)
	e.RecordEvent("plain", 4)
	if got := e.EffectiveWeight(plain, 0); !near(got, 0.2) {
		t.Errorf("decay floor: weight %v, want 0.2", got)
	}
}

func TestMoneyEffectsAccumulate(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(1)
	eff := Effects{Money: Literal(500)}
	e.ApplyEffects(st, eff)
	e.ApplyEffects(st, eff)
	if st.Player.Money != 2000 {
		t.Fatalf("money = %d, want 2000", st.Player.Money)
	}
}

func TestInsufficientFunds(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(1)
	res := e.ApplyEffects(st, Effects{Money: Literal(-50000)})
	if st.Player.Money != 1000 {
		t.Fatalf("money changed to %d", st.Player.Money)
	}
	if len(res.Applied) != 0 {
		t.Fatalf("applied = %+v", res.Applied)
	}
	if len(res.Failed) != 1 || res.Failed[0].Type != "money" || res.Failed[0].Reason != ReasonInsufficientFunds {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestPercentageEffects(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(1)
	st.Player.Debt = 5000
	e.ApplyEffects(st, Effects{Money: Literal(-0.1), Debt: Literal(-0.1)})
	if st.Player.Money != 900 || st.Player.Debt != 4500 {
		t.Fatalf("money/debt = %d/%d, want 900/4500", st.Player.Money, st.Player.Debt)
	}
	e.ApplyEffects(st, Effects{Debt: Literal(-10000)})
	if st.Player.Debt != 0 {
		t.Fatalf("debt went to %d, want floor 0", st.Player.Debt)
	}
	e.ApplyEffects(st, Effects{Debt: Literal(750), Capacity: Literal(-500)})
	if st.Player.Debt != 750 || st.Player.Capacity != 0 {
		t.Fatalf("debt/capacity = %d/%d", st.Player.Debt, st.Player.Capacity)
	}
}

func TestComputedValue(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(4)
	e.ApplyEffects(st, Effects{Money: Computed(func(s *game.State) float64 { return float64(s.Week * 100) })})
	if st.Player.Money != 1400 {
		t.Fatalf("money = %d, want 1400", st.Player.Money)
	}
}

func TestItemEffects(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(1)
	res := e.ApplyEffects(st, Effects{Items: []ItemEffect{
		{ProductID: "rice", Quantity: 10},
		{ProductID: "antique", Quantity: 40},
		{ProductID: "unobtainium", Quantity: 1},
	}})
	if st.Player.Quantity("rice") != 10 || st.Player.Quantity("antique") != 0 {
		t.Fatalf("inventory = %+v", st.Player.Inventory)
	}
	reasons := map[string]string{}
	for _, f := range res.Failed {
		reasons[f.Target] = f.Reason
	}
	if reasons["antique"] != ReasonInventoryFull || reasons["unobtainium"] != ReasonProductNotFound {
		t.Fatalf("failed = %+v", res.Failed)
	}

	st.Player.AddItem("seafood", 3, 180)
	e.ApplyEffects(st, Effects{Items: []ItemEffect{{Category: "food", Quantity: -12}}})
	if left := st.Player.Quantity("rice") + st.Player.Quantity("seafood"); left != 1 {
		t.Fatalf("food left = %d, want 1", left)
	}
}

func TestAttributesAndIntents(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(1)
	st.Player.Attributes = nil
	res := e.ApplyEffects(st, Effects{
		Attributes:     map[string]Value{"health": Literal(70)},
		NextEvent:      "later",
		LocationChange: "uptown",
	})
	if st.Player.Attributes["health"] != 70 {
		t.Fatalf("attribute not set")
	}
	if res.NextEvent != "later" || res.LocationChange != "uptown" {
		t.Fatalf("intents = %q/%q", res.NextEvent, res.LocationChange)
	}
	if st.LocationID() != "harbor" {
		t.Fatalf("location changed directly")
	}
}

func TestMarketEffectWindow(t *testing.T) {
	e := NewEngine(mustCatalog(t), entropy.NewSeeded(1), Options{})
	st := newState(10)
	res := e.ApplyEffects(st, Effects{Market: &MarketEffect{MarketModifiers: economy.MarketModifiers{GlobalPriceModifier: 0.5}}})
	if res.MarketEffect == nil || res.MarketEffect.ID == "" {
		t.Fatalf("no market effect recorded")
	}
	if pp, _ := st.Market.Price("laptop"); pp.Price != 3000 {
		t.Fatalf("laptop = %d, want 3000 after retroactive halving", pp.Price)
	}
	for _, w := range []int{10, 11} {
		if g := e.ActiveMarketModifiers(w).Global(); g != 0.5 {
			t.Fatalf("week %d global = %v, want 0.5", w, g)
		}
	}
	if g := e.ActiveMarketModifiers(13).Global(); g != 1 {
		t.Fatalf("week 13 global = %v, want 1", g)
	}
	if n := e.ExpireMarketEffects(11); n != 0 {
		t.Fatalf("expired %d effects too early", n)
	}
	if n := e.ExpireMarketEffects(12); n != 1 || len(e.ActiveMarketEffects()) != 0 {
		t.Fatalf("expire at 12 removed %d", n)
	}
}

func TestResolveOption(t *testing.T) {
	e := NewEngine(mustCatalog(t, Definition{ID: "gift", Title: "G", Options: []Option{
		{Text: "take", Effects: Effects{Money: Literal(100)}},
		{Text: "vip", Condition: func(s *game.State) bool { return s.Player.Money > 1e6 }},
	}}), entropy.NewSeeded(1), Options{})
	st := newState(1)
	d := get(t, e, "gift")
	if _, err := e.ResolveOption(st, d, 1); !errors.Is(err, ErrOptionUnavailable) {
		t.Fatalf("hidden option: err = %v", err)
	}
	if _, err := e.ResolveOption(st, d, 5); !errors.Is(err, ErrOptionUnavailable) {
		t.Fatalf("out of range: err = %v", err)
	}
	if _, err := e.ResolveOption(st, d, 0); err != nil || st.Player.Money != 1100 {
		t.Fatalf("resolve: err=%v money=%d", err, st.Player.Money)
	}
	if got := d.AvailableOptions(st); len(got) != 1 || got[0] != 0 {
		t.Fatalf("available = %v", got)
	}
}

func TestSaveLoadFixedPoint(t *testing.T) {
	cat := mustCatalog(t,
		Definition{ID: "a", Title: "A", Repeatable: true, Type: TypeMarket},
		Definition{ID: "b", Title: "B"},
	)
	e := NewEngine(cat, entropy.NewSeeded(1), Options{})
	e.RecordEvent("a", 2)
	e.RecordEvent("b", 3)
	e.RecordEvent("a", 7)
	e.ApplyEffects(newState(7), Effects{Market: &MarketEffect{
		MarketModifiers: economy.MarketModifiers{CategoryModifiers: map[string]float64{"food": 1.2}},
		DurationWeeks:   3,
	}})
	saved := e.SaveState()

	other := NewEngine(cat, entropy.NewSeeded(99), Options{})
	other.LoadSaveState(saved)
	if again := other.SaveState(); !reflect.DeepEqual(saved, again) {
		t.Fatalf("save/load not a fixed point:\n%+v\n%+v", saved, again)
	}
	if other.Occurrences("a") != 2 {
		t.Fatalf("history lost")
	}

	other.Reset()
	empty := other.SaveState()
	if len(empty.TriggeredEvents) != 0 || len(empty.EventHistory) != 0 || len(empty.Cooldowns) != 0 || len(empty.ActiveEvents) != 0 {
		t.Fatalf("reset left state: %+v", empty)
	}
}

func TestGeneratorTriggerRoll(t *testing.T) {
	e := NewEngine(mustCatalog(t, Definition{ID: "a", Title: "A", Repeatable: true}), entropy.NewSequence(0.99), Options{})
	if got := e.GenerateStageAppropriateEvent(newState(1)); got != nil {
		t.Fatalf("event fired on a losing trigger roll: %s", got.ID)
	}
}

func TestGeneratorPolarity(t *testing.T) {
	cat := mustCatalog(t,
		Definition{ID: "good", Title: "G", Polarity: PolarityPositive, Repeatable: true},
		Definition{ID: "bad", Title: "B", Polarity: PolarityNegative, Repeatable: true},
	)
	// Draws: trigger, polarity, selection.
	e := NewEngine(cat, entropy.NewSequence(0, 0, 0), Options{})
	if got := e.GenerateStageAppropriateEvent(newState(1)); got == nil || got.ID != "good" {
		t.Fatalf("low polarity draw should pick the positive event, got %v", got)
	}
	e = NewEngine(cat, entropy.NewSequence(0, 0.99, 0), Options{})
	if got := e.GenerateStageAppropriateEvent(newState(1)); got == nil || got.ID != "bad" {
		t.Fatalf("high polarity draw should pick the negative event, got %v", got)
	}
}

func TestGeneratorStageFilter(t *testing.T) {
	e := NewEngine(mustCatalog(t,
		Definition{ID: "finale", Title: "F", Stage: game.StageLate},
		Definition{ID: "tutorial", Title: "T", Type: TypeTutorial},
	), entropy.NewSequence(0), Options{})
	if got := e.GenerateStageAppropriateEvent(newState(30)); got != nil {
		t.Fatalf("mid game picked %s", got.ID)
	}
	if got := e.GenerateStageAppropriateEvent(newState(45)); got == nil || got.ID != "finale" {
		t.Fatalf("late game should pick the finale, got %v", got)
	}
}
