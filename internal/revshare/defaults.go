package revshare

func flat(name string, share float64, buyers ...int64) Rule {
	return Rule{Name: name, BuyerIDs: buyers, Kind: FlatPercent, Share: share}
}

func spread(name string, base, share float64, buyers ...int64) Rule {
	return Rule{Name: name, BuyerIDs: buyers, Kind: Spread, Base: base, Share: share}
}

// DefaultRules is the contracted buyer revenue-share schedule.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "tiered-apr-8",
			BuyerIDs:    []int64{128999, 11111, 24814, 163022},
			Kind:        TieredSpread,
			Base:        8,
			Tiers:       []float64{0.125, 0.15, 0.175},
			Breakpoints: []float64{LowerBreakpoint, UpperBreakpoint},
		},
		flat("flat-8.75", 0.0875, 448, 9916, 158109),
		flat("flat-9.5", 0.095, 586),
		flat("flat-10", 0.10, 10963, 11326, 11, 246800, 275674),
		flat("flat-15", 0.15, 24217, 136067, 4752, 154673),
		{Name: "rate-35", BuyerIDs: []int64{379}, Kind: RateTimesAmount, Share: 0.35},
		flat("flat-14", 0.14, 22483, 199095),
		flat("flat-13", 0.13, 368),
		flat("flat-18", 0.18, 193694),
		spread("spread-7-20", 7, 0.20, 66, 452, 546, 431),
		spread("spread-6.5-16", 6.5, 0.16, 11323),
		spread("spread-8-10", 8, 0.10, 8672),
		spread("spread-6.5-20", 6.5, 0.20, 1437),
		spread("spread-9-35", 9, 0.35, 153),
		spread("spread-7.34-11", 7.34, 0.11, 55),
		spread("spread-8.5-20", 8.5, 0.20, 8933),
		spread("spread-8-50", 8, 0.50, 196860, 196029),
		spread("spread-10-15", 10, 0.15, 38),
		{Name: "date-ratio-25", BuyerIDs: []int64{2795}, Kind: DateRatio, Share: 0.25},
		{
			Name:     "net-apr-above-10",
			BuyerIDs: []int64{11625},
			Kind:     Conditional,
			When:     &Condition{Factor: 0.86, Op: ">", Threshold: 10},
			Then:     &Rule{Kind: FlatPercent, Share: 0.14},
			Else:     &Rule{Kind: Spread, Base: 10, Share: 1},
		},
		{
			Name:     "gross-apr-below-10.25",
			BuyerIDs: []int64{24505},
			Kind:     Conditional,
			When:     &Condition{Factor: 1 / 1.15, Op: "<", Threshold: 10.25},
			Then:     &Rule{Kind: DiscountSpread, Base: 10.25, Share: 1},
			Else:     &Rule{Kind: FlatPercent, Share: 0.15},
		},
		{
			Name:     "apr-below-15",
			BuyerIDs: []int64{688},
			Kind:     Conditional,
			When:     &Condition{Factor: 1, Op: "<", Threshold: 15},
			Then:     &Rule{Kind: FlatPercent, Share: 0.12},
			Else:     &Rule{Kind: FlatPercent, Share: 0.15},
		},
	}
}

// DefaultTable returns a table built from DefaultRules.
func DefaultTable() *Table {
	t, err := NewTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}
