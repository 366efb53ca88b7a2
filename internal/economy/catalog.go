package economy

// DefaultProducts returns the built-in product catalog.
func DefaultProducts() []Product {
	return []Product{
		{ID: "rice", Name: "Rice", BasePrice: 40, MinPrice: 20, MaxPrice: 90, Volatility: 2, Category: "food", Size: 2},
		{ID: "seafood", Name: "Seafood", BasePrice: 180, MinPrice: 90, MaxPrice: 400, Volatility: 5, Category: "food", Size: 2},
		{ID: "soap", Name: "Soap", BasePrice: 25, MinPrice: 10, MaxPrice: 60, Volatility: 1, Category: "daily", Size: 1},
		{ID: "cigarettes", Name: "Cigarettes", BasePrice: 300, MinPrice: 150, MaxPrice: 700, Volatility: 4, Category: "daily", Size: 1},
		{ID: "phone", Name: "Smartphone", BasePrice: 2500, MinPrice: 1200, MaxPrice: 5000, Volatility: 6, Category: "electronics", Size: 1},
		{ID: "laptop", Name: "Laptop", BasePrice: 6000, MinPrice: 3000, MaxPrice: 12000, Volatility: 5, Category: "electronics", Size: 2},
		{ID: "perfume", Name: "Perfume", BasePrice: 900, MinPrice: 400, MaxPrice: 2200, Volatility: 7, Category: "luxury", Size: 1},
		{ID: "watch", Name: "Designer Watch", BasePrice: 8000, MinPrice: 3500, MaxPrice: 20000, Volatility: 8, Category: "luxury", Size: 1},
		{ID: "antique", Name: "Antique Vase", BasePrice: 15000, MinPrice: 5000, MaxPrice: 45000, Volatility: 10, Category: "collectibles", Size: 3},
		{ID: "ginseng", Name: "Ginseng", BasePrice: 1200, MinPrice: 500, MaxPrice: 3000, Volatility: 6, Category: "medicine", Size: 1},
	}
}

// DefaultLocations returns the built-in location catalog.
func DefaultLocations() []Location {
	return []Location{
		{ID: "harbor", Name: "Harbor District", PriceFactor: 0.95, SpecialProducts: []string{"seafood", "rice"}},
		{ID: "old_town", Name: "Old Town", PriceFactor: 1.00, SpecialProducts: []string{"antique", "ginseng"}},
		{ID: "tech_park", Name: "Tech Park", PriceFactor: 1.05, SpecialProducts: []string{"phone", "laptop"}},
		{ID: "uptown", Name: "Uptown", PriceFactor: 1.12, SpecialProducts: []string{"perfume", "watch"}},
		{ID: "market_street", Name: "Market Street", PriceFactor: 0.92, SpecialProducts: []string{"soap", "cigarettes"}},
	}
}
