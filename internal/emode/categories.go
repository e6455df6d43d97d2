package emode

// DefaultCategories is the static category table shipped with the client.
// Category parameters track the deployed protocol configuration.
var DefaultCategories = []Category{
	{
		CategoryID:           "stablecoins",
		Label:                "Stablecoins",
		MaxLTV:               0.93,
		LiquidationThreshold: 0.95,
		LiquidationPenalty:   2.0,
		EligibleAssets:       []string{"USDC", "USDT", "DAI"},
	},
	{
		CategoryID:           "eth-correlated",
		Label:                "ETH correlated",
		MaxLTV:               0.90,
		LiquidationThreshold: 0.93,
		LiquidationPenalty:   4.0,
		EligibleAssets:       []string{"ETH", "WETH", "STETH", "RETH"},
	},
	{
		CategoryID:           "btc-correlated",
		Label:                "BTC correlated",
		MaxLTV:               0.85,
		LiquidationThreshold: 0.90,
		LiquidationPenalty:   5.0,
		EligibleAssets:       []string{"BTC", "WBTC"},
	},
}

// Lookup returns the category with the given ID from the supplied table.
func Lookup(categories []Category, categoryID string) (Category, bool) {
	for _, c := range categories {
		if c.CategoryID == categoryID {
			return c, true
		}
	}
	return Category{}, false
}
