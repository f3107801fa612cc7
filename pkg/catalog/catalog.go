// Package catalog holds the read-only reference data served next to the
// record store: coins, trades and the seed users that trades point at.
package catalog

import (
	"time"

	"github.com/alim08/cryptobook/pkg/models"
)

// Catalog is immutable after construction. All accessors return copies so
// callers cannot change the shared tables.
type Catalog struct {
	coins  []models.Coin
	trades []models.Trade
	users  []models.User
}

// New builds a catalog from the given tables, preserving their order.
func New(coins []models.Coin, trades []models.Trade, users []models.User) *Catalog {
	return &Catalog{
		coins:  append([]models.Coin(nil), coins...),
		trades: append([]models.Trade(nil), trades...),
		users:  append([]models.User(nil), users...),
	}
}

// Default returns the fixed data set the API ships with.
func Default() *Catalog {
	return New(defaultCoins, defaultTrades, defaultUsers)
}

func (c *Catalog) ListCoins() []*models.Coin {
	out := make([]*models.Coin, len(c.coins))
	for i := range c.coins {
		coin := c.coins[i]
		out[i] = &coin
	}
	return out
}

func (c *Catalog) ListTrades() []*models.Trade {
	out := make([]*models.Trade, len(c.trades))
	for i := range c.trades {
		trade := c.trades[i]
		out[i] = &trade
	}
	return out
}

// FindCoinByID returns nil, false when no coin has the identifier.
func (c *Catalog) FindCoinByID(id string) (*models.Coin, bool) {
	for i := range c.coins {
		if c.coins[i].ID == id {
			coin := c.coins[i]
			return &coin, true
		}
	}
	return nil, false
}

// SeedUsers returns copies of the seed users in identifier order. They are
// loaded into the record store at startup so trades and user(id) agree.
func (c *Catalog) SeedUsers() []*models.User {
	out := make([]*models.User, len(c.users))
	for i := range c.users {
		u := c.users[i]
		out[i] = &u
	}
	return out
}

// FindUserByIDStatic looks up the seed users only; live users are in the
// record store, which holds the seeds under the same identifiers.
func (c *Catalog) FindUserByIDStatic(id string) (*models.User, bool) {
	for i := range c.users {
		if c.users[i].ID == id {
			u := c.users[i]
			return &u, true
		}
	}
	return nil, false
}

var defaultUsers = []models.User{
	{
		ID:       "1",
		Name:     "Kyle Zimmer",
		UserName: "kzimms",
		Avatar:   "https://avatars.cryptobook.dev/kzimms.jpg",
		Bio:      "Creator of Crypto Book",
		SubLevel: models.SubLevelGold,
	},
	{
		ID:       "2",
		Name:     "Justin",
		UserName: "justin",
		Avatar:   "https://avatars.cryptobook.dev/justin.jpg",
		Bio:      "Creator of Master Sales Funnels",
		SubLevel: models.SubLevelGold,
	},
}

var defaultCoins = []models.Coin{
	{
		ID:        "1",
		Name:      "Bitcoin",
		Symbol:    "BTC",
		Slug:      "bitcoin",
		Price:     41780.24208515556,
		Volume24h: 28688620020.972775,
	},
	{
		ID:        "2",
		Name:      "Ethereum",
		Symbol:    "ETH",
		Slug:      "ethereum",
		Price:     2557.0911874208,
		Volume24h: 17437269513.458107,
	},
}

var defaultTrades = []models.Trade{
	{
		ID:     "1",
		UserID: "1",
		CoinID: "2",
		Amount: 1,
		Time:   time.Date(2021, 7, 31, 16, 45, 0, 0, time.UTC),
	},
	{
		ID:     "2",
		UserID: "2",
		CoinID: "1",
		Amount: 0.5,
		Time:   time.Date(2021, 8, 2, 9, 30, 0, 0, time.UTC),
	},
}
