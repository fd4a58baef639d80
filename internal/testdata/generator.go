package testdata

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// SpendingAccountID and SaverAccountID are the accounts Generate creates.
const (
	SpendingAccountID = "acc-spending"
	SaverAccountID    = "acc-saver"
)

var sampleCategories = []Category{
	{ID: "good-life", Name: "Good Life"},
	{ID: "restaurants-and-cafes", Name: "Restaurants & Cafes", ParentID: "good-life"},
	{ID: "takeaway", Name: "Takeaway", ParentID: "good-life"},
	{ID: "home", Name: "Home"},
	{ID: "groceries", Name: "Groceries", ParentID: "home"},
	{ID: "transport", Name: "Transport"},
	{ID: "public-transport", Name: "Public Transport", ParentID: "transport"},
}

var sampleMerchants = []struct {
	desc     string
	category string
}{
	{"Woolworths", "groceries"},
	{"Coles", "groceries"},
	{"Uber Eats", "takeaway"},
	{"Bakery Lane", "restaurants-and-cafes"},
	{"Myki Top Up", "public-transport"},
	{"Transfer to Holiday", ""},
}

// Generate fills l with two accounts, the sample categories and n random
// debits spread over the days before end. The same seed always yields the
// same ledger. Roughly one in five transactions is HELD.
func Generate(l *Ledger, n int, seed int64, end time.Time) {
	rng := rand.New(rand.NewSource(seed))
	l.Accounts = []Account{
		{ID: SpendingAccountID, Name: "Spending", Type: "TRANSACTIONAL", BalanceCents: 250000},
		{ID: SaverAccountID, Name: "Holiday", Type: "SAVER", BalanceCents: 90000},
	}
	l.Categories = append([]Category(nil), sampleCategories...)

	for i := 0; i < n; i++ {
		m := sampleMerchants[rng.Intn(len(sampleMerchants))]
		id, _ := uuid.NewRandomFromReader(rng)
		created := end.Add(-time.Duration(rng.Intn(30*24)) * time.Hour)
		t := Txn{
			ID:          id.String(),
			AccountID:   SpendingAccountID,
			Status:      "SETTLED",
			Description: m.desc,
			AmountCents: -int64(rng.Intn(20000) + 500),
			CategoryID:  m.category,
			CreatedAt:   created,
		}
		if m.category != "" {
			for _, c := range sampleCategories {
				if c.ID == m.category {
					t.ParentCategory = c.ParentID
				}
			}
		} else {
			t.TransferAccount = SaverAccountID
		}
		if rng.Intn(10) < 2 {
			t.Status = "HELD"
		} else {
			settled := created.Add(24 * time.Hour)
			t.SettledAt = &settled
		}
		l.Transactions = append(l.Transactions, t)
	}
}
