package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/testdata"
)

func newFake(t *testing.T) (*testdata.Ledger, *Client) {
	t.Helper()
	l := testdata.NewLedger("tok")
	base := l.Start(t)
	return l, NewClient(base, 5*time.Second)
}

func TestAccountsMapsBalanceAndType(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, c := newFake(t)
	l.Accounts = []testdata.Account{
		{ID: "acc-1", Name: "Spending", Type: "TRANSACTIONAL", BalanceCents: 12345},
		{ID: "acc-2", Name: "Holiday", Type: "saver", BalanceCents: -50},
	}

	got, err := c.Accounts(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Spending", got[0].DisplayName)
	require.Equal(t, int64(12345), got[0].BalanceCents)
	require.Equal(t, "SAVER", got[1].Type)
	require.Equal(t, int64(-50), got[1].BalanceCents)
}

func TestTransactionsURL(t *testing.T) {
	t.Parallel()

	c := NewClient("https://example.test/api/v1/", 0)
	since := time.Date(2025, 2, 1, 10, 0, 0, 0, time.FixedZone("AEDT", 11*3600))

	u, err := url.Parse(c.TransactionsURL(&since, 0, Held))
	require.NoError(t, err)
	require.Equal(t, "/api/v1/transactions", u.Path)
	q := u.Query()
	require.Equal(t, "100", q.Get("page[size]"))
	require.Equal(t, "HELD", q.Get("filter[status]"))
	require.Equal(t, "2025-01-31T23:00:00Z", q.Get("filter[since]"))

	u, err = url.Parse(c.TransactionsURL(nil, 25, Settled))
	require.NoError(t, err)
	require.Empty(t, u.Query().Get("filter[since]"))
	require.Equal(t, "25", u.Query().Get("page[size]"))
}

func TestTransactionsPageFollowsCursor(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, c := newFake(t)
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.Transactions = append(l.Transactions, testdata.Txn{
			ID: "tx-" + string(rune('a'+i)), AccountID: "acc-1", Status: "SETTLED",
			Description: "Coffee", AmountCents: -450, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	next := c.TransactionsURL(nil, 2, Settled)
	var ids []string
	pages := 0
	for next != "" {
		page, err := c.TransactionsPage(ctx, "tok", next)
		require.NoError(t, err)
		for _, tx := range page.Data {
			ids = append(ids, tx.ID)
			require.Equal(t, Settled, tx.Status)
			require.Equal(t, "acc-1", tx.AccountID)
		}
		next = page.Next
		pages++
	}
	require.Equal(t, 3, pages)
	require.Equal(t, []string{"tx-a", "tx-b", "tx-c", "tx-d", "tx-e"}, ids)
}

func TestRoundUpCreditDropsTransferLink(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, c := newFake(t)
	created := time.Date(2025, 2, 9, 22, 30, 0, 0, time.FixedZone("AEDT", 11*3600))
	l.Transactions = []testdata.Txn{
		{ID: "purchase", AccountID: "acc-1", Status: "HELD", Description: "Bakery", AmountCents: -420, RoundUpCents: -80, CategoryID: "restaurants-and-cafes", ParentCategory: "good-life", CreatedAt: created},
		{ID: "roundup", AccountID: "saver-1", Status: "HELD", Description: "Round Up", AmountCents: 80, TransferAccount: "acc-1", CreatedAt: created},
		{ID: "transfer", AccountID: "acc-1", Status: "HELD", Description: "Transfer to Holiday", AmountCents: -5000, TransferAccount: "saver-1", CreatedAt: created},
	}

	page, err := c.TransactionsPage(ctx, "tok", c.TransactionsURL(nil, 10, Held))
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	byID := map[string]Transaction{}
	for _, tx := range page.Data {
		byID[tx.ID] = tx
	}

	p := byID["purchase"]
	require.NotNil(t, p.RoundUpCents)
	require.Equal(t, int64(-80), *p.RoundUpCents)
	require.Equal(t, "restaurants-and-cafes", *p.CategoryID)
	require.Equal(t, "good-life", *p.ParentCategoryID)
	require.Nil(t, p.TransferAccountID)
	require.Equal(t, "2025-02-09", p.DisplayDate().Format("2006-01-02"))

	r := byID["roundup"]
	require.True(t, r.IsRoundUp)
	require.Nil(t, r.TransferAccountID)
	require.Nil(t, r.ParentTransactionID)

	tr := byID["transfer"]
	require.False(t, tr.IsRoundUp)
	require.Equal(t, "saver-1", *tr.TransferAccountID)
}

func TestCategories(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, c := newFake(t)
	l.Categories = []testdata.Category{
		{ID: "good-life", Name: "Good Life"},
		{ID: "restaurants-and-cafes", Name: "Restaurants & Cafes", ParentID: "good-life"},
	}
	got, err := c.Categories(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Nil(t, got[0].ParentID)
	require.Equal(t, "good-life", *got[1].ParentID)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, c := newFake(t)

	_, err := c.Accounts(ctx, "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)

	l.Fail("/categories", http.StatusTooManyRequests)
	_, err = c.Categories(ctx, "tok")
	require.ErrorIs(t, err, ErrRateLimited)

	l.Fail("/transactions", http.StatusBadGateway)
	_, err = c.TransactionsPage(ctx, "tok", c.TransactionsURL(nil, 10, Held))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, c := newFake(t)

	ok, err := c.Validate(ctx, "tok")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Validate(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	l.Fail("/accounts", http.StatusInternalServerError)
	ok, err = c.Validate(ctx, "tok")
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, 3, l.CountRequests("page%5Bsize%5D=1"))
}
