// Package testdata serves an in-process fake of the remote ledger API for tests.
package testdata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Account is a fixture account.
type Account struct {
	ID           string
	Name         string
	Type         string
	BalanceCents int64
}

// Txn is a fixture transaction.
type Txn struct {
	ID              string
	AccountID       string
	Status          string
	Description     string
	AmountCents     int64
	CategoryID      string
	ParentCategory  string
	TransferAccount string
	RoundUpCents    int64
	CreatedAt       time.Time
	SettledAt       *time.Time
}

// Category is a fixture category.
type Category struct {
	ID       string
	Name     string
	ParentID string
}

// Ledger is a fake ledger. Set the fixture fields before the first request;
// use Fail and Recover to change behaviour mid-test.
type Ledger struct {
	Token        string
	Accounts     []Account
	Transactions []Txn
	Categories   []Category

	mu       sync.Mutex
	failOn   map[string]int
	requests []string
}

// NewLedger returns a fake that accepts token.
func NewLedger(token string) *Ledger {
	return &Ledger{Token: token, failOn: map[string]int{}}
}

// Fail makes every request under the path prefix (e.g. "/categories") return code.
func (l *Ledger) Fail(prefix string, code int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOn[prefix] = code
}

// Recover clears all injected failures.
func (l *Ledger) Recover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOn = map[string]int{}
}

// Start serves the fake until the test ends. The returned URL is the API root.
func (l *Ledger) Start(t interface{ Cleanup(func()) }) string {
	srv := httptest.NewServer(http.HandlerFunc(l.serve))
	t.Cleanup(srv.Close)
	return srv.URL + "/api/v1"
}

// Requests returns the request URIs seen so far.
func (l *Ledger) Requests() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.requests...)
}

// CountRequests counts requests whose URI contains substr.
func (l *Ledger) CountRequests(substr string) int {
	n := 0
	for _, r := range l.Requests() {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func (l *Ledger) serve(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, r.URL.RequestURI())

	if r.Header.Get("Authorization") != "Bearer "+l.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": []map[string]string{{"status": "401", "title": "Not Authorized"}}})
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	for prefix, code := range l.failOn {
		if strings.HasPrefix(path, prefix) {
			writeJSON(w, code, map[string]any{"errors": []map[string]string{{"status": strconv.Itoa(code)}}})
			return
		}
	}
	switch path {
	case "/accounts":
		l.serveAccounts(w)
	case "/transactions":
		l.serveTransactions(w, r)
	case "/categories":
		l.serveCategories(w)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{})
	}
}

func (l *Ledger) serveAccounts(w http.ResponseWriter) {
	data := make([]map[string]any, 0, len(l.Accounts))
	for _, a := range l.Accounts {
		data = append(data, map[string]any{
			"type": "accounts",
			"id":   a.ID,
			"attributes": map[string]any{
				"displayName": a.Name,
				"accountType": a.Type,
				"balance":     moneyJSON(a.BalanceCents),
				"createdAt":   "2024-01-01T09:00:00+11:00",
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "links": map[string]any{"prev": nil, "next": nil}})
}

func (l *Ledger) serveTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("filter[status]")
	size, _ := strconv.Atoi(q.Get("page[size]"))
	if size <= 0 {
		size = 100
	}
	after, _ := strconv.Atoi(q.Get("page[after]"))
	var since time.Time
	if s := q.Get("filter[since]"); s != "" {
		since, _ = time.Parse(time.RFC3339, s)
	}

	var matched []Txn
	for _, t := range l.Transactions {
		if status != "" && t.Status != status {
			continue
		}
		if !since.IsZero() && t.CreatedAt.Before(since) {
			continue
		}
		matched = append(matched, t)
	}
	end := after + size
	if end > len(matched) {
		end = len(matched)
	}
	if after > len(matched) {
		after = len(matched)
	}
	page := matched[after:end]

	data := make([]map[string]any, 0, len(page))
	for _, t := range page {
		data = append(data, txnJSON(t))
	}
	var next any
	if end < len(matched) {
		nq := url.Values{}
		for k, v := range q {
			nq[k] = v
		}
		nq.Set("page[after]", strconv.Itoa(end))
		next = "http://" + r.Host + r.URL.Path + "?" + nq.Encode()
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "links": map[string]any{"prev": nil, "next": next}})
}

func (l *Ledger) serveCategories(w http.ResponseWriter) {
	data := make([]map[string]any, 0, len(l.Categories))
	for _, c := range l.Categories {
		data = append(data, map[string]any{
			"type":          "categories",
			"id":            c.ID,
			"attributes":    map[string]any{"name": c.Name},
			"relationships": map[string]any{"parent": rel("categories", c.ParentID)},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func txnJSON(t Txn) map[string]any {
	attrs := map[string]any{
		"status":      t.Status,
		"rawText":     nil,
		"description": t.Description,
		"message":     nil,
		"amount":      moneyJSON(t.AmountCents),
		"roundUp":     nil,
		"createdAt":   t.CreatedAt.Format(time.RFC3339),
		"settledAt":   nil,
	}
	if t.RoundUpCents != 0 {
		attrs["roundUp"] = map[string]any{"amount": moneyJSON(t.RoundUpCents), "boostPortion": nil}
	}
	if t.SettledAt != nil {
		attrs["settledAt"] = t.SettledAt.Format(time.RFC3339)
	}
	return map[string]any{
		"type":       "transactions",
		"id":         t.ID,
		"attributes": attrs,
		"relationships": map[string]any{
			"account":         rel("accounts", t.AccountID),
			"transferAccount": rel("accounts", t.TransferAccount),
			"category":        rel("categories", t.CategoryID),
			"parentCategory":  rel("categories", t.ParentCategory),
		},
	}
}

func rel(kind, id string) map[string]any {
	if id == "" {
		return map[string]any{"data": nil}
	}
	return map[string]any{"data": map[string]any{"type": kind, "id": id}}
}

func moneyJSON(cents int64) map[string]any {
	neg := cents < 0
	abs := cents
	if neg {
		abs = -cents
	}
	v := strconv.FormatInt(abs/100, 10) + "." + leftPad(strconv.FormatInt(abs%100, 10))
	if neg {
		v = "-" + v
	}
	return map[string]any{"currencyCode": "AUD", "value": v, "valueInBaseUnits": cents}
}

func leftPad(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
