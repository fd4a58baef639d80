package remote

import (
	"strings"
	"time"
)

// Status is a transaction settlement state. The API only filters by one
// status per cursor stream.
type Status string

const (
	Held    Status = "HELD"
	Settled Status = "SETTLED"
)

// Account is a remote account snapshot.
type Account struct {
	ID           string
	DisplayName  string
	Type         string // TRANSACTIONAL or SAVER
	BalanceCents int64
	CreatedAt    time.Time
}

// Transaction is a remote transaction mapped out of its JSON:API envelope.
type Transaction struct {
	ID                string
	AccountID         string
	Status            Status
	Description       string
	Message           string
	AmountCents       int64
	CategoryID        *string
	ParentCategoryID  *string
	TransferAccountID *string
	IsRoundUp         bool
	RoundUpCents      *int64
	// ParentTransactionID links a round-up credit to its purchase. The API
	// has never been observed to populate it.
	ParentTransactionID *string
	CreatedAt           time.Time
	SettledAt           *time.Time
}

// DisplayDate is the creation timestamp, falling back to settlement.
func (t Transaction) DisplayDate() time.Time {
	if !t.CreatedAt.IsZero() || t.SettledAt == nil {
		return t.CreatedAt
	}
	return *t.SettledAt
}

// Category is a remote spending category.
type Category struct {
	ID       string
	Name     string
	ParentID *string
}

// TransactionPage is one cursor page.
type TransactionPage struct {
	Data []Transaction
	// Next is the absolute URL of the following page, "" on the last page.
	Next string
}

// wire types

type moneyObject struct {
	CurrencyCode     string `json:"currencyCode"`
	Value            string `json:"value"`
	ValueInBaseUnits int64  `json:"valueInBaseUnits"`
}

type relationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type relationship struct {
	Data *relationshipData `json:"data"`
}

func (r relationship) id() *string {
	if r.Data == nil || strings.TrimSpace(r.Data.ID) == "" {
		return nil
	}
	id := r.Data.ID
	return &id
}

type links struct {
	Prev *string `json:"prev"`
	Next *string `json:"next"`
}

type accountResource struct {
	ID         string `json:"id"`
	Attributes struct {
		DisplayName string      `json:"displayName"`
		AccountType string      `json:"accountType"`
		Balance     moneyObject `json:"balance"`
		CreatedAt   time.Time   `json:"createdAt"`
	} `json:"attributes"`
}

type accountsResponse struct {
	Data  []accountResource `json:"data"`
	Links links             `json:"links"`
}

type transactionResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Status      string      `json:"status"`
		RawText     *string     `json:"rawText"`
		Description string      `json:"description"`
		Message     *string     `json:"message"`
		Amount      moneyObject `json:"amount"`
		RoundUp     *struct {
			Amount moneyObject `json:"amount"`
		} `json:"roundUp"`
		SettledAt *time.Time `json:"settledAt"`
		CreatedAt time.Time  `json:"createdAt"`
	} `json:"attributes"`
	Relationships struct {
		Account           relationship `json:"account"`
		TransferAccount   relationship `json:"transferAccount"`
		Category          relationship `json:"category"`
		ParentCategory    relationship `json:"parentCategory"`
		ParentTransaction relationship `json:"parentTransaction"`
	} `json:"relationships"`
}

type transactionsResponse struct {
	Data  []transactionResource `json:"data"`
	Links links                 `json:"links"`
}

type categoryResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
	Relationships struct {
		Parent relationship `json:"parent"`
	} `json:"relationships"`
}

type categoriesResponse struct {
	Data []categoryResource `json:"data"`
}

// roundUpDescription is how the ledger labels the credit that moves a
// purchase's round-up into a saver.
const roundUpDescription = "round up"

func (r accountResource) toAccount() Account {
	return Account{
		ID:           r.ID,
		DisplayName:  r.Attributes.DisplayName,
		Type:         strings.ToUpper(r.Attributes.AccountType),
		BalanceCents: r.Attributes.Balance.ValueInBaseUnits,
		CreatedAt:    r.Attributes.CreatedAt,
	}
}

func (r transactionResource) toTransaction() Transaction {
	a := r.Attributes
	t := Transaction{
		ID:                  r.ID,
		Status:              Status(strings.ToUpper(a.Status)),
		Description:         a.Description,
		AmountCents:         a.Amount.ValueInBaseUnits,
		CategoryID:          r.Relationships.Category.id(),
		ParentCategoryID:    r.Relationships.ParentCategory.id(),
		TransferAccountID:   r.Relationships.TransferAccount.id(),
		ParentTransactionID: r.Relationships.ParentTransaction.id(),
		CreatedAt:           a.CreatedAt,
		SettledAt:           a.SettledAt,
	}
	if acct := r.Relationships.Account.id(); acct != nil {
		t.AccountID = *acct
	}
	if a.Message != nil {
		t.Message = *a.Message
	}
	if a.RoundUp != nil {
		v := a.RoundUp.Amount.ValueInBaseUnits
		t.RoundUpCents = &v
	}
	t.IsRoundUp = strings.EqualFold(strings.TrimSpace(a.Description), roundUpDescription)
	if t.IsRoundUp {
		// A round-up credit must not also read as a transfer, or the
		// purchase it came from is counted twice.
		t.TransferAccountID = nil
	}
	return t
}

func (r categoryResource) toCategory() Category {
	return Category{ID: r.ID, Name: r.Attributes.Name, ParentID: r.Relationships.Parent.id()}
}
