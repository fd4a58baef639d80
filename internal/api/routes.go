// Package api serves a read-only JSON view of the local ledger plus a sync trigger.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/service"
)

// SyncFunc runs one incremental sync.
type SyncFunc func(ctx context.Context) (service.SyncResult, error)

// Server holds the handlers' dependencies.
type Server struct {
	Balance      *service.BalanceService
	Trackers     *service.TrackerService
	Transactions *repository.TransactionRepo
	Savers       *repository.SaverRepo
	Sync         SyncFunc
	Location     *time.Location
	AllowOrigins []string
	Now          func() time.Time

	mu      sync.Mutex
	syncing bool
}

func (s *Server) Register() *gin.Engine {
	origins := s.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	api := r.Group("/api/v1")

	api.GET("/balance", s.balance)
	api.GET("/trackers", s.trackers)
	api.GET("/trackers/:id/periods", s.trackerPeriod)
	api.GET("/transactions", s.transactions)
	api.GET("/transactions/:id", s.transaction)
	api.GET("/savers", s.savers)
	api.POST("/sync", s.sync)

	return r
}

func (s *Server) today() time.Time {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return dates.Of(now.In(loc))
}

func (s *Server) balance(c *gin.Context) {
	sum, err := s.Balance.Summary(c.Request.Context(), s.today())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"availableCents": sum.AvailableCents,
		"reservedCents":  sum.ReservedCents,
		"spendableCents": sum.SpendableCents,
	})
}

func (s *Server) trackers(c *gin.Context) {
	list, err := s.Trackers.Overview(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]trackerJSON, 0, len(list))
	for _, p := range list {
		out = append(out, toTrackerJSON(p))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) trackerPeriod(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracker id"})
		return
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
	}
	p, err := s.Trackers.Progress(c.Request.Context(), id, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTrackerJSON(p))
}

func (s *Server) transactions(c *gin.Context) {
	f := repository.TransactionFilters{
		Status:     c.Query("status"),
		AccountID:  c.Query("account"),
		CategoryID: c.Query("category"),
	}
	bounds := []struct {
		key string
		dst *time.Time
	}{{"from", &f.From}, {"to", &f.To}}
	for _, b := range bounds {
		raw := c.Query(b.key)
		if raw == "" {
			continue
		}
		d, err := dates.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + b.key + " date"})
			return
		}
		*b.dst = d
	}
	list, err := s.Transactions.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]transactionJSON, 0, len(list))
	for _, t := range list {
		out = append(out, toTransactionJSON(t))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) transaction(c *gin.Context) {
	t, err := s.Transactions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, toTransactionJSON(*t))
}

func (s *Server) savers(c *gin.Context) {
	list, err := s.Savers.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]saverJSON, 0, len(list))
	for _, sv := range list {
		j := saverJSON{
			AccountID:            sv.AccountID,
			Name:                 sv.DisplayName,
			BalanceCents:         sv.BalanceCents,
			GoalCents:            sv.GoalCents,
			MonthlyTransferCents: sv.MonthlyTransferCents,
		}
		if sv.TargetDate != nil {
			d := dates.Format(*sv.TargetDate)
			j.TargetDate = &d
		}
		out = append(out, j)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) sync(c *gin.Context) {
	if s.Sync == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sync is not configured"})
		return
	}
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a sync is already running"})
		return
	}
	s.syncing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	res, err := s.Sync(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":        res.RunID,
		"accounts":     res.Accounts,
		"transactions": res.Transactions,
		"categories":   res.Categories,
		"savers":       res.Savers,
		"watermark":    res.Watermark.UTC().Format(time.RFC3339),
	})
}

type trackerJSON struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	BudgetCents int64    `json:"budgetCents"`
	Frequency   string   `json:"frequency"`
	Categories  []string `json:"categories"`
	PeriodStart string   `json:"periodStart"`
	PeriodEnd   string   `json:"periodEnd"`
	SpentCents  int64    `json:"spentCents"`
	Percent     float64  `json:"percent"`
	OverBudget  bool     `json:"overBudget"`
}

func toTrackerJSON(p service.TrackerProgress) trackerJSON {
	cats := p.Tracker.CategoryIDs
	if cats == nil {
		cats = []string{}
	}
	return trackerJSON{
		ID:          p.Tracker.ID,
		Name:        p.Tracker.Name,
		BudgetCents: p.Tracker.BudgetCents,
		Frequency:   p.Tracker.ResetFrequency,
		Categories:  cats,
		PeriodStart: dates.Format(p.Period.Start),
		PeriodEnd:   dates.Format(p.Period.End),
		SpentCents:  p.SpentCents,
		Percent:     p.Percent,
		OverBudget:  p.OverBudget,
	}
}

type transactionJSON struct {
	ID              string  `json:"id"`
	AccountID       string  `json:"accountId"`
	Status          string  `json:"status"`
	Description     string  `json:"description"`
	Message         string  `json:"message,omitempty"`
	AmountCents     int64   `json:"amountCents"`
	Category        *string `json:"category"`
	ParentCategory  *string `json:"parentCategory"`
	TransferAccount *string `json:"transferAccount,omitempty"`
	RoundUpCents    *int64  `json:"roundUpCents,omitempty"`
	DisplayDate     string  `json:"displayDate"`
	CreatedAt       string  `json:"createdAt"`
}

func toTransactionJSON(t repository.Transaction) transactionJSON {
	return transactionJSON{
		ID:              t.ID,
		AccountID:       t.AccountID,
		Status:          t.Status,
		Description:     t.Description,
		Message:         t.Message,
		AmountCents:     t.AmountCents,
		Category:        t.CategoryID,
		ParentCategory:  t.ParentCategoryID,
		TransferAccount: t.TransferAccountID,
		RoundUpCents:    t.RoundUpCents,
		DisplayDate:     dates.Format(t.DisplayDate),
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type saverJSON struct {
	AccountID            string  `json:"accountId"`
	Name                 string  `json:"name"`
	BalanceCents         int64   `json:"balanceCents"`
	GoalCents            *int64  `json:"goalCents"`
	TargetDate           *string `json:"targetDate"`
	MonthlyTransferCents *int64  `json:"monthlyTransferCents"`
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrTrackerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNoPeriod):
		status = http.StatusBadRequest
	default:
		var pe *service.PhaseError
		switch service.Classify(err) {
		case service.FailureUnauthorized:
			status = http.StatusUnauthorized
		case service.FailureRateLimited:
			status = http.StatusTooManyRequests
		case service.FailureStoreUnavailable:
			status = http.StatusServiceUnavailable
		default:
			if errors.As(err, &pe) {
				status = http.StatusBadGateway
			}
		}
	}
	body := gin.H{"error": err.Error()}
	if hint := service.Classify(err).Hint(); hint != "" && status != http.StatusNotFound && status != http.StatusBadRequest {
		body["hint"] = hint
	}
	c.JSON(status, body)
}
