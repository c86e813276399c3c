package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/helapay/paystream/src/ledger"
	"github.com/helapay/paystream/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DeployOrgRequest creates a fresh, isolated ledger for one organization.
type DeployOrgRequest struct {
	Owner string `json:"owner" binding:"required"`
}

type DepositRequest struct {
	From   string `json:"from" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type CreateStreamRequest struct {
	Caller        string `json:"caller" binding:"required"`
	Employee      string `json:"employee" binding:"required"`
	RatePerSecond string `json:"rate_per_second" binding:"required"`
	TaxPercent    uint64 `json:"tax_percent"`
}

type StreamOpRequest struct {
	Caller string `json:"caller" binding:"required"`
}

type BonusRequest struct {
	Caller   string `json:"caller" binding:"required"`
	Employee string `json:"employee" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Reason   string `json:"reason"`
}

type TransferOwnershipRequest struct {
	Caller   string `json:"caller" binding:"required"`
	NewOwner string `json:"new_owner" binding:"required"`
}

func (s *Server) deployOrg(c *gin.Context) {
	var req DeployOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	l, err := s.factory.Deploy(model.Address(req.Owner))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"org_id":  l.Id(),
		"owner":   req.Owner,
	})
}

func (s *Server) listOrgs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "orgs": s.factory.Ids()})
}

func (s *Server) getTreasury(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"owner":       l.Owner(),
		"treasury":    l.TreasuryBalance().Dec(),
		"tax_vault":   l.TaxVaultBalance().Dec(),
		"bonus_total": l.BonusTotal().Dec(),
	})
}

func (s *Server) getEmployees(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "employees": l.Employees()})
}

// defaultHistoryLimit caps event and transfer reads unless ?limit says
// otherwise.
const defaultHistoryLimit = 500

// getEvents serves event history; ?since filters by timestamp, ?employee
// narrows to one address. The dashboard polls this to rebuild withdrawal
// history: the redis buffer answers first, then the durable trail, then the
// ledger's in-memory journal.
func (s *Server) getEvents(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)), 10, 64)
	employee := model.Address(c.Query("employee"))

	if employee == model.ZeroAddress && s.cache != nil {
		events, err := s.cache.Recent(c.Request.Context(), l.Id(), since, limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
			return
		}
		s.logger.Warn("event cache unavailable, falling back", zap.Error(err))
	}
	if s.history != nil {
		var events []model.Event
		var err error
		if employee != model.ZeroAddress {
			events, err = s.history.EventsForEmployee(c.Request.Context(), l.Id(), employee, int(limit))
		} else {
			events, err = s.history.EventsForLedger(c.Request.Context(), l.Id(), int(limit))
		}
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "events": filterEvents(events, since, model.ZeroAddress)})
			return
		}
		s.logger.Warn("audit trail unavailable, falling back", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": filterEvents(l.Events(), since, employee)})
}

func filterEvents(events []model.Event, since int64, employee model.Address) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp < since {
			continue
		}
		if employee != model.ZeroAddress && ev.Employee != employee {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// getTransfers lists a recipient's settled transfers off the payout rail,
// newest first. Only available when the durable trail is configured.
func (s *Server) getTransfers(c *gin.Context) {
	if s.history == nil {
		RecordError("no_history")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false, "error": "transfer history requires the postgres payout rail"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	transfers, err := s.history.TransfersForRecipient(
		c.Request.Context(), model.Address(c.Param("recipient")), limit)
	if err != nil {
		RecordError("history_unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transfers": transfers})
}

func (s *Server) getAccrued(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	accrued, err := l.Accrued(model.Address(c.Param("employee")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "accrued": accrued.Dec()})
}

func (s *Server) getStream(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	employee := model.Address(c.Param("employee"))
	info, err := l.Stream(employee)
	if err != nil {
		fail(c, err)
		return
	}
	accrued, err := l.Accrued(employee)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stream": info, "accrued": accrued.Dec()})
}

func (s *Server) deposit(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := l.Deposit(c.Request.Context(), model.Address(req.From), amount); err != nil {
		fail(c, err)
		return
	}
	RecordDeposit()
	c.JSON(http.StatusOK, gin.H{"success": true, "treasury": l.TreasuryBalance().Dec()})
}

func (s *Server) createStream(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req CreateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rate, err := model.ParseAmount(req.RatePerSecond)
	if err != nil {
		badRequest(c, err)
		return
	}
	err = l.CreateStream(c.Request.Context(), model.Address(req.Caller), model.Address(req.Employee), rate, req.TaxPercent)
	if err != nil {
		fail(c, err)
		return
	}
	RecordStreamOp("create")
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func (s *Server) pauseStream(c *gin.Context) {
	s.streamOp(c, "pause", func(l *ledger.Ledger, caller, employee model.Address) error {
		return l.PauseStream(c.Request.Context(), caller, employee)
	})
}

func (s *Server) resumeStream(c *gin.Context) {
	s.streamOp(c, "resume", func(l *ledger.Ledger, caller, employee model.Address) error {
		return l.ResumeStream(c.Request.Context(), caller, employee)
	})
}

func (s *Server) cancelStream(c *gin.Context) {
	s.streamOp(c, "cancel", func(l *ledger.Ledger, caller, employee model.Address) error {
		return l.CancelStream(c.Request.Context(), caller, employee)
	})
}

func (s *Server) streamOp(c *gin.Context, op string, call func(l *ledger.Ledger, caller, employee model.Address) error) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req StreamOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := call(l, model.Address(req.Caller), model.Address(c.Param("employee"))); err != nil {
		fail(c, err)
		return
	}
	RecordStreamOp(op)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) withdraw(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req StreamOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	net, tax, err := l.Withdraw(c.Request.Context(), model.Address(req.Caller))
	if err != nil {
		fail(c, err)
		return
	}
	RecordWithdrawal()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"net":     net.Dec(),
		"tax":     tax.Dec(),
	})
}

func (s *Server) sendBonus(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	err = l.SendBonus(c.Request.Context(), model.Address(req.Caller), model.Address(req.Employee), amount, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	RecordBonus()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) withdrawTax(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req StreamOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := l.WithdrawTax(c.Request.Context(), model.Address(req.Caller))
	if err != nil {
		fail(c, err)
		return
	}
	RecordTaxWithdrawal()
	c.JSON(http.StatusOK, gin.H{"success": true, "amount": amount.Dec()})
}

func (s *Server) transferOwnership(c *gin.Context) {
	l, ok := s.ledgerFor(c)
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := l.TransferOwnership(c.Request.Context(), model.Address(req.Caller), model.Address(req.NewOwner))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "owner": req.NewOwner})
}

func (s *Server) ledgerFor(c *gin.Context) (*ledger.Ledger, bool) {
	l, ok := s.factory.Get(c.Param("org"))
	if !ok {
		RecordError("unknown_org")
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown organization"})
		return nil, false
	}
	return l, true
}

func badRequest(c *gin.Context, err error) {
	RecordError("bad_request")
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

// fail maps the ledger's error taxonomy onto status codes. Every rejection
// is total; the body carries the discoverable reason.
func fail(c *gin.Context, err error) {
	RecordError(errorReason(err))
	c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNoStream):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrZeroAddress),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, ledger.ErrZeroRate),
		errors.Is(err, ledger.ErrTaxOutOfRange),
		errors.Is(err, ledger.ErrAmountOverflow):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrStreamExists),
		errors.Is(err, ledger.ErrStreamActive),
		errors.Is(err, ledger.ErrStreamNotActive),
		errors.Is(err, ledger.ErrNothingAccrued),
		errors.Is(err, ledger.ErrInsufficientTreasury),
		errors.Is(err, ledger.ErrTaxVaultEmpty),
		errors.Is(err, ledger.ErrReentrantCall):
		return http.StatusConflict
	default:
		// transfer or sink failure surfaced from the payout rail
		return http.StatusBadGateway
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ledger.ErrNoStream):
		return "no_stream"
	case errors.Is(err, ledger.ErrNothingAccrued):
		return "nothing_accrued"
	case errors.Is(err, ledger.ErrInsufficientTreasury):
		return "insufficient_treasury"
	case errors.Is(err, ledger.ErrTaxVaultEmpty):
		return "tax_vault_empty"
	case errors.Is(err, ledger.ErrAmountOverflow):
		return "overflow"
	case errors.Is(err, ledger.ErrReentrantCall):
		return "reentrant"
	default:
		return "rejected"
	}
}
