package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

// amount accepts a JSON string ("12.50") or number (12.5). Omitted or null is zero.
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	d, err := decimal.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q", raw)
	}
	a.Decimal = d
	return nil
}

// moneyView renders an amount in the book currency.
type moneyView struct {
	Value   string `json:"value"`
	Minor   int64  `json:"minor"`
	Display string `json:"display"`
}

func (s *Server) money(d decimal.Decimal) moneyView {
	v := moneyView{Value: d.String(), Display: d.String()}
	amt, err := money.NewAmountFromDecimal(s.curr, d)
	if err != nil {
		return v
	}
	if m, ok := amt.MinorUnits(); ok {
		v.Minor = m
	}
	v.Display = amt.RoundToCurr().String()
	return v
}

// Accounts

type postAccountRequest struct {
	Code        string     `json:"code" validate:"required,max=32"`
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Type        string     `json:"type" validate:"required,oneof=asset liability equity revenue expense"`
	Category    string     `json:"category" validate:"max=100"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Active      *bool      `json:"active"`
}

func (req postAccountRequest) input() account.CreateInput {
	return account.CreateInput{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Type:        ledger.AccountType(req.Type),
		Category:    req.Category,
		ParentID:    req.ParentID,
		Inactive:    req.Active != nil && !*req.Active,
	}
}

type patchAccountRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Type        *string `json:"type" validate:"omitempty,oneof=asset liability equity revenue expense"`
	Active      *bool   `json:"active"`
}

func (req patchAccountRequest) patch() account.Patch {
	p := account.Patch{Name: req.Name, Description: req.Description, Category: req.Category, Active: req.Active}
	if req.Type != nil {
		t := ledger.AccountType(*req.Type)
		p.Type = &t
	}
	return p
}

type accountResponse struct {
	ID          uuid.UUID          `json:"id"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Type        ledger.AccountType `json:"type"`
	NormalSide  ledger.Side        `json:"normal_side"`
	Category    string             `json:"category,omitempty"`
	ParentID    *uuid.UUID         `json:"parent_id,omitempty"`
	Level       int                `json:"level"`
	Balance     moneyView          `json:"balance"`
	Active      bool               `json:"active"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (s *Server) accountView(a ledger.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Code:        a.Code,
		Name:        a.Name,
		Description: a.Description,
		Type:        a.Type,
		NormalSide:  a.Type.NormalSide(),
		Category:    a.Category,
		ParentID:    a.ParentID,
		Level:       a.Level,
		Balance:     s.money(a.Balance),
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type accountNodeResponse struct {
	accountResponse
	Rollup   moneyView             `json:"rollup"`
	Children []accountNodeResponse `json:"children"`
}

func (s *Server) nodeView(n account.Node) accountNodeResponse {
	out := accountNodeResponse{
		accountResponse: s.accountView(n.Account),
		Rollup:          s.money(n.Rollup),
		Children:        make([]accountNodeResponse, 0, len(n.Children)),
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, s.nodeView(c))
	}
	return out
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

// Entries

type entryRequest struct {
	Date        string             `json:"date" validate:"required"`
	Reference   string             `json:"reference" validate:"max=100"`
	Description string             `json:"description" validate:"max=2000"`
	Lines       []entryLineRequest `json:"lines" validate:"dive"`
}

type entryLineRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	Description string    `json:"description" validate:"max=2000"`
	Debit       amount    `json:"debit"`
	Credit      amount    `json:"credit"`
}

func (req entryRequest) input(actor string) (journal.EntryInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return journal.EntryInput{}, err
	}
	in := journal.EntryInput{
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		CreatedBy:   actor,
		Lines:       make([]journal.LineInput, 0, len(req.Lines)),
	}
	for _, ln := range req.Lines {
		in.Lines = append(in.Lines, journal.LineInput{
			AccountID:   ln.AccountID,
			Description: ln.Description,
			Debit:       ln.Debit.Decimal,
			Credit:      ln.Credit.Decimal,
		})
	}
	return in, nil
}

type reverseRequest struct {
	// Date of the reversal; today when omitted.
	Date string `json:"date"`
}

type entryLineResponse struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Description string    `json:"description,omitempty"`
	Debit       moneyView `json:"debit"`
	Credit      moneyView `json:"credit"`
}

type entryResponse struct {
	ID          uuid.UUID           `json:"id"`
	Date        string              `json:"date"`
	Reference   string              `json:"reference,omitempty"`
	Description string              `json:"description,omitempty"`
	Status      ledger.EntryStatus  `json:"status"`
	ReversalOf  *uuid.UUID          `json:"reversal_of,omitempty"`
	CreatedBy   string              `json:"created_by,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	PostedBy    string              `json:"posted_by,omitempty"`
	PostedAt    *time.Time          `json:"posted_at,omitempty"`
	Lines       []entryLineResponse `json:"lines"`
}

func (s *Server) entryView(e ledger.JournalEntry) entryResponse {
	out := entryResponse{
		ID:          e.ID,
		Date:        e.Date.Format(time.DateOnly),
		Reference:   e.Reference,
		Description: e.Description,
		Status:      e.Status,
		ReversalOf:  e.ReversalOf,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		PostedBy:    e.PostedBy,
		PostedAt:    e.PostedAt,
		Lines:       make([]entryLineResponse, 0, len(e.Lines)),
	}
	for _, ln := range e.Lines {
		out.Lines = append(out.Lines, entryLineResponse{
			ID:          ln.ID,
			AccountID:   ln.AccountID,
			Description: ln.Description,
			Debit:       s.money(ln.Debit),
			Credit:      s.money(ln.Credit),
		})
	}
	return out
}

type lineErrorResponse struct {
	LineIndex *int              `json:"line_index,omitempty"`
	Kind      journal.ErrorKind `json:"kind"`
	Message   string            `json:"message"`
}

type validationResponse struct {
	Balanced    bool                `json:"balanced"`
	TotalDebit  moneyView           `json:"total_debit"`
	TotalCredit moneyView           `json:"total_credit"`
	Difference  moneyView           `json:"difference"`
	Errors      []lineErrorResponse `json:"errors"`
}

func (s *Server) validationView(res journal.Result) validationResponse {
	out := validationResponse{
		Balanced:    res.Balanced,
		TotalDebit:  s.money(res.TotalDebit),
		TotalCredit: s.money(res.TotalCredit),
		Difference:  s.money(res.Difference),
		Errors:      make([]lineErrorResponse, 0, len(res.Errors)),
	}
	for _, le := range res.Errors {
		out.Errors = append(out.Errors, lineErrorResponse{LineIndex: le.LineIndex, Kind: le.Kind, Message: le.Message})
	}
	return out
}

// Reports

type trialBalanceRow struct {
	AccountID uuid.UUID          `json:"account_id"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Category  string             `json:"category,omitempty"`
	Active    bool               `json:"active"`
	Debit     moneyView          `json:"debit"`
	Credit    moneyView          `json:"credit"`
}

type trialBalanceResponse struct {
	AsOf        *string                          `json:"as_of,omitempty"`
	Version     int64                            `json:"version"`
	GeneratedAt time.Time                        `json:"generated_at"`
	Currency    string                           `json:"currency"`
	Rows        []trialBalanceRow                `json:"rows"`
	TotalDebit  moneyView                        `json:"total_debit"`
	TotalCredit moneyView                        `json:"total_credit"`
	ByType      map[ledger.AccountType]moneyView `json:"by_type"`
}

func (s *Server) trialBalanceView(tb report.TrialBalance) trialBalanceResponse {
	out := trialBalanceResponse{
		Version:     tb.Version,
		GeneratedAt: tb.GeneratedAt,
		Currency:    s.curr.Code(),
		Rows:        make([]trialBalanceRow, 0, len(tb.Rows)),
		TotalDebit:  s.money(tb.TotalDebit),
		TotalCredit: s.money(tb.TotalCredit),
		ByType:      make(map[ledger.AccountType]moneyView, len(tb.ByType)),
	}
	out.AsOf = dateOnly(tb.AsOf)
	for _, r := range tb.Rows {
		out.Rows = append(out.Rows, trialBalanceRow{
			AccountID: r.AccountID,
			Code:      r.Code,
			Name:      r.Name,
			Type:      r.Type,
			Category:  r.Category,
			Active:    r.Active,
			Debit:     s.money(r.Debit),
			Credit:    s.money(r.Credit),
		})
	}
	for t, v := range tb.ByType {
		out.ByType[t] = s.money(v)
	}
	return out
}

type ledgerRowResponse struct {
	Seq            int64     `json:"seq"`
	EntryID        uuid.UUID `json:"entry_id"`
	Date           string    `json:"date"`
	Debit          moneyView `json:"debit"`
	Credit         moneyView `json:"credit"`
	RunningBalance moneyView `json:"running_balance"`
	PostedAt       time.Time `json:"posted_at"`
}

type statementResponse struct {
	Account accountResponse     `json:"account"`
	From    *string             `json:"from,omitempty"`
	To      *string             `json:"to,omitempty"`
	Opening moneyView           `json:"opening"`
	Rows    []ledgerRowResponse `json:"rows"`
	Closing moneyView           `json:"closing"`
}

func dateOnly(t *time.Time) *string {
	if t == nil {
		return nil
	}
	d := t.Format(time.DateOnly)
	return &d
}

func (s *Server) statementView(st report.Statement) statementResponse {
	out := statementResponse{
		Account: s.accountView(st.Account),
		From:    dateOnly(st.From),
		To:      dateOnly(st.To),
		Opening: s.money(st.Opening),
		Rows:    make([]ledgerRowResponse, 0, len(st.Rows)),
		Closing: s.money(st.Closing),
	}
	for _, r := range st.Rows {
		out.Rows = append(out.Rows, ledgerRowResponse{
			Seq:            r.Seq,
			EntryID:        r.JournalEntryID,
			Date:           r.Date.Format(time.DateOnly),
			Debit:          s.money(r.Debit),
			Credit:         s.money(r.Credit),
			RunningBalance: s.money(r.RunningBalance),
			PostedAt:       r.PostedAt,
		})
	}
	return out
}
