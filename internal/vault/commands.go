package vault

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/trustvault/internal/ledger"
	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/validate"
)

// Inputs are trimmed and validated before any handler touches the document.

type MemberInput struct {
	Name   string `json:"name" validate:"required,max=120"`
	Phone  string `json:"phone" validate:"max=40"`
	Email  string `json:"email" validate:"omitempty,email"`
	Avatar string `json:"avatar"`
}

func (in *MemberInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
}

type DepositInput struct {
	MemberID string          `json:"member_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Method   string          `json:"method"`
	Note     string          `json:"note" validate:"max=500"`
}

type WithdrawInput struct {
	MemberID string          `json:"member_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note" validate:"max=500"`
}

type TodoInput struct {
	Title string     `json:"title" validate:"required,max=200"`
	Kind  string     `json:"kind" validate:"omitempty,oneof=note event minutes"`
	Date  *time.Time `json:"date"`
	Body  string     `json:"body"`
}

type AdminInput struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

type TargetInput struct {
	Target  decimal.Decimal `json:"target"`
	EstDays int             `json:"est_days" validate:"gte=0"`
}

type RulesInput struct {
	DailyMin decimal.Decimal `json:"daily_min"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

type MethodsInput struct {
	Methods []string `json:"methods" validate:"dive,oneof=bank cash card paypal empesa"`
}

type AppearanceInput struct {
	Mode string `json:"mode" validate:"required,oneof=light dark system"`
}

func check(in any) error {
	if msg := validate.Struct(in); msg != "" {
		return invalid("%s", msg)
	}
	return nil
}

func positive(name string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return invalid("%s must be greater than zero", name)
	}
	return nil
}

func nonNegative(name string, d decimal.Decimal) error {
	if d.IsNegative() {
		return invalid("%s must be >= 0", name)
	}
	return nil
}

func newMessage(typ, text, memberID string, level model.Level, now time.Time) model.Message {
	return model.Message{
		ID:       uuid.NewString(),
		Type:     typ,
		Text:     text,
		Date:     now,
		MemberID: memberID,
		Level:    level,
	}
}

func withNote(text, note string) string {
	if note == "" {
		return text
	}
	return text + " - " + note
}

func addMember(doc *model.Document, in MemberInput, now time.Time) (model.Member, error) {
	in.normalize()
	if err := check(in); err != nil {
		return model.Member{}, err
	}
	m := model.Member{
		ID:     uuid.NewString(),
		Name:   in.Name,
		Phone:  in.Phone,
		Email:  in.Email,
		Avatar: in.Avatar,
		Joined: now,
	}
	doc.Members = append(doc.Members, m)
	doc.Messages = append(doc.Messages, newMessage("Member added", m.Name+" was added.", m.ID, model.LevelInfo, now))
	return m, nil
}

func editMember(doc *model.Document, id string, in MemberInput, now time.Time) (model.Member, error) {
	in.normalize()
	if err := check(in); err != nil {
		return model.Member{}, err
	}
	i := doc.FindMember(id)
	if i < 0 {
		return model.Member{}, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	m := &doc.Members[i]
	m.Name = in.Name
	m.Phone = in.Phone
	m.Email = in.Email
	if in.Avatar != "" {
		m.Avatar = in.Avatar
	}
	doc.Messages = append(doc.Messages, newMessage("Member edited", m.Name+" updated.", m.ID, model.LevelInfo, now))
	return *m, nil
}

// deleteMember removes the member and every transaction that references it.
func deleteMember(doc *model.Document, id string, now time.Time) (int, error) {
	i := doc.FindMember(id)
	if i < 0 {
		return 0, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	name := doc.Members[i].Name
	doc.Members = slices.Delete(doc.Members, i, i+1)

	before := len(doc.Transactions)
	doc.Transactions = slices.DeleteFunc(doc.Transactions, func(t model.Transaction) bool {
		return t.MemberID == id
	})
	removed := before - len(doc.Transactions)

	doc.Messages = append(doc.Messages, newMessage("Member deleted",
		fmt.Sprintf("%s was deleted with %d transaction(s).", name, removed), "", model.LevelDanger, now))
	return removed, nil
}

func deposit(doc *model.Document, in DepositInput, now time.Time) (model.Transaction, error) {
	in.MemberID = strings.TrimSpace(in.MemberID)
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	in.Note = strings.TrimSpace(in.Note)
	if err := check(in); err != nil {
		return model.Transaction{}, err
	}
	if err := positive("amount", in.Amount); err != nil {
		return model.Transaction{}, err
	}
	i := doc.FindMember(in.MemberID)
	if i < 0 {
		return model.Transaction{}, fmt.Errorf("member %s: %w", in.MemberID, ErrNotFound)
	}
	methods := doc.Settings.Methods
	if len(methods) == 0 {
		return model.Transaction{}, ErrNoPaymentMethod
	}
	method := in.Method
	if method == "" {
		method = methods[0]
	}
	if !slices.Contains(methods, method) {
		return model.Transaction{}, fmt.Errorf("%q: %w", method, ErrMethodDisabled)
	}

	tx := model.Transaction{
		ID:       uuid.NewString(),
		MemberID: in.MemberID,
		Kind:     model.TxDeposit,
		Amount:   in.Amount,
		Date:     now,
		Method:   method,
		Note:     in.Note,
	}
	doc.Transactions = append(doc.Transactions, tx)

	member := doc.Members[i]
	currency := doc.Settings.Currency
	text := fmt.Sprintf("%s deposited %s via %s", member.Name, ledger.FormatMoney(in.Amount, currency), method)
	doc.Messages = append(doc.Messages, newMessage("Deposit", withNote(text, in.Note), member.ID, model.LevelInfo, now))

	savedToday := ledger.DepositsOn(member.ID, doc.Transactions, now)
	if ledger.BelowMinimum(savedToday, doc.Settings.DailyMin) {
		text := fmt.Sprintf("%s has not reached daily minimum (%s)", member.Name, ledger.FormatMoney(doc.Settings.DailyMin, currency))
		doc.Messages = append(doc.Messages, newMessage("Below minimum", text, member.ID, model.LevelDanger, now))
	}
	return tx, nil
}

func withdraw(doc *model.Document, in WithdrawInput, now time.Time) (model.Transaction, error) {
	in.MemberID = strings.TrimSpace(in.MemberID)
	in.Note = strings.TrimSpace(in.Note)
	if err := check(in); err != nil {
		return model.Transaction{}, err
	}
	if err := positive("amount", in.Amount); err != nil {
		return model.Transaction{}, err
	}
	i := doc.FindMember(in.MemberID)
	if i < 0 {
		return model.Transaction{}, fmt.Errorf("member %s: %w", in.MemberID, ErrNotFound)
	}
	balance := ledger.BalanceOf(in.MemberID, doc.Transactions)
	if in.Amount.GreaterThan(balance) {
		return model.Transaction{}, fmt.Errorf("withdraw %s from balance %s: %w", in.Amount, balance, ErrInsufficientFunds)
	}

	tx := model.Transaction{
		ID:       uuid.NewString(),
		MemberID: in.MemberID,
		Kind:     model.TxWithdraw,
		Amount:   in.Amount,
		Date:     now,
		Method:   model.MethodWithdraw,
		Note:     in.Note,
	}
	doc.Transactions = append(doc.Transactions, tx)

	member := doc.Members[i]
	text := fmt.Sprintf("%s withdrew %s", member.Name, ledger.FormatMoney(in.Amount, doc.Settings.Currency))
	doc.Messages = append(doc.Messages, newMessage("Withdraw", withNote(text, in.Note), member.ID, model.LevelInfo, now))
	return tx, nil
}

func deleteTransaction(doc *model.Document, id string, now time.Time) error {
	i := slices.IndexFunc(doc.Transactions, func(t model.Transaction) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	memberID := doc.Transactions[i].MemberID
	doc.Transactions = slices.Delete(doc.Transactions, i, i+1)
	doc.Messages = append(doc.Messages, newMessage("Transaction deleted", "A transaction was deleted", memberID, model.LevelInfo, now))
	return nil
}

func remind(doc *model.Document, id string, now time.Time) (model.Member, error) {
	i := doc.FindMember(id)
	if i < 0 {
		return model.Member{}, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	m := doc.Members[i]
	doc.Messages = append(doc.Messages, newMessage("Reminder", m.Name+" was reminded to deposit today.", m.ID, model.LevelInfo, now))
	return m, nil
}

func addTodo(doc *model.Document, in TodoInput, now time.Time) (model.Todo, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	in.Body = strings.TrimSpace(in.Body)
	if err := check(in); err != nil {
		return model.Todo{}, err
	}
	kind := model.TodoKind(in.Kind)
	if kind == "" {
		kind = model.TodoNote
	}
	date := now
	if in.Date != nil && !in.Date.IsZero() {
		date = *in.Date
	}
	todo := model.Todo{
		ID:    uuid.NewString(),
		Title: in.Title,
		Kind:  kind,
		Date:  date,
		Body:  in.Body,
	}
	doc.Todos = append(doc.Todos, todo)
	doc.Messages = append(doc.Messages, newMessage("Note", fmt.Sprintf("New %s: %s", kind, todo.Title), "", model.LevelInfo, now))
	return todo, nil
}

func deleteTodo(doc *model.Document, id string, now time.Time) error {
	i := slices.IndexFunc(doc.Todos, func(t model.Todo) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	title := doc.Todos[i].Title
	doc.Todos = slices.Delete(doc.Todos, i, i+1)
	doc.Messages = append(doc.Messages, newMessage("Note deleted", fmt.Sprintf("Deleted: %s", title), "", model.LevelInfo, now))
	return nil
}

func settingsMessage(doc *model.Document, text string, now time.Time) {
	doc.Messages = append(doc.Messages, newMessage("Settings", text, "", model.LevelInfo, now))
}

func updateAdmin(doc *model.Document, in AdminInput, now time.Time) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := check(in); err != nil {
		return err
	}
	doc.Admin = model.Admin{Name: in.Name, Email: in.Email}
	settingsMessage(doc, "Admin profile updated.", now)
	return nil
}

func updateTarget(doc *model.Document, in TargetInput, now time.Time) error {
	if err := check(in); err != nil {
		return err
	}
	if err := nonNegative("target", in.Target); err != nil {
		return err
	}
	doc.Settings.Target = in.Target
	doc.Settings.EstDays = in.EstDays
	settingsMessage(doc, "Target updated.", now)
	return nil
}

func updateRules(doc *model.Document, in RulesInput, now time.Time) error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := check(in); err != nil {
		return err
	}
	if err := nonNegative("daily_min", in.DailyMin); err != nil {
		return err
	}
	if !ledger.ValidCurrency(in.Currency) {
		return invalid("currency %q is not an ISO 4217 code", in.Currency)
	}
	doc.Settings.DailyMin = in.DailyMin
	doc.Settings.Currency = in.Currency
	settingsMessage(doc, "Daily rules updated.", now)
	return nil
}

func updatePaymentMethods(doc *model.Document, in MethodsInput, now time.Time) error {
	methods := make([]string, 0, len(in.Methods))
	for _, m := range in.Methods {
		methods = append(methods, strings.ToLower(strings.TrimSpace(m)))
	}
	in.Methods = methods
	if err := check(in); err != nil {
		return err
	}
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		if seen[m] {
			return invalid("duplicate payment method %q", m)
		}
		seen[m] = true
	}
	doc.Settings.Methods = methods
	settingsMessage(doc, "Payment methods updated.", now)
	return nil
}

func updateAppearance(doc *model.Document, in AppearanceInput, now time.Time) error {
	in.Mode = strings.ToLower(strings.TrimSpace(in.Mode))
	if err := check(in); err != nil {
		return err
	}
	doc.Settings.Appearance = in.Mode
	settingsMessage(doc, "Appearance updated.", now)
	return nil
}

func clearMessages(doc *model.Document, now time.Time) {
	doc.Messages = []model.Message{newMessage("Messages cleared", "All messages were cleared.", "", model.LevelInfo, now)}
}

func rollover(doc *model.Document, day string, now time.Time) {
	doc.Messages = append(doc.Messages, newMessage("Day rollover", "New day "+day, "", model.LevelInfo, now))
}
