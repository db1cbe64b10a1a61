package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/trustvault/internal/model"
)

// legacyVault is the unversioned document written by the browser build,
// with camelCase keys and ISO date strings.
type legacyVault struct {
	Admin struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"admin"`
	Settings struct {
		Target   decimal.Decimal `json:"target"`
		EstTime  decimal.Decimal `json:"estTime"`
		DailyMin decimal.Decimal `json:"dailyMin"`
		Currency string          `json:"currency"`
		Methods  []string        `json:"methods"`
	} `json:"settings"`
	Members []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
		Email  string `json:"email"`
		Avatar string `json:"avatar"`
		Joined string `json:"joined"`
	} `json:"members"`
	Transactions []struct {
		ID       string          `json:"id"`
		MemberID string          `json:"memberId"`
		Type     string          `json:"type"`
		Amount   decimal.Decimal `json:"amount"`
		Date     string          `json:"date"`
		Method   string          `json:"method"`
		Note     string          `json:"note"`
	} `json:"transactions"`
	Messages []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Text     string `json:"text"`
		Date     string `json:"date"`
		MemberID string `json:"memberId"`
		Level    string `json:"level"`
	} `json:"messages"`
	Todos []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
		Date  string `json:"date"`
		Body  string `json:"body"`
	} `json:"todos"`
}

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseLegacyTime(s string) time.Time {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func migrateLegacyVault(raw string) (*model.Document, error) {
	var old legacyVault
	if err := json.Unmarshal([]byte(raw), &old); err != nil {
		return nil, fmt.Errorf("%w: legacy vault: %v", ErrCorruptDocument, err)
	}

	doc := model.NewDocument()
	if old.Admin.Name != "" {
		doc.Admin.Name = old.Admin.Name
	}
	doc.Admin.Email = old.Admin.Email
	doc.Settings.Target = old.Settings.Target
	doc.Settings.EstDays = int(old.Settings.EstTime.IntPart())
	doc.Settings.DailyMin = old.Settings.DailyMin
	if old.Settings.Currency != "" {
		doc.Settings.Currency = old.Settings.Currency
	}
	if old.Settings.Methods != nil {
		doc.Settings.Methods = old.Settings.Methods
	}

	for _, m := range old.Members {
		doc.Members = append(doc.Members, model.Member{
			ID: m.ID, Name: m.Name, Phone: m.Phone, Email: m.Email, Avatar: m.Avatar,
			Joined: parseLegacyTime(m.Joined),
		})
	}
	for _, t := range old.Transactions {
		kind := model.TxDeposit
		if t.Type == string(model.TxWithdraw) {
			kind = model.TxWithdraw
		}
		doc.Transactions = append(doc.Transactions, model.Transaction{
			ID: t.ID, MemberID: t.MemberID, Kind: kind, Amount: t.Amount,
			Date: parseLegacyTime(t.Date), Method: t.Method, Note: t.Note,
		})
	}
	for _, m := range old.Messages {
		level := model.LevelInfo
		if m.Level == string(model.LevelDanger) {
			level = model.LevelDanger
		}
		doc.Messages = append(doc.Messages, model.Message{
			ID: m.ID, Type: m.Type, Text: m.Text, Date: parseLegacyTime(m.Date),
			MemberID: m.MemberID, Level: level,
		})
	}
	for _, t := range old.Todos {
		doc.Todos = append(doc.Todos, model.Todo{
			ID: t.ID, Title: t.Title, Kind: model.TodoKind(t.Type),
			Date: parseLegacyTime(t.Date), Body: t.Body,
		})
	}
	return &doc, nil
}
