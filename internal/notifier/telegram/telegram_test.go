package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/notifier"
	"github.com/newthinker/arena/internal/paper"
)

func TestTelegram_Name(t *testing.T) {
	tg := New("token", "chatid")
	if tg.Name() != "telegram" {
		t.Errorf("expected 'telegram', got '%s'", tg.Name())
	}
}

func TestTelegram_Init(t *testing.T) {
	tg := &Telegram{}

	cfg := notifier.Config{
		Params: map[string]any{
			"bot_token": "test-token",
			"chat_id":   "test-chat",
		},
	}

	err := tg.Init(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tg.botToken != "test-token" {
		t.Errorf("expected bot_token 'test-token', got '%s'", tg.botToken)
	}
	if tg.chatID != "test-chat" {
		t.Errorf("expected chat_id 'test-chat', got '%s'", tg.chatID)
	}
	if tg.baseURL != DefaultBaseURL {
		t.Errorf("expected default base url, got '%s'", tg.baseURL)
	}
}

func TestTelegram_Init_MissingToken(t *testing.T) {
	tg := &Telegram{}

	err := tg.Init(notifier.Config{Params: map[string]any{"chat_id": "test-chat"}})
	if err == nil {
		t.Error("expected error for missing bot_token")
	}
}

func TestTelegram_Init_MissingChatID(t *testing.T) {
	tg := &Telegram{}

	err := tg.Init(notifier.Config{Params: map[string]any{"bot_token": "test-token"}})
	if err == nil {
		t.Error("expected error for missing chat_id")
	}
}

func TestTelegram_Send(t *testing.T) {
	var receivedPayload map[string]any
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	tg := &Telegram{}
	err := tg.Init(notifier.Config{Params: map[string]any{
		"bot_token": "test-token",
		"chat_id":   "test-chat",
		"base_url":  server.URL,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := competition.Event{
		Type:          competition.EventCompetitionStarted,
		CompetitionID: "weekly",
		Time:          time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	if err := tg.Send(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedPath != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path %s", receivedPath)
	}
	if receivedPayload["chat_id"] != "test-chat" {
		t.Errorf("expected chat_id test-chat, got %v", receivedPayload["chat_id"])
	}
	text, _ := receivedPayload["text"].(string)
	if !strings.Contains(text, "weekly") {
		t.Errorf("message should contain competition id, got %q", text)
	}
	if !strings.Contains(text, "2024-01-15 10:30:00") {
		t.Errorf("message should contain time, got %q", text)
	}
}

func TestTelegram_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer server.Close()

	tg := New("token", "chat")
	tg.baseURL = server.URL

	err := tg.Send(context.Background(), competition.Event{Type: competition.EventCompetitionStarted})
	if err == nil {
		t.Fatal("expected error for API failure")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should mention status, got %v", err)
	}
}

func TestFormatEvent_Finished(t *testing.T) {
	ev := competition.Event{
		Type:          competition.EventCompetitionFinished,
		CompetitionID: "c1",
		Result: &competition.Result{
			Name:     "weekly",
			Duration: 90 * time.Second,
			Winner: &competition.CompetitorState{
				ID:         "alpha",
				Name:       "Alpha Bot",
				Score:      72.5,
				PnLPercent: 12.34,
			},
		},
	}

	formatted := formatEvent(ev)

	for _, want := range []string{"weekly", "Alpha Bot (alpha)", "72.5", "+12.34%", "1m30s"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted message should contain %q, got %q", want, formatted)
		}
	}
}

func TestFormatEvent_FinishedWithoutWinner(t *testing.T) {
	ev := competition.Event{
		Type:   competition.EventCompetitionFinished,
		Result: &competition.Result{},
	}

	if formatted := formatEvent(ev); !strings.Contains(formatted, "Winner: none") {
		t.Errorf("expected no winner line, got %q", formatted)
	}
}

func TestFormatEvent_Eliminated(t *testing.T) {
	ev := competition.Event{
		Type:          competition.EventCompetitorEliminated,
		CompetitionID: "c1",
		CompetitorID:  "beta",
		Elimination:   &competition.Elimination{Equity: 7500, PnLPercent: -25, Threshold: 20},
	}

	formatted := formatEvent(ev)

	if !strings.Contains(formatted, "💀") {
		t.Error("elimination should have 💀 emoji")
	}
	if !strings.Contains(formatted, "beta") || !strings.Contains(formatted, "-25.00%") {
		t.Errorf("unexpected elimination message %q", formatted)
	}
}

func TestFormatEvent_Trade(t *testing.T) {
	ev := competition.Event{
		Type:         competition.EventCompetitorTrade,
		CompetitorID: "alpha",
		Fill: &paper.Fill{
			Ticker:   "PRES-24",
			Side:     core.SideYes,
			Action:   paper.ActionBuy,
			Quantity: 7,
			Price:    42,
		},
	}

	formatted := formatEvent(ev)

	if !strings.Contains(formatted, "buy 7 PRES-24 yes @ 42¢") {
		t.Errorf("unexpected trade message %q", formatted)
	}
}

func TestFormatEvent_LeaderboardTopThree(t *testing.T) {
	ev := competition.Event{
		Type: competition.EventLeaderboardUpdated,
		Leaderboard: []competition.LeaderboardEntry{
			{Rank: 1, CompetitorID: "a", Score: 80},
			{Rank: 2, CompetitorID: "b", Score: 70},
			{Rank: 3, CompetitorID: "c", Score: 60},
			{Rank: 4, CompetitorID: "d", Score: 50},
		},
	}

	formatted := formatEvent(ev)

	if !strings.Contains(formatted, "3. c") {
		t.Errorf("expected third place, got %q", formatted)
	}
	if strings.Contains(formatted, "4. d") {
		t.Errorf("only the top three should be listed, got %q", formatted)
	}
}

func TestFormatEvent_Alert(t *testing.T) {
	ev := competition.Event{
		Type:          competition.EventCompetitorAlert,
		CompetitionID: "c1",
		CompetitorID:  "beta",
		Alert: &competition.Alert{
			Rule:     "deep_loss",
			Severity: "warning",
			Message:  "losing more than 10%",
			Metric:   "pnl_percent",
			Value:    -12.5,
		},
	}

	formatted := formatEvent(ev)

	for _, want := range []string{"deep_loss", "[WARNING]", "beta", "losing more than 10%", "pnl_percent = -12.50"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("alert message missing %q: %q", want, formatted)
		}
	}
}

func TestFormatEvent_Default(t *testing.T) {
	ev := competition.Event{
		Type:          competition.EventCompetitionPaused,
		CompetitionID: "c1",
	}

	if formatted := formatEvent(ev); !strings.Contains(formatted, "competition_paused") {
		t.Errorf("expected event type in message, got %q", formatted)
	}
}

func TestTelegram_SendBatch_Empty(t *testing.T) {
	tg := New("token", "chat")

	err := tg.SendBatch(context.Background(), nil)
	if err != nil {
		t.Errorf("empty batch should not return error: %v", err)
	}
}

func TestTelegram_SendBatch(t *testing.T) {
	var text string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		text, _ = payload["text"].(string)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tg := New("token", "chat")
	tg.baseURL = server.URL

	events := []competition.Event{
		{Type: competition.EventCompetitionStarted, CompetitionID: "c1"},
		{Type: competition.EventCompetitionPaused, CompetitionID: "c1"},
	}
	if err := tg.SendBatch(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(text, "2 Competition Updates") {
		t.Errorf("expected batch header, got %q", text)
	}
	if strings.Count(text, "---") != 1 {
		t.Errorf("expected one separator, got %q", text)
	}
}
