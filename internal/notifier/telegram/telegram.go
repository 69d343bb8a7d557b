package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/notifier"
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  DefaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg notifier.Config) error {
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"].(string); ok {
		t.chatID = chatID
	}
	if base, ok := cfg.Params["base_url"].(string); ok && base != "" {
		t.baseURL = base
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}
	if t.baseURL == "" {
		t.baseURL = DefaultBaseURL
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (t *Telegram) Send(ctx context.Context, ev competition.Event) error {
	return t.sendMessage(ctx, formatEvent(ev))
}

func (t *Telegram) SendBatch(ctx context.Context, events []competition.Event) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 *%d Competition Updates*\n\n", len(events)))

	for i, ev := range events {
		sb.WriteString(formatEvent(ev))
		if i < len(events)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return t.sendMessage(ctx, sb.String())
}

func formatEvent(ev competition.Event) string {
	var sb strings.Builder

	switch ev.Type {
	case competition.EventCompetitionStarted:
		sb.WriteString(fmt.Sprintf("🏁 *Competition started*: %s\n", ev.CompetitionID))

	case competition.EventCompetitionFinished:
		sb.WriteString(fmt.Sprintf("🏆 *Competition finished*: %s\n", ev.CompetitionID))
		if ev.Result != nil {
			if ev.Result.Name != "" {
				sb.WriteString(fmt.Sprintf("📛 Name: %s\n", ev.Result.Name))
			}
			if w := ev.Result.Winner; w != nil {
				sb.WriteString(fmt.Sprintf("🥇 Winner: %s\n", displayName(w.ID, w.Name)))
				sb.WriteString(fmt.Sprintf("📊 Score: %.1f\n", w.Score))
				sb.WriteString(fmt.Sprintf("💰 PnL: %+.2f%%\n", w.PnLPercent))
			} else {
				sb.WriteString("🥇 Winner: none\n")
			}
			sb.WriteString(fmt.Sprintf("⏱ Duration: %s\n", ev.Result.Duration.Round(time.Second)))
		}

	case competition.EventCompetitorEliminated:
		sb.WriteString(fmt.Sprintf("💀 *%s eliminated* from %s\n", ev.CompetitorID, ev.CompetitionID))
		if e := ev.Elimination; e != nil {
			sb.WriteString(fmt.Sprintf("📉 PnL: %+.2f%% (threshold -%.1f%%)\n", e.PnLPercent, e.Threshold))
			sb.WriteString(fmt.Sprintf("💰 Equity: $%.2f\n", e.Equity))
		}

	case competition.EventCompetitorTrade:
		sb.WriteString(fmt.Sprintf("💱 *%s* traded in %s\n", ev.CompetitorID, ev.CompetitionID))
		if f := ev.Fill; f != nil {
			sb.WriteString(fmt.Sprintf("%s %d %s %s @ %.0f¢\n", f.Action, f.Quantity, f.Ticker, f.Side, f.Price))
		}

	case competition.EventCompetitorAlert:
		if a := ev.Alert; a != nil {
			sb.WriteString(fmt.Sprintf("⚠️ *%s* [%s] %s in %s\n", a.Rule, strings.ToUpper(a.Severity), ev.CompetitorID, ev.CompetitionID))
			if a.Message != "" {
				sb.WriteString(a.Message + "\n")
			}
			sb.WriteString(fmt.Sprintf("📈 %s = %.2f\n", a.Metric, a.Value))
		}

	case competition.EventLeaderboardUpdated:
		sb.WriteString(fmt.Sprintf("📋 *Leaderboard*: %s\n", ev.CompetitionID))
		for i, entry := range ev.Leaderboard {
			if i == 3 {
				break
			}
			sb.WriteString(fmt.Sprintf("%d. %s  %.1f (%+.2f%%)\n",
				entry.Rank, displayName(entry.CompetitorID, entry.Name), entry.Score, entry.PnLPercent))
		}

	default:
		sb.WriteString(fmt.Sprintf("ℹ️ *%s*: %s\n", ev.Type, ev.CompetitionID))
		if ev.CompetitorID != "" {
			sb.WriteString(fmt.Sprintf("👤 Competitor: %s\n", ev.CompetitorID))
		}
	}

	if !ev.Time.IsZero() {
		sb.WriteString(fmt.Sprintf("⏰ Time: %s", ev.Time.Format("2006-01-02 15:04:05")))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func displayName(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}

var _ notifier.Notifier = (*Telegram)(nil)
