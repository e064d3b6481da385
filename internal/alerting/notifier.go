package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries the context of a governance guard breach.
type Notification struct {
	RunID          string
	EvaluatedAt    time.Time
	PolicyName     string
	Evaluated      int
	Failed         int
	TierCounts     map[string]int
	GrossValue     decimal.Decimal
	ImpactedValue  decimal.Decimal
	ImpactDeltaPct decimal.Decimal
	ThresholdPct   decimal.Decimal
	RestrictedPct  decimal.Decimal
	MaxRestricted  decimal.Decimal
	Reasons        []string
	Channels       []string
	AdditionalMsg  string
}

// Notifier delivers notifications to a channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("policy", note.PolicyName).
		Strs("reasons", note.Reasons).
		Msg("governance alert sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Merchant Governance Alert]\n")
	builder.WriteString(fmt.Sprintf("Policy: %s\n", note.PolicyName))
	builder.WriteString(fmt.Sprintf("Evaluated: %s UTC\n", note.EvaluatedAt.UTC().Format(time.RFC3339)))
	if note.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	builder.WriteString(fmt.Sprintf("Merchants: %d (failed %d)\n", note.Evaluated, note.Failed))
	builder.WriteString(fmt.Sprintf("GMV: %s -> %s\n", note.GrossValue.StringFixed(2), note.ImpactedValue.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Impact: %s%% (threshold ±%s%%)\n", note.ImpactDeltaPct.StringFixed(2), note.ThresholdPct.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Restricted: %s%% (max %s%%)\n", note.RestrictedPct.StringFixed(2), note.MaxRestricted.StringFixed(2)))
	if len(note.TierCounts) > 0 {
		tiers := make([]string, 0, len(note.TierCounts))
		for tier := range note.TierCounts {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		parts := make([]string, 0, len(tiers))
		for _, tier := range tiers {
			parts = append(parts, fmt.Sprintf("%s=%d", tier, note.TierCounts[tier]))
		}
		builder.WriteString(fmt.Sprintf("Tiers: %s\n", strings.Join(parts, " ")))
	}
	for _, reason := range note.Reasons {
		builder.WriteString(fmt.Sprintf("- %s\n", reason))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
