// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/storage"
)

// maxListedSegments caps the /ev reply.
const maxListedSegments = 10

// ChartLookup builds the chart of a bet for the /ev command.
type ChartLookup func(ctx context.Context, betID string) (*chart.Chart, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	lookup         ChartLookup
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SetChartLookup enables the /ev command.
func (c *Client) SetChartLookup(fn ChartLookup) {
	c.lookup = fn
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "ev":
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		reply := tgbotapi.NewMessage(msg.Chat.ID, evReply(lookupCtx, c.lookup, msg.CommandArguments()))
		reply.ParseMode = "MarkdownV2"
		if _, err := c.bot.Send(reply); err != nil {
			logger.Warn("Failed to answer /ev: %v", err)
		}
	}
}

// evReply renders the MarkdownV2 answer to /ev <bet_id>.
func evReply(ctx context.Context, lookup ChartLookup, args string) string {
	if lookup == nil {
		return escapeMarkdownV2("EV lookups are not enabled.")
	}
	betID := strings.TrimSpace(args)
	if betID == "" || strings.ContainsAny(betID, " \t\n") {
		return escapeMarkdownV2("Usage: /ev <bet_id>")
	}

	ch, err := lookup(ctx, betID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("Bet `%s` not found", escapeMarkdownV2(betID))
	}
	if err != nil {
		logger.Warn("EV lookup for bet %s failed: %v", betID, err)
		return escapeMarkdownV2("Lookup failed, try again later.")
	}
	if ch.Empty {
		return fmt.Sprintf("No EV records for bet `%s`", escapeMarkdownV2(betID))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *EV segments for* `%s`\n", escapeMarkdownV2(betID))
	fmt.Fprintf(&b, "%s\n\n", escapeMarkdownV2(fmt.Sprintf("%d samples, mean %.2f%%, max %.2f%%",
		ch.Stats.Count, ch.Stats.MeanEV, ch.Stats.MaxEV)))

	if len(ch.Segments) == 0 {
		b.WriteString("No sustained segments\\.")
		return b.String()
	}
	for i, seg := range ch.Segments {
		if i == maxListedSegments {
			fmt.Fprintf(&b, "\\.\\.\\. and %d more\n", len(ch.Segments)-maxListedSegments)
			break
		}
		start := time.UnixMilli(seg.StartTime).UTC()
		end := time.UnixMilli(seg.EndTime).UTC()
		fmt.Fprintf(&b, "%d\\. *%s* for %s \\(%s → %s UTC\\)\n",
			i+1,
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", seg.Level)),
			escapeMarkdownV2(end.Sub(start).String()),
			start.Format(time.TimeOnly),
			end.Format(time.TimeOnly),
		)
	}
	return b.String()
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendSegments sends a notification with newly detected segments.
func (c *Client) SendSegments(alerts []models.SegmentAlert) error {
	return c.sendMarkdownV2(formatSegments(alerts))
}

// formatSegments formats segment alerts into a Telegram MarkdownV2 message.
func formatSegments(alerts []models.SegmentAlert) string {
	message := "📈 *Sustained EV Segments*\n\n"

	if len(alerts) > 0 {
		dateStr := escapeMarkdownV2(alerts[0].DetectedAt.UTC().Format(time.DateTime))
		message += fmt.Sprintf("📅 Detected: %s UTC\n\n", dateStr)
	}

	for i, alert := range alerts {
		title := escapeMarkdownV2(alert.Home + " vs " + alert.Away)
		if alert.EventURL != nil && *alert.EventURL != "" {
			title = fmt.Sprintf("[%s](%s)", title, *alert.EventURL)
		}
		message += fmt.Sprintf("%d\\. %s\n", i+1, title)
		message += fmt.Sprintf("   🎯 %s @ %s \\(`%s`\\)\n",
			escapeMarkdownV2(alert.Market),
			escapeMarkdownV2(alert.BookmakerName),
			escapeMarkdownV2(alert.BetID),
		)
		message += fmt.Sprintf("   *%s* for %s \\(%s → %s\\)\n\n",
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", alert.Level)),
			escapeMarkdownV2(alert.Duration().String()),
			alert.StartTime.UTC().Format(time.TimeOnly),
			alert.EndTime.UTC().Format(time.TimeOnly),
		)
	}

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
