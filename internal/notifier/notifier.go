// Package notifier forwards selected log events to a Telegram channel.
// Forwarding is best-effort: a delivery failure is swallowed, never
// propagated back into the logging path.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// telegramMessage is the Telegram Bot API sendMessage payload.
type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// TelegramHook is a zerolog hook that forwards events at the configured
// levels. Error level is always forwarded.
type TelegramHook struct {
	apiURL string
	chatID string
	levels map[zerolog.Level]bool
	client *http.Client
}

// NewTelegramHook creates a hook for the given bot token and chat. The extra
// levels are forwarded in addition to the always-on error level.
func NewTelegramHook(botToken, chatID string, extraLevels ...zerolog.Level) *TelegramHook {
	levels := map[zerolog.Level]bool{
		zerolog.ErrorLevel: true,
		zerolog.FatalLevel: true,
	}
	for _, level := range extraLevels {
		levels[level] = true
	}
	return &TelegramHook{
		apiURL: fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken),
		chatID: chatID,
		levels: levels,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ParseLevels maps level names to zerolog levels, ignoring unknown names.
func ParseLevels(names []string) []zerolog.Level {
	var levels []zerolog.Level
	for _, name := range names {
		level, err := zerolog.ParseLevel(name)
		if err != nil || level == zerolog.NoLevel {
			continue
		}
		levels = append(levels, level)
	}
	return levels
}

// Run implements zerolog.Hook. Delivery happens off the logging goroutine so
// a slow Telegram API never stalls the caller.
func (h *TelegramHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if !h.levels[level] {
		return
	}
	go h.send(fmt.Sprintf("[%s] %s", level.String(), message))
}

func (h *TelegramHook) send(text string) {
	body, err := json.Marshal(telegramMessage{
		ChatID:                h.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return
	}

	resp, err := h.client.Post(h.apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return
	}
	resp.Body.Close()
}
