// Package tgchannel stores uploads as photo posts in a public Telegram
// channel. The file URL is scraped from the channel's public post render,
// so the channel must be public; the message id is kept as the deletion
// reference.
package tgchannel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/storage"
)

const defaultPostBase = "https://post.tg.dev"

var cdnURLPattern = regexp.MustCompile(`https://cdn\d+\.telesco\.pe/file/[^\s)'"]+`)

type Adapter struct {
	cfg      config.TelegramStorageConfig
	bot      *tgbotapi.BotAPI
	http     *http.Client
	postBase string
	logger   *slog.Logger
}

func NewAdapter(cfg config.TelegramStorageConfig, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("telegram: channel_id is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Adapter{
		cfg:      cfg,
		bot:      bot,
		http:     &http.Client{Timeout: cfg.Timeout()},
		postBase: defaultPostBase,
		logger:   log.With(slog.String("adapter", "telegram")),
	}, nil
}

func (a *Adapter) Type() storage.Type { return storage.TypeTelegram }

func (a *Adapter) Put(ctx context.Context, localPath, key string) (storage.PutResult, error) {
	photo := tgbotapi.NewPhoto(a.cfg.ChatID, tgbotapi.FilePath(localPath))
	photo.Caption = key
	msg, err := a.bot.Send(photo)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("telegram: send photo: %w", translateBotError(err))
	}

	url, err := a.scrapeFileURL(ctx, msg.MessageID)
	if err != nil {
		// The post is useless without a resolvable URL.
		a.deleteMessage(msg.MessageID)
		return storage.PutResult{}, err
	}

	return storage.PutResult{
		URL: url,
		Ref: strconv.Itoa(msg.MessageID),
	}, nil
}

func (a *Adapter) Delete(_ context.Context, ref string) error {
	id, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("telegram: bad message reference %q", ref)
	}
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(a.cfg.ChatID, id)); err != nil {
		// Deleting an already-gone post is not a failure.
		if strings.Contains(err.Error(), "message to delete not found") {
			return nil
		}
		return fmt.Errorf("telegram: delete message %d: %w", id, err)
	}
	return nil
}

// scrapeFileURL fetches the public render of the posted message and extracts
// the CDN file URL from it.
func (a *Adapter) scrapeFileURL(ctx context.Context, messageID int) (string, error) {
	url := fmt.Sprintf("%s/%s/%d", a.postBase, a.cfg.ChannelID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("telegram: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: fetch post render: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: post render answered %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("telegram: %w", err)
	}

	page := string(body)
	if strings.Contains(page, fmt.Sprintf("Channel with username <b>@%s</b> not found", a.cfg.ChannelID)) {
		return "", fmt.Errorf("telegram: channel %s not found, it must be public", a.cfg.ChannelID)
	}
	match := cdnURLPattern.FindString(page)
	if match == "" {
		return "", fmt.Errorf("telegram: no file URL in post render for message %d", messageID)
	}
	return match, nil
}

func (a *Adapter) deleteMessage(messageID int) {
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(a.cfg.ChatID, messageID)); err != nil {
		a.logger.Warn("orphaned channel post", slog.Int("message_id", messageID), slog.Any("error", err))
	}
}

// translateBotError rewrites the bot API's opaque permission failures into
// actionable messages.
func translateBotError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "chat not found"), strings.Contains(msg, "bot is not a member"):
		return fmt.Errorf("bot must be added to the channel with posting rights: %w", err)
	case strings.Contains(msg, "chat_write_forbidden"):
		return fmt.Errorf("bot has no posting rights in the channel: %w", err)
	default:
		return err
	}
}
