// Package telegram adapts the Telegram Bot API to the transport interfaces.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"imagebot/internal/infra"
	"imagebot/internal/transport"
)

// commands the bot registers handlers for; anything else arrives as plain
// text or a photo.
var commands = []string{
	"/start",
	"/quit",
	"/editcompany",
	"/choosetheme",
	"/choosedesign",
	"/inpainting",
	"/outpainting",
	"/cancel",
}

const (
	maxPhotoBytes = 20 << 20
	inboxSize     = 64
)

// Bot runs long polling against Telegram and forwards normalized events to a
// handler.
type Bot struct {
	bot    *tele.Bot
	logger infra.Logger

	mu      sync.Mutex
	inboxes map[int64]chan queuedEvent
}

type queuedEvent struct {
	ctx context.Context
	ev  transport.Event
}

func NewBot(token string, pollTimeout time.Duration, logger infra.Logger) (*Bot, error) {
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Bot{bot: b, logger: logger, inboxes: make(map[int64]chan queuedEvent)}, nil
}

// Listen registers handlers and blocks polling until ctx is canceled. Events
// for one chat run in arrival order on a dedicated worker goroutine; chats
// never block each other.
func (b *Bot) Listen(ctx context.Context, handler transport.Handler) {
	for _, cmd := range commands {
		cmd := cmd
		b.bot.Handle(cmd, func(c tele.Context) error {
			b.dispatch(ctx, handler, b.eventFrom(c, cmd))
			return nil
		})
	}
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		ev := b.eventFrom(c, "")
		ev.Text = c.Text()
		b.dispatch(ctx, handler, ev)
		return nil
	})
	b.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		ev := b.eventFrom(c, "")
		photo := c.Message().Photo
		if photo == nil {
			return nil
		}
		data, err := b.download(&photo.File)
		if err != nil {
			b.logger.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("photo download failed")
			return c.Send("I could not download that photo, please send it again.")
		}
		ev.Photo = data
		ev.Caption = c.Message().Caption
		ev.FileID = photo.FileID
		b.dispatch(ctx, handler, ev)
		return nil
	})

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

// dispatch enqueues the event on the chat's FIFO inbox, creating the inbox
// and its worker on first contact. Enqueueing synchronously from the update
// loop is what preserves per-chat arrival order.
func (b *Bot) dispatch(ctx context.Context, handler transport.Handler, ev transport.Event) {
	b.mu.Lock()
	if b.inboxes == nil {
		b.inboxes = make(map[int64]chan queuedEvent)
	}
	ch, ok := b.inboxes[ev.ChatID]
	if !ok {
		ch = make(chan queuedEvent, inboxSize)
		b.inboxes[ev.ChatID] = ch
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case q := <-ch:
					handler(q.ctx, q.ev)
				}
			}
		}()
	}
	b.mu.Unlock()

	select {
	case ch <- queuedEvent{ctx: ctx, ev: ev}:
	default:
		b.logger.Warn().Int64("chat_id", ev.ChatID).Msg("chat inbox full, dropping update")
	}
}

func (b *Bot) eventFrom(c tele.Context, command string) transport.Event {
	ev := transport.Event{
		ChatID:  c.Chat().ID,
		Command: command,
	}
	if sender := c.Sender(); sender != nil {
		ev.Username = sender.Username
		if ev.Username == "" {
			ev.Username = sender.FirstName
		}
	}
	return ev
}

func (b *Bot) download(file *tele.File) ([]byte, error) {
	rc, err := b.bot.File(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	return io.ReadAll(io.LimitReader(rc, maxPhotoBytes))
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := b.bot.Send(tele.ChatID(chatID), text)
	return err
}

func (b *Bot) SendOptions(ctx context.Context, chatID int64, text string, options [][]string) error {
	markup := &tele.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
	rows := make([][]tele.ReplyButton, 0, len(options))
	for _, row := range options {
		buttons := make([]tele.ReplyButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tele.ReplyButton{Text: label})
		}
		rows = append(rows, buttons)
	}
	markup.ReplyKeyboard = rows
	_, err := b.bot.Send(tele.ChatID(chatID), text, markup)
	return err
}

func (b *Bot) SendPhoto(ctx context.Context, chatID int64, image []byte, caption string) error {
	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(image)),
		Caption: caption,
	}
	_, err := b.bot.Send(tele.ChatID(chatID), photo)
	return err
}

func (b *Bot) RemoveOptions(ctx context.Context, chatID int64, text string) error {
	_, err := b.bot.Send(tele.ChatID(chatID), text, &tele.ReplyMarkup{RemoveKeyboard: true})
	return err
}

var _ transport.Messenger = (*Bot)(nil)
