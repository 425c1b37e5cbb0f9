// Package conversation implements the per-user dialogue state machine: it
// routes inbound chat events to stage handlers, talks to the synthesis and
// image backends, and hands completed edit requests to the job collector.
package conversation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"imagebot/internal/domain"
	"imagebot/internal/editjob"
	"imagebot/internal/infra"
	imggen "imagebot/internal/providers/image"
	"imagebot/internal/providers/synthesis"
	"imagebot/internal/session"
	"imagebot/internal/transport"
)

const (
	defaultSynthTimeout  = 60 * time.Second
	defaultMaxConcurrent = 4
)

type Options struct {
	Sessions  session.Store
	Synth     synthesis.Synthesizer
	Images    imggen.Generator
	Messenger transport.Messenger
	Jobs      *editjob.Collector
	Logger    infra.Logger

	// SynthTimeout bounds each backend call so a stuck synthesis cannot
	// wedge a session.
	SynthTimeout time.Duration
	// MaxConcurrent bounds simultaneous backend calls across all chats.
	MaxConcurrent int
	// RandFloat overrides the regeneration temperature sampler. Tests use it.
	RandFloat func() float64
}

// Engine owns every session's stage transitions. Turns within one chat are
// serialized; different chats proceed in parallel.
type Engine struct {
	sessions  session.Store
	synth     synthesis.Synthesizer
	images    imggen.Generator
	messenger transport.Messenger
	jobs      *editjob.Collector
	logger    infra.Logger

	synthTimeout time.Duration
	sem          chan struct{}
	randFloat    func() float64

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewEngine(opts Options) *Engine {
	if opts.SynthTimeout <= 0 {
		opts.SynthTimeout = defaultSynthTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.RandFloat == nil {
		opts.RandFloat = rand.Float64
	}
	return &Engine{
		sessions:     opts.Sessions,
		synth:        opts.Synth,
		images:       opts.Images,
		messenger:    opts.Messenger,
		jobs:         opts.Jobs,
		logger:       opts.Logger,
		synthTimeout: opts.SynthTimeout,
		sem:          make(chan struct{}, opts.MaxConcurrent),
		randFloat:    opts.RandFloat,
	}
}

// HandleEvent processes one inbound event to completion: load session, run
// the stage or command handler, persist the session.
func (e *Engine) HandleEvent(ctx context.Context, ev transport.Event) {
	lock := e.chatLock(ev.ChatID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.sessions.Get(ctx, ev.ChatID)
	if errors.Is(err, domain.ErrNotFound) {
		sess = domain.NewSession(ev.ChatID, ev.Username)
	} else if err != nil {
		e.logger.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("session load failed")
		e.say(ctx, ev.ChatID, msgRetryTurn)
		return
	}
	if ev.Username != "" {
		sess.Username = ev.Username
	}

	if e.route(ctx, sess, ev) {
		if err := e.sessions.Save(ctx, sess); err != nil {
			e.logger.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("session save failed")
		}
	}
}

// route dispatches one event and reports whether the session should be
// persisted afterwards. A quit deletes the session instead.
func (e *Engine) route(ctx context.Context, sess *domain.UserSession, ev transport.Event) bool {
	if ev.Command != "" {
		return e.handleCommand(ctx, sess, ev)
	}

	// An edit job collecting images claims all photo and text traffic for
	// the chat until it enqueues, fails, or is canceled.
	if job, ok := e.jobs.Active(ev.ChatID); ok {
		e.handleJobInput(ctx, sess, job, ev)
		return true
	}

	if len(ev.Photo) > 0 {
		e.say(ctx, ev.ChatID, msgNoActiveJob)
		return true
	}

	e.handleStageInput(ctx, sess, ev.Text)
	return true
}

func (e *Engine) handleCommand(ctx context.Context, sess *domain.UserSession, ev transport.Event) bool {
	switch ev.Command {
	case "/start":
		e.handleStart(ctx, sess)
	case "/quit":
		e.handleQuit(ctx, sess)
		return false
	case "/editcompany":
		e.handleEditCompany(ctx, sess)
	case "/choosetheme":
		e.showCachedThemes(ctx, sess)
	case "/choosedesign":
		e.showCachedDesigns(ctx, sess)
	case "/inpainting":
		e.jobs.Start(sess.ChatID, sess.Username, domain.EditTypeInpaint, "")
		e.sayRemove(ctx, sess.ChatID, msgInpaintStart)
	case "/outpainting":
		e.jobs.Start(sess.ChatID, sess.Username, domain.EditTypeOutpaint, "")
		e.sayOptions(ctx, sess.ChatID, msgOutpaintStart, singleColumn(outpaintDirectionOptions))
	case "/cancel":
		if err := e.jobs.Cancel(sess.ChatID); err != nil {
			e.say(ctx, sess.ChatID, msgNoActiveJob)
			return true
		}
		e.sayRemove(ctx, sess.ChatID, msgJobCanceled)
	default:
		e.say(ctx, sess.ChatID, msgIdleNudge)
	}
	return true
}

func (e *Engine) handleStageInput(ctx context.Context, sess *domain.UserSession, text string) {
	switch sess.Stage {
	case domain.StageIdle:
		e.handleIdle(ctx, sess, text)
	case domain.StageChooseAssistance:
		e.handleAssistanceChoice(ctx, sess, text)
	case domain.StageValidateUser:
		e.handleValidateUser(ctx, sess, text)
	case domain.StageCollectCompany:
		e.handleCollectCompany(ctx, sess, text)
	case domain.StageChooseImageType:
		e.handleChooseImageType(ctx, sess, text)
	case domain.StageCollectPurpose:
		e.handleCollectPurpose(ctx, sess, text)
	case domain.StageSelectTheme:
		e.handleSelectTheme(ctx, sess, text)
	case domain.StageSelectDesign, domain.StageGenerateFromDesign:
		e.handleSelectDesign(ctx, sess, text)
	case domain.StageGenerateFromPrompt:
		e.handleCustomPrompt(ctx, sess, text)
	default:
		sess.Stage = domain.StageIdle
		e.say(ctx, sess.ChatID, msgIdleNudge)
	}
}

// withBackend runs a synthesis or image-generation call on the bounded pool
// with the per-call timeout applied.
func (e *Engine) withBackend(ctx context.Context, fn func(context.Context) error) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	callCtx, cancel := context.WithTimeout(ctx, e.synthTimeout)
	defer cancel()
	return fn(callCtx)
}

// regenTemperature samples the diversification temperature for "propose
// other options" turns.
func (e *Engine) regenTemperature() float64 {
	return 0.1 + e.randFloat()*0.5
}

func (e *Engine) chatLock(chatID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = make(map[int64]*sync.Mutex)
	}
	lock, ok := e.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[chatID] = lock
	}
	return lock
}

func (e *Engine) say(ctx context.Context, chatID int64, text string) {
	if err := e.messenger.SendText(ctx, chatID, text); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send text failed")
	}
}

func (e *Engine) sayOptions(ctx context.Context, chatID int64, text string, options [][]string) {
	if err := e.messenger.SendOptions(ctx, chatID, text, options); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send options failed")
	}
}

func (e *Engine) sayRemove(ctx context.Context, chatID int64, text string) {
	if err := e.messenger.RemoveOptions(ctx, chatID, text); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", chatID).Msg("remove options failed")
	}
}

func (e *Engine) sayPhoto(ctx context.Context, chatID int64, img []byte, caption string) {
	if err := e.messenger.SendPhoto(ctx, chatID, img, caption); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send photo failed")
	}
}
