package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"imagebot/internal/domain"
	imggen "imagebot/internal/providers/image"
	"imagebot/internal/providers/synthesis"
	"imagebot/internal/transport"
)

func (e *Engine) handleStart(ctx context.Context, sess *domain.UserSession) {
	// A fresh cycle; cached themes/designs/prompt survive so the
	// /choosetheme and /choosedesign shortcuts keep working.
	sess.Assistance = ""
	sess.ResumeStage = ""
	sess.Stage = domain.StageChooseAssistance
	e.sayOptions(ctx, sess.ChatID, fmt.Sprintf(msgGreeting, sess.Username), assistanceKeyboard())
}

func (e *Engine) handleQuit(ctx context.Context, sess *domain.UserSession) {
	if _, ok := e.jobs.Active(sess.ChatID); ok {
		_ = e.jobs.Cancel(sess.ChatID)
	}
	sess.Clear()
	if err := e.sessions.Delete(ctx, sess.ChatID); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", sess.ChatID).Msg("session delete failed")
	}
	e.sayRemove(ctx, sess.ChatID, msgQuit)
}

func (e *Engine) handleEditCompany(ctx context.Context, sess *domain.UserSession) {
	if sess.Company == "" {
		sess.Stage = domain.StageIdle
		e.say(ctx, sess.ChatID, msgNoCompany)
		return
	}
	if sess.Stage != domain.StageCollectCompany {
		sess.ResumeStage = sess.Stage
	}
	sess.Stage = domain.StageCollectCompany
	e.sayOptions(ctx, sess.ChatID, msgAskCompany, singleColumn(companyOptions))
}

func (e *Engine) handleIdle(ctx context.Context, sess *domain.UserSession, text string) {
	switch {
	case text == labelGenerateAgain:
		if sess.ImageInfo.ImagePrompt == "" {
			e.say(ctx, sess.ChatID, msgNoPrompt)
			return
		}
		e.generateAndDeliver(ctx, sess, sess.ImageInfo.ImagePrompt)
	case strings.Contains(text, "Step-by-step"), strings.Contains(text, "Custom Prompt"), strings.Contains(text, labelEditExisting):
		// Done-menu buttons re-enter the assistance choice.
		e.handleAssistanceChoice(ctx, sess, text)
	default:
		e.say(ctx, sess.ChatID, msgIdleNudge)
	}
}

func (e *Engine) handleAssistanceChoice(ctx context.Context, sess *domain.UserSession, text string) {
	switch {
	case strings.Contains(text, "Step-by-step"):
		sess.Assistance = domain.AssistStepByStep
		if sess.Company == "" {
			sess.Stage = domain.StageCollectCompany
			e.sayOptions(ctx, sess.ChatID, msgAskCompany, singleColumn(companyOptions))
			return
		}
		sess.Stage = domain.StageValidateUser
		e.sayOptions(ctx, sess.ChatID, fmt.Sprintf(msgValidateCompany, sess.Company), validateKeyboard())
	case strings.Contains(text, "Custom Prompt"):
		sess.Assistance = domain.AssistCustomPrompt
		sess.ImageInfo.ImageType = "image"
		sess.ImageInfo.ImagePrompt = ""
		sess.Stage = domain.StageGenerateFromPrompt
		e.sayRemove(ctx, sess.ChatID, msgAskOwnPrompt)
	case strings.Contains(text, labelEditExisting):
		sess.Assistance = domain.AssistEditExisting
		sess.Stage = domain.StageIdle
		e.sayRemove(ctx, sess.ChatID, msgEditInstructions)
	default:
		e.sayOptions(ctx, sess.ChatID, fmt.Sprintf(msgGreeting, sess.Username), assistanceKeyboard())
	}
}

func (e *Engine) handleValidateUser(ctx context.Context, sess *domain.UserSession, text string) {
	switch text {
	case labelContinue:
		sess.Stage = domain.StageChooseImageType
		e.sayOptions(ctx, sess.ChatID, msgAskImageType, singleColumn(imageTypeOptions))
	case labelEditCompany:
		sess.ResumeStage = domain.StageChooseImageType
		sess.Stage = domain.StageCollectCompany
		e.sayOptions(ctx, sess.ChatID, msgAskCompany, singleColumn(companyOptions))
	default:
		e.sayOptions(ctx, sess.ChatID, fmt.Sprintf(msgValidateCompany, sess.Company), validateKeyboard())
	}
}

func (e *Engine) handleCollectCompany(ctx context.Context, sess *domain.UserSession, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		e.sayOptions(ctx, sess.ChatID, msgAskCompany, singleColumn(companyOptions))
		return
	}
	if text == labelOthers {
		e.sayRemove(ctx, sess.ChatID, msgAskCompanyOthers)
		return
	}
	sess.Company = text

	if sess.ResumeStage != "" {
		resumed := sess.ResumeStage
		sess.ResumeStage = ""
		sess.Stage = resumed
		e.say(ctx, sess.ChatID, fmt.Sprintf(msgCompanyUpdated, sess.Company))
		e.promptForStage(ctx, sess)
		return
	}

	sess.Stage = domain.StageChooseImageType
	e.say(ctx, sess.ChatID, fmt.Sprintf(msgCompanyUpdated, sess.Company))
	e.sayOptions(ctx, sess.ChatID, msgAskImageType, singleColumn(imageTypeOptions))
}

// promptForStage re-issues the entry prompt of the session's current stage,
// used when a company-edit diversion returns.
func (e *Engine) promptForStage(ctx context.Context, sess *domain.UserSession) {
	switch sess.Stage {
	case domain.StageChooseImageType:
		e.sayOptions(ctx, sess.ChatID, msgAskImageType, singleColumn(imageTypeOptions))
	case domain.StageCollectPurpose:
		e.sayRemove(ctx, sess.ChatID, fmt.Sprintf(msgAskPurpose, sess.ImageInfo.ImageType))
	case domain.StageSelectTheme:
		e.showCachedThemes(ctx, sess)
	case domain.StageSelectDesign, domain.StageGenerateFromDesign:
		e.showCachedDesigns(ctx, sess)
	case domain.StageGenerateFromPrompt:
		e.sayRemove(ctx, sess.ChatID, msgAskOwnPrompt)
	default:
		e.say(ctx, sess.ChatID, msgIdleNudge)
	}
}

func (e *Engine) handleChooseImageType(ctx context.Context, sess *domain.UserSession, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		e.sayOptions(ctx, sess.ChatID, msgAskImageType, singleColumn(imageTypeOptions))
		return
	}
	sess.ImageInfo.ImageType = strings.ToLower(text)
	sess.Stage = domain.StageCollectPurpose
	e.sayRemove(ctx, sess.ChatID, fmt.Sprintf(msgAskPurpose, sess.ImageInfo.ImageType))
}

func (e *Engine) handleCollectPurpose(ctx context.Context, sess *domain.UserSession, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		e.sayRemove(ctx, sess.ChatID, fmt.Sprintf(msgAskPurpose, sess.ImageInfo.ImageType))
		return
	}
	sess.ImageInfo.ImagePurpose = text
	if !e.proposeThemes(ctx, sess, 0) {
		return
	}
	sess.Stage = domain.StageSelectTheme
}

func (e *Engine) handleSelectTheme(ctx context.Context, sess *domain.UserSession, text string) {
	switch {
	case text == labelRegenThemes:
		if sess.ImageInfo.ImagePurpose == "" {
			sess.Stage = domain.StageIdle
			e.say(ctx, sess.ChatID, msgNoThemes)
			return
		}
		e.proposeThemes(ctx, sess, e.regenTemperature())
	case text == labelOwnTheme:
		e.sayRemove(ctx, sess.ChatID, msgAskOwnTheme)
	default:
		theme := strings.TrimSpace(text)
		if theme == "" {
			e.say(ctx, sess.ChatID, msgNoThemes)
			return
		}
		// Only an exact option label selects from the cache; anything else
		// is a user-authored theme taken as-is.
		if idx, ok := selectedOption(text, themeOptionPrefix, len(sess.ImageInfo.ProposedThemes)); ok {
			theme = sess.ImageInfo.ProposedThemes[idx]
		}
		sess.ImageInfo.SelectedTheme = theme
		if !e.proposeDesigns(ctx, sess, 0) {
			return
		}
		sess.Stage = domain.StageSelectDesign
	}
}

func (e *Engine) handleSelectDesign(ctx context.Context, sess *domain.UserSession, text string) {
	switch {
	case text == labelRegenDesigns:
		if sess.ImageInfo.SelectedTheme == "" {
			sess.Stage = domain.StageIdle
			e.say(ctx, sess.ChatID, msgNoDesigns)
			return
		}
		e.proposeDesigns(ctx, sess, e.regenTemperature())
	case text == labelOwnDesign:
		sess.ImageInfo.ImageType = "image"
		sess.Stage = domain.StageGenerateFromDesign
		e.sayRemove(ctx, sess.ChatID, msgAskOwnDesign)
	default:
		if idx, ok := selectedOption(text, designOptionPrefix, len(sess.ImageInfo.ProposedDesigns)); ok {
			design := sess.ImageInfo.ProposedDesigns[idx]
			sess.ImageInfo.SelectedDesign = &design
			e.finishGeneration(ctx, sess, design)
			return
		}

		// Free text: the custom three-part design format.
		parts := strings.Split(text, "/")
		if len(parts) != 3 {
			e.sayRemove(ctx, sess.ChatID, msgBadOwnDesign)
			return
		}
		design := domain.DesignRecord{
			Description: strings.TrimSpace(parts[0]),
			Foreground:  strings.TrimSpace(parts[1]),
			Style:       strings.TrimSpace(parts[2]),
		}
		sess.ImageInfo.SelectedDesign = &design
		e.finishGeneration(ctx, sess, design)
	}
}

func (e *Engine) handleCustomPrompt(ctx context.Context, sess *domain.UserSession, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		e.sayRemove(ctx, sess.ChatID, msgAskOwnPrompt)
		return
	}
	sess.ImageInfo.ImagePrompt = text
	e.generateAndDeliver(ctx, sess, text)
}

// proposeThemes synthesizes and shows a fresh theme list, replacing any
// cached one. Returns false when the turn was aborted.
func (e *Engine) proposeThemes(ctx context.Context, sess *domain.UserSession, temperature float64) bool {
	e.sayRemove(ctx, sess.ChatID, msgLoadingThemes)

	var themes []string
	err := e.withBackend(ctx, func(ctx context.Context) error {
		var err error
		themes, err = e.synth.ProposeThemes(ctx, synthesis.ThemeRequest{
			Company:     sess.Company,
			ImageType:   sess.ImageInfo.ImageType,
			Purpose:     sess.ImageInfo.ImagePurpose,
			Temperature: temperature,
		})
		return err
	})
	if err != nil {
		e.abortTurn(ctx, sess, "theme synthesis", err)
		return false
	}

	sess.ImageInfo.ProposedThemes = themes
	text, rows := themesMessage(themes)
	e.sayOptions(ctx, sess.ChatID, text, rows)
	return true
}

func (e *Engine) proposeDesigns(ctx context.Context, sess *domain.UserSession, temperature float64) bool {
	e.sayRemove(ctx, sess.ChatID, msgLoadingDesigns)

	var designs []domain.DesignRecord
	err := e.withBackend(ctx, func(ctx context.Context) error {
		var err error
		designs, err = e.synth.ProposeDesigns(ctx, synthesis.DesignRequest{
			Company:     sess.Company,
			ImageType:   sess.ImageInfo.ImageType,
			Purpose:     sess.ImageInfo.ImagePurpose,
			Theme:       sess.ImageInfo.SelectedTheme,
			Temperature: temperature,
		})
		return err
	})
	if err != nil {
		e.abortTurn(ctx, sess, "design synthesis", err)
		return false
	}

	sess.ImageInfo.ProposedDesigns = designs
	text, rows := designsMessage(designs)
	e.sayOptions(ctx, sess.ChatID, text, rows)
	return true
}

// finishGeneration composes the final prompt from the selected design and
// delivers the generated image.
func (e *Engine) finishGeneration(ctx context.Context, sess *domain.UserSession, design domain.DesignRecord) {
	e.sayRemove(ctx, sess.ChatID, fmt.Sprintf(msgGenerating, sess.ImageInfo.ImageType))

	var prompt string
	err := e.withBackend(ctx, func(ctx context.Context) error {
		var err error
		prompt, err = e.synth.ComposePrompt(ctx, synthesis.PromptRequest{
			Company:   sess.Company,
			ImageType: sess.ImageInfo.ImageType,
			Purpose:   sess.ImageInfo.ImagePurpose,
			Theme:     sess.ImageInfo.SelectedTheme,
			Design:    design,
		})
		return err
	})
	if err != nil {
		e.abortTurn(ctx, sess, "prompt composition", err)
		return
	}

	sess.ImageInfo.ImagePrompt = prompt
	e.generateAndDeliver(ctx, sess, prompt)
}

// generateAndDeliver turns a finished prompt into an image, sends it, and
// returns the session to idle with the prompt cached for "Generate Image
// Again".
func (e *Engine) generateAndDeliver(ctx context.Context, sess *domain.UserSession, prompt string) {
	if sess.ImageInfo.ImageType == "" {
		sess.ImageInfo.ImageType = "image"
	}
	e.sayRemove(ctx, sess.ChatID, fmt.Sprintf(msgGenerating, sess.ImageInfo.ImageType))

	var img []byte
	err := e.withBackend(ctx, func(ctx context.Context) error {
		var err error
		img, err = e.images.Generate(ctx, imggen.GenerateRequest{Prompt: prompt})
		return err
	})
	if err != nil {
		e.abortTurn(ctx, sess, "image generation", err)
		return
	}

	e.say(ctx, sess.ChatID, fmt.Sprintf(msgPromptUsed, prompt))
	e.sayPhoto(ctx, sess.ChatID, img, "")
	e.sayOptions(ctx, sess.ChatID, doneMessage(sess.ImageInfo.ImageType), doneKeyboard())

	sess.Assistance = ""
	sess.ResumeStage = ""
	sess.Stage = domain.StageIdle
}

// abortTurn handles a failed backend call: the stage stays put and the user
// is asked to retry.
func (e *Engine) abortTurn(ctx context.Context, sess *domain.UserSession, step string, err error) {
	evt := e.logger.Error()
	if errors.Is(err, domain.ErrSynthesisParse) {
		evt = e.logger.Warn()
	}
	evt.Err(err).
		Int64("chat_id", sess.ChatID).
		Str("stage", string(sess.Stage)).
		Msg(step + " failed, turn aborted")
	e.say(ctx, sess.ChatID, msgRetryTurn)
}

func (e *Engine) showCachedThemes(ctx context.Context, sess *domain.UserSession) {
	if len(sess.ImageInfo.ProposedThemes) == 0 {
		sess.Stage = domain.StageIdle
		e.say(ctx, sess.ChatID, msgNoThemes)
		return
	}
	sess.Stage = domain.StageSelectTheme
	text, rows := themesMessage(sess.ImageInfo.ProposedThemes)
	e.sayOptions(ctx, sess.ChatID, text, rows)
}

func (e *Engine) showCachedDesigns(ctx context.Context, sess *domain.UserSession) {
	if len(sess.ImageInfo.ProposedDesigns) == 0 {
		sess.Stage = domain.StageIdle
		e.say(ctx, sess.ChatID, msgNoDesigns)
		return
	}
	sess.Stage = domain.StageSelectDesign
	text, rows := designsMessage(sess.ImageInfo.ProposedDesigns)
	e.sayOptions(ctx, sess.ChatID, text, rows)
}

// handleJobInput consumes traffic for a chat with an edit job collecting
// images.
func (e *Engine) handleJobInput(ctx context.Context, sess *domain.UserSession, job *domain.ImageEditJob, ev transport.Event) {
	// Outpaint jobs need a direction before the base photo.
	if job.Type == domain.EditTypeOutpaint && job.Direction == "" {
		if len(ev.Photo) > 0 {
			e.sayOptions(ctx, sess.ChatID, msgOutpaintStart, singleColumn(outpaintDirectionOptions))
			return
		}
		dir, ok := domain.ParseOutpaintDirection(strings.ToLower(strings.TrimSpace(ev.Text)))
		if !ok {
			e.sayOptions(ctx, sess.ChatID, msgBadDirection, singleColumn(outpaintDirectionOptions))
			return
		}
		job.Direction = dir
		e.sayRemove(ctx, sess.ChatID, msgOutpaintBase)
		return
	}

	if len(ev.Photo) == 0 {
		e.say(ctx, sess.ChatID, msgExpectPhoto)
		return
	}

	var (
		status domain.EditStatus
		err    error
	)
	switch job.Status {
	case domain.EditStatusCollectingBase:
		status, err = e.jobs.SubmitBaseImage(ctx, ev)
	case domain.EditStatusCollectingMask:
		status, err = e.jobs.SubmitMaskImage(ctx, ev)
	default:
		e.say(ctx, sess.ChatID, msgNoActiveJob)
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrSubmission) {
			e.sayRemove(ctx, sess.ChatID, msgJobSubmitFailed)
			return
		}
		e.say(ctx, sess.ChatID, msgNoActiveJob)
		return
	}

	switch status {
	case domain.EditStatusCollectingMask:
		e.say(ctx, sess.ChatID, msgAskMaskImage)
	case domain.EditStatusEnqueued:
		e.sayRemove(ctx, sess.ChatID, msgJobEnqueued)
	}
}
