package domain

// Stage enumerates the ordered conversation stages. Handlers advance a session
// strictly along these edges; re-entrant edges (regenerate, company edit) keep
// the session on or return it to a stage already visited.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageChooseAssistance   Stage = "choose_assistance"
	StageValidateUser       Stage = "validate_user"
	StageCollectCompany     Stage = "collect_company"
	StageChooseImageType    Stage = "choose_image_type"
	StageCollectPurpose     Stage = "collect_purpose"
	StageSelectTheme        Stage = "select_theme"
	StageSelectDesign       Stage = "select_design"
	StageGenerateFromDesign Stage = "generate_from_design"
	StageGenerateFromPrompt Stage = "generate_from_prompt"
)

// AssistanceType enumerates how the user wants to be helped.
type AssistanceType string

const (
	AssistStepByStep   AssistanceType = "step_by_step_generate"
	AssistCustomPrompt AssistanceType = "custom_prompt_generate"
	AssistEditExisting AssistanceType = "edit_existing"
)

// DesignRecord is one structured image-design proposal.
type DesignRecord struct {
	Description string `json:"image_description"`
	Foreground  string `json:"foreground_object"`
	Style       string `json:"image_style"`
}

// ImageInfo carries the per-cycle generation inputs gathered stage by stage.
// Slices and pointers are nil until the stage that produces them has run.
type ImageInfo struct {
	ImageType       string         `json:"image_type,omitempty"`
	ImagePurpose    string         `json:"image_purpose,omitempty"`
	ProposedThemes  []string       `json:"proposed_themes,omitempty"`
	SelectedTheme   string         `json:"selected_theme,omitempty"`
	ProposedDesigns []DesignRecord `json:"proposed_designs,omitempty"`
	SelectedDesign  *DesignRecord  `json:"selected_design,omitempty"`
	ImagePrompt     string         `json:"image_prompt,omitempty"`
}

// UserSession is the persisted per-user conversational state. One exists per
// chat; it is owned exclusively by the conversation engine and survives
// process restarts.
type UserSession struct {
	Username   string
	ChatID     int64
	Company    string
	Assistance AssistanceType
	Stage      Stage
	// ResumeStage is set while a company edit diverts the conversation and
	// records where to return once the edit completes.
	ResumeStage Stage
	ImageInfo   ImageInfo
}

// NewSession creates a fresh idle session for a first-contact user.
func NewSession(chatID int64, username string) *UserSession {
	return &UserSession{
		Username: username,
		ChatID:   chatID,
		Stage:    StageIdle,
	}
}

// Reset clears the transient generation state at the end of a cycle while
// preserving the user's identity and stored company.
func (s *UserSession) Reset() {
	s.Assistance = ""
	s.Stage = StageIdle
	s.ResumeStage = ""
	s.ImageInfo = ImageInfo{}
}

// Clear wipes everything except identity; used for an explicit quit.
func (s *UserSession) Clear() {
	s.Company = ""
	s.Reset()
}
