package conversation

import (
	"fmt"
	"strings"

	"imagebot/internal/domain"
)

// Button labels. Selection matching is exact, so these are shared between the
// keyboards we send and the handlers that read the answers.
const (
	labelStepByStep   = "Generate Image: Step-by-step Process"
	labelCustomPrompt = "Generate Image: Use Custom Prompt"
	labelEditExisting = "Edit Existing Image"

	labelContinue    = "Continue"
	labelEditCompany = "Edit Company Name"
	labelOthers      = "Others"

	labelRegenThemes   = "Propose other themes"
	labelOwnTheme      = "Write own theme"
	labelRegenDesigns  = "Propose other image designs"
	labelOwnDesign     = "Write own image design"
	labelGenerateAgain = "Generate Image Again"
	labelNewStepByStep = "Generate New Image: Step-by-step Process"
	labelNewCustom     = "Generate New Image: Use Custom Prompt"
	themeOptionPrefix  = "Theme "
	designOptionPrefix = "Image Design "
)

var companyOptions = []string{
	"Housing Development Board (HDB)",
	"Government Technology Agency (GovTech)",
	labelOthers,
}

var imageTypeOptions = []string{"Poster", "Realistic Photo", "Illustration"}

const (
	msgGreeting = "Hi %s \U0001F44B, I can generate posters, photographs, and illustrations.\n\nHow may I help you today?\nSelect an option below."

	msgAskCompany       = "Which company are you representing?\nSelect an option below."
	msgAskCompanyOthers = "You have selected \"Others\".\n\nPlease type out the company you are representing."
	msgValidateCompany  = "You are currently representing %s.\n\nThis will influence the image generation process. To edit the company that you represent, click on \"Edit Company Name\". Otherwise, click on \"Continue\"."
	msgCompanyUpdated   = "Got it, you are now representing %s."

	msgAskImageType = "What type of image would you like to create?\nSelect an option below."
	msgAskPurpose   = "Type out the purpose of the %s:\n(Examples: New housing estate in Bedok, Data science for public good)"

	msgLoadingThemes  = "\U0001F538 Loading proposed themes based on purpose \U0001F538"
	msgLoadingDesigns = "\U0001F538 Loading proposed image designs \U0001F538"
	msgGenerating     = "\U0001F538 Generating %s \U0001F538\n(Please wait for up to 5 mins \U0001F557)"

	msgAskOwnTheme  = "Please type out your custom theme.\n\nSend /choosetheme to select any of the previously suggested themes."
	msgAskOwnDesign = "Please type out your custom image design, add \"/\" after each design element. Use this format:\n\nImage Description / Object in foreground / Style of image\ne.g. A polaroid photo of Space Shuttle Discovery launch / crew waving from the cockpit / vintage\n\nSend /choosedesign to select any of the previously suggested image designs."
	msgBadOwnDesign = "Incorrect format passed.\n\n" + msgAskOwnDesign
	msgAskOwnPrompt = "Please type out your text-to-image prompt below."

	msgNoThemes   = "There is no theme to select. Please send /start for a new conversation."
	msgNoDesigns  = "There is no image design to select. Please send /start for a new conversation."
	msgNoPrompt   = "There is no previous prompt to reuse. Please send /start for a new conversation."
	msgNoCompany  = "There is no company name to edit. Please send /start for a new conversation."
	msgRetryTurn  = "I could not process that just now. Please try again."
	msgIdleNudge  = "Send /start for a new conversation."
	msgQuit       = "Thank you and have a nice day.\n\nSend /start for a new conversation."
	msgPromptUsed = "Text-to-Image Prompt used:\n%s"

	msgEditInstructions = "To edit an existing image, send one of the commands below:\n\n/inpainting - Replace/remove any object from an image\n/outpainting - Extend an image outwards\n\nSend /start for a new conversation."

	msgInpaintStart    = "Send the photo you want to edit. You can add a caption to describe what should appear in the edited region."
	msgOutpaintStart   = "Which direction should the image be extended?\nSelect an option below."
	msgOutpaintBase    = "Send the photo you want to extend. You can add a caption to guide the extension."
	msgAskMaskImage    = "Now edit the photo with your chat app's built-in brush tool to cover the region you want changed, and send the edited copy."
	msgExpectPhoto     = "I need a photo here. Please send an image."
	msgBadDirection    = "Please pick one of: left, right, top, bottom."
	msgJobEnqueued     = "Your edit has been submitted \U0001F528. I will send the result here once it is ready."
	msgJobSubmitFailed = "I could not submit your edit right now. Please try again later."
	msgJobCanceled     = "Your edit request has been canceled."
	msgNoActiveJob     = "There is no edit in progress. Send /inpainting or /outpainting to start one."
)

var outpaintDirectionOptions = []string{
	string(domain.OutpaintLeft),
	string(domain.OutpaintRight),
	string(domain.OutpaintTop),
	string(domain.OutpaintBottom),
}

func assistanceKeyboard() [][]string {
	return [][]string{{labelStepByStep}, {labelCustomPrompt}, {labelEditExisting}}
}

func validateKeyboard() [][]string {
	return [][]string{{labelContinue}, {labelEditCompany}}
}

func doneKeyboard() [][]string {
	return [][]string{{labelGenerateAgain}, {labelNewStepByStep}, {labelNewCustom}, {labelEditExisting}}
}

func singleColumn(options []string) [][]string {
	rows := make([][]string, 0, len(options))
	for _, o := range options {
		rows = append(rows, []string{o})
	}
	return rows
}

func themesMessage(themes []string) (string, [][]string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Here are %d proposed themes based on your input:\nSelect an option below.\n\n", len(themes)))
	rows := make([][]string, 0, len(themes)+2)
	for i, theme := range themes {
		option := fmt.Sprintf("%s%d", themeOptionPrefix, i+1)
		sb.WriteString(option + "\n" + theme + "\n\n")
		rows = append(rows, []string{option})
	}
	rows = append(rows, []string{labelRegenThemes}, []string{labelOwnTheme})
	return sb.String(), rows
}

func designsMessage(designs []domain.DesignRecord) (string, [][]string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Here are %d proposed image designs based on your input:\nSelect an option below.\n\n", len(designs)))
	rows := make([][]string, 0, len(designs)+2)
	for i, d := range designs {
		option := fmt.Sprintf("%s%d", designOptionPrefix, i+1)
		sb.WriteString(option + "\n")
		sb.WriteString("\u25AA Image description: " + d.Description + "\n")
		sb.WriteString("\u25AA Object in foreground: " + d.Foreground + "\n")
		sb.WriteString("\u25AA Style of image: " + d.Style + "\n\n")
		rows = append(rows, []string{option})
	}
	rows = append(rows, []string{labelRegenDesigns}, []string{labelOwnDesign})
	return sb.String(), rows
}

func doneMessage(imageType string) string {
	commands := []string{
		"/editcompany - edit your company name",
		"/choosetheme - choose another previously proposed theme",
		"/choosedesign - choose another previously proposed image design",
		"/start - start a new conversation",
		"/quit - stop the conversation",
	}
	return fmt.Sprintf("Done! Your %s has been generated. Can I help you with anything else?\nSelect an option below.\n\nYou can also control me by sending these commands:\n\n%s",
		imageType, strings.Join(commands, "\n"))
}

// selectedOption parses labels like "Theme 3" against a prefix and a count.
// Returns the zero-based index.
func selectedOption(text, prefix string, count int) (int, bool) {
	if !strings.HasPrefix(text, prefix) {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(text, prefix), "%d", &n); err != nil {
		return 0, false
	}
	if n < 1 || n > count {
		return 0, false
	}
	return n - 1, true
}
