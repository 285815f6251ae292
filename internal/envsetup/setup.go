// envsetup provides a lightweight .env configuration wizard.
// It runs automatically on first bot startup when no .env file exists,
// collecting the Discord token and LLM provider credentials.
package envsetup

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const EnvFile = ".env"

type step int

const (
	stepWelcome step = iota
	stepDiscord
	stepProvider
	stepAPIKey
	stepSystemPrompt
	stepConfirm
	stepDone
)

var providers = []string{"openai", "anthropic", "google"}

var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-haiku-4-5",
	"google":    "gemini-2.0-flash",
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type model struct {
	path         string
	step         step
	textInput    textinput.Model
	discordToken string
	provider     string
	apiKey       string
	systemPrompt string
	err          error
	width        int
	height       int
}

func New(path string) model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 60

	return model{
		path:      path,
		step:      stepWelcome,
		textInput: ti,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		case tea.KeyTab:
			if m.step == stepSystemPrompt {
				m.textInput.SetValue("")
				return m.handleEnter()
			}
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) advance(next step) model {
	m.step = next
	m.textInput.SetValue("")
	if next == stepDiscord || next == stepAPIKey {
		m.textInput.EchoMode = textinput.EchoPassword
	} else {
		m.textInput.EchoMode = textinput.EchoNormal
	}
	return m
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	m.err = nil
	value := strings.TrimSpace(m.textInput.Value())

	switch m.step {
	case stepWelcome:
		return m.advance(stepDiscord), nil

	case stepDiscord:
		if value == "" {
			m.err = fmt.Errorf("Discord token is required")
			return m, nil
		}
		m.discordToken = value
		return m.advance(stepProvider), nil

	case stepProvider:
		provider, ok := parseProvider(value)
		if !ok {
			m.err = fmt.Errorf("Please enter 1 for OpenAI, 2 for Anthropic or 3 for Google")
			return m, nil
		}
		m.provider = provider
		return m.advance(stepAPIKey), nil

	case stepAPIKey:
		if value == "" {
			m.err = fmt.Errorf("API key is required")
			return m, nil
		}
		m.apiKey = value
		return m.advance(stepSystemPrompt), nil

	case stepSystemPrompt:
		m.systemPrompt = value
		return m.advance(stepConfirm), nil

	case stepConfirm:
		switch strings.ToLower(value) {
		case "", "y", "yes":
			if err := m.writeEnvFile(); err != nil {
				m.err = err
				return m, nil
			}
			m.step = stepDone
			return m, tea.Quit
		case "n", "no":
			m = m.advance(stepWelcome)
			m.discordToken = ""
			m.provider = ""
			m.apiKey = ""
			m.systemPrompt = ""
		}
	}

	return m, nil
}

func parseProvider(choice string) (string, bool) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	for i, p := range providers {
		if choice == p || choice == fmt.Sprint(i+1) {
			return p, true
		}
	}
	return "", false
}

func (m model) envContent() string {
	return fmt.Sprintf(`# Generated by setup wizard

# Discord Configuration
DISCORD_TOKEN=%s

# LLM Configuration
LLM_PROVIDER=%s
MODEL=%s
API_KEY=%s
SYSTEM_PROMPT=%q
`, m.discordToken, m.provider, defaultModels[m.provider], m.apiKey, m.systemPrompt)
}

func (m model) writeEnvFile() error {
	if err := os.WriteFile(m.path, []byte(m.envContent()), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", m.path, err)
	}
	return nil
}

func (m model) View() string {
	var s strings.Builder

	switch m.step {
	case stepWelcome:
		s.WriteString(titleStyle.Render("Chat Relay - Env Setup"))
		s.WriteString("\n\n")
		s.WriteString("This wizard will help you configure the bot.\n")
		s.WriteString("You'll need:\n\n")
		s.WriteString("  - A Discord bot token\n")
		s.WriteString("  - An LLM API key (OpenAI, Anthropic or Google)\n")
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("Press Enter to continue, Ctrl+C to exit"))

	case stepDiscord:
		s.WriteString(titleStyle.Render("Step 1: Discord Bot Token"))
		s.WriteString("\n\n")
		s.WriteString("To get your Discord bot token:\n\n")
		s.WriteString("  1. Go to " + linkStyle.Render("https://discord.com/developers/applications") + "\n")
		s.WriteString("  2. Create a new application (or select existing)\n")
		s.WriteString("  3. Go to the Bot section\n")
		s.WriteString("  4. Click 'Reset Token' to get your bot token\n")
		s.WriteString("  5. Enable 'Message Content Intent' under Privileged Gateway Intents\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Paste your Discord token here:"))
		s.WriteString("\n")
		s.WriteString(m.textInput.View())

	case stepProvider:
		s.WriteString(titleStyle.Render("Step 2: Choose LLM Provider"))
		s.WriteString("\n\n")
		s.WriteString("Which LLM provider would you like to use?\n\n")
		s.WriteString("  1. OpenAI (or any OpenAI-compatible endpoint)\n")
		s.WriteString("  2. Anthropic (Claude)\n")
		s.WriteString("  3. Google (Gemini)\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter 1, 2 or 3:"))
		s.WriteString("\n")
		s.WriteString(m.textInput.View())

	case stepAPIKey:
		s.WriteString(titleStyle.Render("Step 3: LLM API Key"))
		s.WriteString("\n\n")
		switch m.provider {
		case "anthropic":
			s.WriteString("Create a key at " + linkStyle.Render("https://console.anthropic.com") + "\n")
		case "google":
			s.WriteString("Create a key at " + linkStyle.Render("https://aistudio.google.com/apikey") + "\n")
		default:
			s.WriteString("Create a key at " + linkStyle.Render("https://platform.openai.com/api-keys") + "\n")
		}
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Paste your API key here:"))
		s.WriteString("\n")
		s.WriteString(m.textInput.View())

	case stepSystemPrompt:
		s.WriteString(titleStyle.Render("Step 4: System Prompt (optional)"))
		s.WriteString("\n\n")
		s.WriteString("Instructions sent before every conversation, e.g. \"You are a helpful assistant.\"\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter a system prompt, or press Tab to skip:"))
		s.WriteString("\n")
		s.WriteString(m.textInput.View())

	case stepConfirm:
		s.WriteString(titleStyle.Render("Configuration Complete"))
		s.WriteString("\n\n")
		s.WriteString("Your configuration:\n\n")
		s.WriteString("  Discord:       " + successStyle.Render(maskToken(m.discordToken)) + "\n")
		s.WriteString("  LLM Provider:  " + successStyle.Render(m.provider) + "\n")
		s.WriteString("  Model:         " + successStyle.Render(defaultModels[m.provider]) + "\n")
		s.WriteString("  API Key:       " + successStyle.Render(maskToken(m.apiKey)) + "\n")
		s.WriteString("  System Prompt: " + successStyle.Render(orNone(m.systemPrompt)) + "\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Save this configuration to " + m.path + "? [Y/n]:"))
		s.WriteString("\n")
		s.WriteString(m.textInput.View())

	case stepDone:
		s.WriteString(successStyle.Render("Saved " + m.path))
	}

	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}

	s.WriteString("\n")
	return s.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// Run starts the setup wizard and returns true if setup was completed successfully
func Run() (bool, error) {
	p := tea.NewProgram(New(EnvFile))
	finalModel, err := p.Run()
	if err != nil {
		return false, err
	}

	m := finalModel.(model)
	return m.step == stepDone && m.err == nil, nil
}

// NeedsSetup checks if .env file exists
func NeedsSetup() bool {
	_, err := os.Stat(EnvFile)
	return os.IsNotExist(err)
}
