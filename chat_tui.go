package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	markdown "github.com/vlanse/go-term-markdown"

	"github.com/chatterm/chatterm/transcript"
)

var textinputPlaceholder = "Type a message and press Enter to send..."

const emptyViewport = `<chat history is empty>`

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
)

type chatTuiState struct {
	spin      bool
	streaming bool
	spinner   spinner.Model
	viewport  viewport.Model
	textarea  textarea.Model

	session       *ChatSession
	transcriptDir string
	verbose       bool

	ch      <-chan StreamEvent
	pending string // accumulated assistant text, not yet committed
	err     error
	notice  string

	renderMarkdown bool
	viewportWidth  int
	sendRightAway  bool

	// Transcript picker
	inPicker   bool
	pickerList list.Model
}

type transcriptItem struct {
	path string
}

func (i transcriptItem) Title() string       { return filepath.Base(i.path) }
func (i transcriptItem) Description() string { return i.path }
func (i transcriptItem) FilterValue() string { return i.path }

func initialChatModel(session *ChatSession, transcriptDir string, initialInput string, sendRightAway, verbose bool) chatTuiState {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 100000
	ta.MaxHeight = 32
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.SetValue(initialInput)

	vp := viewport.New(32, 12)
	vp.SetContent(emptyViewport)
	vp.MouseWheelEnabled = true

	if len(session.Messages) > 0 {
		vp.SetContent(formatMessageLog(session.Messages, "", true, 80))
	}
	vp.GotoBottom()

	pickerList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	pickerList.Title = "Load Transcript"
	pickerList.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFF")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)
	pickerList.SetShowHelp(false)

	return chatTuiState{
		spinner:        spinner.New(),
		textarea:       ta,
		viewport:       vp,
		session:        session,
		transcriptDir:  transcriptDir,
		verbose:        verbose,
		renderMarkdown: true,
		viewportWidth:  80,
		sendRightAway:  sendRightAway,
		pickerList:     pickerList,
	}
}

func (m chatTuiState) Init() tea.Cmd {
	return tea.Batch(textarea.Blink)
}

var markdownCache = struct {
	sync.Mutex
	cache map[string]string
}{cache: make(map[string]string)}

// formatMessageLog renders the transcript for the viewport. A non-empty
// partial is shown as the in-progress assistant reply with a cursor block.
func formatMessageLog(msgs []Message, partial string, renderMd bool, lineWidth int) string {
	var ret strings.Builder

	render := func(content string) string {
		if !renderMd {
			return content
		}
		key := fmt.Sprintf("%s__%d", content, lineWidth)
		markdownCache.Lock()
		defer markdownCache.Unlock()
		if cached, ok := markdownCache.cache[key]; ok {
			return cached
		}
		rendered := string(markdown.Render(content, lineWidth, 0))
		markdownCache.cache[key] = rendered
		return rendered
	}

	for _, msg := range msgs {
		content := render(strings.TrimRight(msg.Content, " \t\r\n"))
		content = strings.TrimRight(content, " \t\r\n")
		fmt.Fprintf(&ret, "### %s:\n%s\n\n", strings.ToUpper(msg.Role), content)
	}

	if partial != "" {
		// Partial text is rendered raw: re-running the markdown renderer on
		// every fragment of a half-finished code block produces garbage.
		fmt.Fprintf(&ret, "### ASSISTANT:\n%s▌\n\n", partial)
	}

	return ret.String()
}

type streamTickMsg struct {
	content string
	err     error
	done    bool
}

func readStream(ch <-chan StreamEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return streamTickMsg{done: true}
		}
		if event.Err != nil {
			return streamTickMsg{err: event.Err}
		}
		return streamTickMsg{content: event.Content}
	}
}

func (m chatTuiState) sendMsg(usermsg string) (tea.Model, tea.Cmd) {
	if err := m.session.Append(NewMessage("user", usermsg)); err != nil {
		m.err = err
		return m, nil
	}

	ch, err := startTurn(context.Background(), m.session, m.verbose)
	if err != nil {
		// User message stays in history; the turn can be resubmitted.
		m.err = err
		m.refreshViewport()
		return m, nil
	}

	m.err = nil
	m.notice = ""
	m.pending = ""
	m.ch = ch
	m.spin = true
	m.spinner.Spinner = spinner.Pulse
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("171"))

	m.textarea.Reset()
	m.textarea.Placeholder = textinputPlaceholder
	m.textarea.Focus()

	m.refreshViewport()

	return m, tea.Batch(m.spinner.Tick, readStream(m.ch))
}

func (m *chatTuiState) refreshViewport() {
	if len(m.session.Messages) == 0 && m.pending == "" {
		m.viewport.SetContent(emptyViewport)
		return
	}
	m.viewport.SetContent(formatMessageLog(m.session.Messages, m.pending, m.renderMarkdown, m.viewportWidth))
	m.viewport.GotoBottom()
}

func (m chatTuiState) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	if m.sendRightAway {
		m.sendRightAway = false
		ret, cmds := m.sendMsg(m.textarea.Value())
		return ret, tea.Batch(tiCmd, vpCmd, cmds)
	}

	if m.inPicker {
		return m.updatePicker(msg)
	}

	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.Type {

		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyCtrlN:
			m.session.Reset()
			m.pending = ""
			m.err = nil
			m.notice = ""
			m.textarea.Reset()
			m.textarea.Placeholder = textinputPlaceholder
			m.textarea.Focus()
			m.refreshViewport()
			return m, nil

		case tea.KeyCtrlT: // save transcript
			if len(m.session.Messages) == 0 {
				return m, nil
			}
			jsonPath, mdPath, err := transcript.Save(m.transcriptDir, toTranscript(m.session.Messages))
			if err != nil {
				m.err = err
			} else {
				m.notice = fmt.Sprintf("saved %s and %s", filepath.Base(jsonPath), filepath.Base(mdPath))
			}
			return m, nil

		case tea.KeyCtrlL: // load transcript
			files, err := transcript.List(m.transcriptDir)
			if err != nil {
				m.err = err
				return m, nil
			}
			items := make([]list.Item, len(files))
			for i, f := range files {
				items[i] = transcriptItem{path: f}
			}
			m.pickerList.SetItems(items)
			m.pickerList.SetSize(m.viewportWidth+2, m.viewport.Height+m.textarea.Height())
			m.inPicker = true
			return m, nil

		case tea.KeyCtrlE: // copy last reply
			if len(m.session.Messages) > 0 {
				clipboard.WriteAll(m.session.Messages[len(m.session.Messages)-1].Content)
			}
			return m, nil

		case tea.KeyCtrlS: // copy whole log
			if len(m.session.Messages) > 0 {
				clipboard.WriteAll(formatMessageLog(m.session.Messages, "", false, 0))
			}
			return m, nil

		case tea.KeyEnter:
			if msg.Alt {
				m.textarea.SetValue(m.textarea.Value() + "\n")
				return m, tea.Batch(tiCmd, vpCmd)
			}

			// One submission at a time: drop Enter while a turn is in flight.
			if m.spin || m.streaming {
				return m, tea.Batch(tiCmd, vpCmd)
			}

			usermsg := m.textarea.Value()
			if len(strings.Trim(usermsg, " \r\t\n")) == 0 {
				return m, tea.Batch(tiCmd, vpCmd)
			}

			ret, cmds := m.sendMsg(usermsg)
			return ret, tea.Batch(tiCmd, vpCmd, spCmd, cmds)
		}

	case tea.WindowSizeMsg:
		m.textarea.SetWidth(msg.Width - 2)
		m.viewport.Width = msg.Width - 2
		m.viewportWidth = msg.Width - 2
		m.viewport.Height = msg.Height - 2 - m.textarea.Height()
		m.refreshViewport()

	case streamTickMsg:
		if m.spin {
			m.spin = false
			m.streaming = true
			m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
		}

		if msg.err != nil {
			// Turn failed: the partial text stays on screen but is never
			// committed to the history. The next send starts a fresh reply.
			m.streaming = false
			m.err = msg.err
			m.refreshViewport()
			return m, nil
		}

		if msg.done {
			m.streaming = false
			full := m.pending
			m.pending = ""
			if err := m.session.Append(NewMessage("assistant", full)); err != nil {
				m.err = err
			}
			m.refreshViewport()
			return m, nil
		}

		m.pending += msg.content
		m.refreshViewport()
		return m, tea.Batch(tiCmd, vpCmd, spCmd, readStream(m.ch))
	}

	if m.spin || m.streaming {
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, spCmd)
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m chatTuiState) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc || msg.Type == tea.KeyCtrlC {
			m.inPicker = false
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			if selected, ok := m.pickerList.SelectedItem().(transcriptItem); ok {
				msgs, err := transcript.Load(selected.path)
				if err != nil {
					// Load failed wholesale; current session stays untouched.
					m.err = err
				} else if err := m.session.Replace(fromTranscript(msgs)); err != nil {
					m.err = err
				} else {
					m.err = nil
					m.notice = fmt.Sprintf("loaded %s", filepath.Base(selected.path))
				}
				m.refreshViewport()
			}
			m.inPicker = false
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.pickerList.SetSize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd
	m.pickerList, cmd = m.pickerList.Update(msg)
	return m, cmd
}

func (m chatTuiState) statusLine() string {
	status := fmt.Sprintf("%s | messages: %d | tokens: %d",
		m.session.Model, len(m.session.Messages), m.session.TokenCount)

	switch {
	case m.err != nil:
		return statusStyle.Render(status) + "  " + errorStyle.Render(m.err.Error())
	case m.notice != "":
		return statusStyle.Render(status) + "  " + noticeStyle.Render(m.notice)
	case m.spin || m.streaming:
		return statusStyle.Render(status) + "  " + m.spinner.View()
	default:
		return statusStyle.Render(status)
	}
}

func (m chatTuiState) View() string {
	if m.inPicker {
		return m.pickerList.View()
	}

	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.viewport.View(),
		m.textarea.View(),
		m.statusLine(),
	) + "\n"
}

func toTranscript(msgs []Message) []transcript.Message {
	out := make([]transcript.Message, len(msgs))
	for i, m := range msgs {
		out[i] = transcript.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func fromTranscript(msgs []transcript.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: m.Role, Content: m.Content}
	}
	return out
}
