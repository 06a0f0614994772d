// internal/tui/tui.go
// Package tui provides the interactive terminal chat for docchat.
package tui

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/chat"
	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/store"
	"github.com/mwiater/docchat/internal/util"
)

// Session is the conversation state the UI drives.
type Session interface {
	chat.Ingester
	Chats(ctx context.Context) ([]store.Chat, error)
	Reset()
	SwitchChat(ctx context.Context, id int64) error
	Messages() []store.Message
	Title() string
	Model() (string, string)
	Send(ctx context.Context, prompt string, onChunk func(string)) (chat.Reply, error)
	Transcribe(ctx context.Context, path string) (string, error)
}

// viewState represents the current view or screen of the application.
type viewState int

const (
	// viewChatSelector lists "new chat" and the stored chats.
	viewChatSelector viewState = iota
	// viewChat is the state where the user is interacting with the chat.
	viewChat
)

const newChatID int64 = 0

// model is the main application model for the Bubble Tea UI.
type model struct {
	ctx              context.Context
	config           *appconfig.Config
	session          Session
	state            viewState
	isLoading        bool
	loadingLabel     string
	err              error
	notices          []string
	chatList         list.Model
	textArea         textarea.Model
	viewport         viewport.Model
	spinner          spinner.Model
	history          []store.Message
	title            string
	pending          string
	responseBuf      strings.Builder
	responseMeta     providers.StreamMetadata
	width, height    int
	program          *tea.Program
	requestStartTime time.Time
}

// initialModel creates and initializes a new model with default values.
func initialModel(ctx context.Context, cfg *appconfig.Config, session Session) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Send a message, /upload <path...>, /voice <file.wav> or /new"
	ta.Focus()
	ta.Prompt = "Ask Anything: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	chatList := list.New([]list.Item{item{id: newChatID, title: "New Chat", desc: "Start a new conversation"}}, list.NewDefaultDelegate(), 0, 0)
	chatList.Title = "Select a Chat"

	return &model{
		ctx:      ctx,
		config:   cfg,
		session:  session,
		state:    viewChatSelector,
		spinner:  s,
		textArea: ta,
		chatList: chatList,
		viewport: viewport.New(100, 5),
	}
}

// item represents a selectable chat in the selector list.
type item struct {
	id    int64
	title string
	desc  string
}

// Title returns the title of the list item.
func (i item) Title() string { return i.title }

// Description returns the description of the list item.
func (i item) Description() string { return i.desc }

// FilterValue returns the title of the item, used for filtering.
func (i item) FilterValue() string { return i.title }

// chatsLoadedMsg carries the stored chats for the selector.
type chatsLoadedMsg struct{ chats []store.Chat }

// chatsLoadErr is sent when the stored chats cannot be listed.
type chatsLoadErr struct{ error }

// chatSwitchedMsg is sent when a stored chat has been loaded into the session.
type chatSwitchedMsg struct{}

// chatSwitchErr is sent when a stored chat cannot be loaded.
type chatSwitchErr struct{ error }

// streamChunkMsg is a message sent when a new chunk of a streaming response is received.
type streamChunkMsg string

// replyMsg is sent when a reply has been generated and stored.
type replyMsg struct{ reply chat.Reply }

// replyErr is sent when a turn fails.
type replyErr struct{ error }

// ingestDoneMsg is sent when an upload batch has been processed.
type ingestDoneMsg struct {
	report chat.IngestReport
	err    error
}

// transcribedMsg carries a recording converted to prompt text.
type transcribedMsg string

// transcribeErr is sent when a recording cannot be transcribed.
type transcribeErr struct{ error }

// tickMsg is a message sent at regular intervals, used for animations and timed updates.
type tickMsg time.Time

func loadChatsCmd(ctx context.Context, session Session) tea.Cmd {
	return func() tea.Msg {
		chats, err := session.Chats(ctx)
		if err != nil {
			return chatsLoadErr{error: err}
		}
		return chatsLoadedMsg{chats: chats}
	}
}

func switchChatCmd(ctx context.Context, session Session, id int64) tea.Cmd {
	return func() tea.Msg {
		if err := session.SwitchChat(ctx, id); err != nil {
			return chatSwitchErr{error: err}
		}
		return chatSwitchedMsg{}
	}
}

// sendCmd runs one turn. Chunks are forwarded to the program as they arrive;
// the returned message arrives after the last chunk.
func sendCmd(ctx context.Context, p *tea.Program, session Session, prompt string) tea.Cmd {
	return func() tea.Msg {
		log.Printf("[docchat] outgoing prompt: %q", prompt)
		reply, err := session.Send(ctx, prompt, func(chunk string) {
			if p != nil {
				p.Send(streamChunkMsg(chunk))
			}
		})
		if err != nil {
			return replyErr{error: err}
		}
		return replyMsg{reply: reply}
	}
}

func ingestCmd(ctx context.Context, session Session, uploadDir string, paths []string) tea.Cmd {
	return func() tea.Msg {
		report, err := chat.UploadAndIngest(ctx, session, uploadDir, paths)
		return ingestDoneMsg{report: report, err: err}
	}
}

func transcribeCmd(ctx context.Context, session Session, path string) tea.Cmd {
	return func() tea.Msg {
		text, err := session.Transcribe(ctx, path)
		if err != nil {
			return transcribeErr{error: err}
		}
		return transcribedMsg(text)
	}
}

// tickCmd creates a Bubble Tea command that sends a tickMsg at a regular interval.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init initializes the Bubble Tea model and loads the stored chats.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadChatsCmd(m.ctx, m.session))
}

func (m *model) startLoading(label string) {
	m.isLoading = true
	m.loadingLabel = label
	m.requestStartTime = time.Now()
}

func (m *model) refreshFromSession() {
	m.history = m.session.Messages()
	m.title = m.session.Title()
}

func (m *model) notice(format string, args ...any) {
	m.notices = append(m.notices, fmt.Sprintf(format, args...))
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "q":
			if m.state == viewChatSelector && !m.chatList.SettingFilter() {
				return m, tea.Quit
			}
		case "tab":
			if m.state == viewChat && !m.isLoading {
				m.state = viewChatSelector
				return m, loadChatsCmd(m.ctx, m.session)
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.chatList.SetSize(msg.Width-2, msg.Height-4)
		m.textArea.SetWidth(msg.Width - 3)
		headerHeight := 3
		footerHeight := 5
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)

	case chatsLoadedMsg:
		items := []list.Item{item{id: newChatID, title: "New Chat", desc: "Start a new conversation"}}
		for _, c := range msg.chats {
			items = append(items, item{id: c.ID, title: c.Title, desc: c.CreatedAt.Local().Format("2006-01-02 15:04")})
		}
		m.chatList.SetItems(items)
		return m, nil

	case chatsLoadErr:
		m.err = msg.error
		return m, nil

	case chatSwitchedMsg:
		m.isLoading = false
		m.refreshFromSession()
		m.notices = nil
		m.state = viewChat
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case chatSwitchErr:
		m.isLoading = false
		m.notice("Could not open chat: %v", msg.error)
		return m, nil

	case streamChunkMsg:
		m.responseBuf.WriteString(string(msg))
		m.viewport.GotoBottom()
		return m, nil

	case replyMsg:
		m.isLoading = false
		m.pending = ""
		m.responseBuf.Reset()
		m.responseMeta = msg.reply.Meta
		m.refreshFromSession()
		if n := len(msg.reply.Retrieval.Chunks); n > 0 {
			m.notice("Used %d document chunks (%d chars)", n, msg.reply.Retrieval.ContextChars)
		}
		if msg.reply.AudioErr != nil {
			m.notice("Speech unavailable: %v", msg.reply.AudioErr)
		} else if len(msg.reply.Audio) > 0 {
			path := filepath.Join(m.config.UploadPath(), fmt.Sprintf("reply-%d-%d.mp3", msg.reply.ChatID, time.Now().Unix()))
			if err := util.WriteFile(path, msg.reply.Audio); err != nil {
				m.notice("Speech unavailable: %v", err)
			} else {
				m.notice("Reply audio saved to %s", path)
			}
		}
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case replyErr:
		m.isLoading = false
		m.pending = ""
		m.responseBuf.Reset()
		m.refreshFromSession()
		m.notice("Assistant unavailable: %v", msg.error)
		m.textArea.Focus()
		return m, nil

	case transcribedMsg:
		m.pending = string(msg)
		m.loadingLabel = "Assistant is thinking..."
		return m, sendCmd(m.ctx, m.program, m.session, string(msg))

	case transcribeErr:
		m.isLoading = false
		m.notice("Speech unavailable: %v", msg.error)
		m.textArea.Focus()
		return m, nil

	case ingestDoneMsg:
		m.isLoading = false
		for _, f := range msg.report.Files {
			if f.Err != nil {
				m.notice("%s: %s (%v)", f.Name, f.Status(), f.Err)
			} else {
				m.notice("%s: %s, %d chunks", f.Name, f.Status(), f.Chunks)
			}
		}
		if msg.err != nil {
			m.notice("Indexing unavailable: %v", msg.err)
		} else if msg.report.Added > 0 {
			m.notice("Index now holds %d chunks", msg.report.IndexSize)
		}
		m.refreshFromSession()
		m.textArea.Focus()
		return m, nil

	case tickMsg:
		if m.isLoading {
			return m, tickCmd()
		}
		return m, nil
	}

	switch m.state {
	case viewChatSelector:
		m.chatList, cmd = m.chatList.Update(msg)
		cmds = append(cmds, cmd)
		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" && !m.isLoading {
			if selected, ok := m.chatList.SelectedItem().(item); ok {
				m.err = nil
				if selected.id == newChatID {
					m.session.Reset()
					m.refreshFromSession()
					m.notices = nil
					m.state = viewChat
					m.textArea.Focus()
				} else {
					m.startLoading("Opening " + selected.title)
					cmds = append(cmds, m.spinner.Tick, switchChatCmd(m.ctx, m.session, selected.id), tickCmd())
				}
			}
		}

	case viewChat:
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

		if m.isLoading {
			break
		}
		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)

		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
			userInput := strings.TrimSpace(m.textArea.Value())
			m.textArea.Reset()
			if userInput == "" {
				break
			}
			m.err = nil
			switch {
			case userInput == "/new":
				m.session.Reset()
				m.refreshFromSession()
				m.notices = nil
			case userInput == "/upload" || strings.HasPrefix(userInput, "/upload "):
				paths := strings.Fields(strings.TrimPrefix(userInput, "/upload"))
				if len(paths) == 0 {
					m.notice("Usage: /upload <path...>")
					break
				}
				m.startLoading(fmt.Sprintf("Processing %d upload(s)...", len(paths)))
				cmds = append(cmds, m.spinner.Tick, ingestCmd(m.ctx, m.session, m.config.UploadPath(), paths), tickCmd())
			case userInput == "/voice" || strings.HasPrefix(userInput, "/voice "):
				path := strings.TrimSpace(strings.TrimPrefix(userInput, "/voice"))
				if path == "" {
					m.notice("Usage: /voice <file.wav>")
					break
				}
				m.notices = nil
				m.responseMeta = providers.StreamMetadata{}
				m.startLoading("Transcribing " + filepath.Base(path) + "...")
				cmds = append(cmds, m.spinner.Tick, transcribeCmd(m.ctx, m.session, path), tickCmd())
			default:
				m.notices = nil
				m.responseMeta = providers.StreamMetadata{}
				m.pending = userInput
				m.startLoading("Assistant is thinking...")
				cmds = append(cmds, m.spinner.Tick, sendCmd(m.ctx, m.program, m.session, userInput), tickCmd())
			}
		}
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the application's UI based on the current state of the model.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.state {
	case viewChatSelector:
		if m.isLoading {
			timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
			return fmt.Sprintf("\n  %s %s... %ss\n", m.spinner.View(), m.loadingLabel, timer)
		}
		listView := m.chatList.View()
		if !strings.Contains(listView, m.chatList.Title) {
			listView = fmt.Sprintf("%s\n\n%s", m.chatList.Title, listView)
		}
		var notes strings.Builder
		for _, n := range m.notices {
			notes.WriteString("\n" + noticeStyle.Render(n))
		}
		return lipgloss.NewStyle().Margin(1, 2).Render(listView + notes.String())

	case viewChat:
		return m.chatView()

	default:
		return "Unknown state"
	}
}

var (
	headerStyle    = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Bold(true)
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	imageStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// chatView renders the chat interface, including the header, chat history,
// current response (if streaming), notices and the input text area.
func (m *model) chatView() string {
	var builder strings.Builder

	hostName, modelName := m.session.Model()
	title := m.title
	if title == "" {
		title = "New Chat"
	}
	status := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("Chat:"),
		headerStyle.Render(title),
		headerStyle.MarginLeft(1).Render(fmt.Sprintf("Host: %s", hostName)),
		headerStyle.MarginLeft(1).Render(fmt.Sprintf("Model: %s", modelName)),
	)
	help := lipgloss.NewStyle().Render(" (tab for chats, esc to quit)")
	builder.WriteString(status + help + "\n\n")

	var historyBuilder strings.Builder
	writeTurn := func(role, content string) {
		wrapped := lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(role)-2, 10)).Render(content)
		historyBuilder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, role, wrapped) + "\n")
	}
	for _, msg := range m.history {
		switch {
		case msg.Type == store.TypeImage:
			writeTurn(imageStyle.Render("Image text: "), msg.Content)
		case msg.Role == providers.RoleAssistant:
			writeTurn(assistantStyle.Render("Assistant: "), msg.Content)
		default:
			writeTurn(userStyle.Render("You: "), msg.Content)
		}
	}
	if m.pending != "" {
		writeTurn(userStyle.Render("You: "), m.pending)
	}
	if m.responseBuf.Len() > 0 {
		writeTurn(assistantStyle.Render("Assistant: "), m.responseBuf.String())
	}
	for _, n := range m.notices {
		historyBuilder.WriteString(noticeStyle.Render("  » "+n) + "\n")
	}

	m.viewport.SetContent(historyBuilder.String())
	builder.WriteString(m.viewport.View())

	if m.isLoading {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		builder.WriteString(fmt.Sprintf("\n%s %s %ss", m.spinner.View(), m.loadingLabel, timer))
	} else {
		builder.WriteString("\n" + m.textArea.View())
	}

	if m.config.Debug && m.responseMeta.Done {
		builder.WriteString("\n" + formatMeta(m.responseMeta))
	}

	return builder.String()
}

// formatMeta formats the generation metadata into a human-readable string.
func formatMeta(meta providers.StreamMetadata) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	return style.Render(fmt.Sprintf(
		"  >>> [Model: %s] [Prompt: %d Tokens] [Response: %d Tokens] [Total Duration: %.1fs]",
		meta.Model,
		meta.PromptTokens,
		meta.CompletionTokens,
		float64(meta.TotalDuration)/1e9,
	))
}

// StartGUI runs the interactive chat until the user quits.
func StartGUI(ctx context.Context, cfg *appconfig.Config, session *chat.Session, cancel context.CancelFunc) error {
	f, err := tea.LogToFile(cfg.LogFilePath(), "debug")
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	defer f.Close()
	defer func() {
		log.Println("Cancelling all running requests...")
		cancel()
	}()

	m := initialModel(ctx, cfg, session)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.program = p

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
