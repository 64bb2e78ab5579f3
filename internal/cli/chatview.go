package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/carechat/internal/chat"
)

const (
	sendFailedNotice   = "Failed to send message. Please try again."
	loadFailedNotice   = "Failed to load subject information"
	subjectMissingText = "Subject not found"

	// defaultVisibleMessages is used until the terminal reports its size.
	defaultVisibleMessages = 12
	requestTimeout         = 30 * time.Second
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	Header    lipgloss.Color
	Caregiver lipgloss.Color
	Assistant lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Header:    lipgloss.Color("#5FAFD7"), // light blue
	Caregiver: lipgloss.Color("#D7AF5F"), // amber
	Assistant: lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

// Style functions for dynamic theming
func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Header).Bold(true)
}

func (t Theme) roleStyle(r chat.Role) lipgloss.Style {
	if r == chat.RoleCaregiver {
		return lipgloss.NewStyle().Foreground(t.Caregiver).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// snapshotMsg carries a controller snapshot published from OnUpdate.
type snapshotMsg chat.Snapshot

// initDoneMsg reports the result of Initialize.
type initDoneMsg struct {
	snap chat.Snapshot
	err  error
}

// sendDoneMsg reports the result of Send.
type sendDoneMsg struct {
	err error
}

// session is the part of chat.Controller the view drives.
type session interface {
	Initialize(ctx context.Context, subjectID string) (chat.Snapshot, error)
	Send(ctx context.Context, text string) error
}

// chatModel is the bubbletea model for a chat session.
type chatModel struct {
	session   session
	subjectID string
	snap      chat.Snapshot
	input     textinput.Model
	spinner   spinner.Model
	theme     Theme
	height    int

	loading  bool
	sending  bool
	notFound bool
	notice   string
	quitting bool
}

// newChatModel creates a chat model bound to subjectID.
func newChatModel(s session, subjectID string) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask about care, routines, preferences..."
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		session:   s,
		subjectID: subjectID,
		input:     in,
		spinner:   sp,
		theme:     defaultTheme,
		loading:   true,
	}
}

// Init starts loading the session.
func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.initialize(),
	)
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case initDoneMsg:
		m.loading = false
		switch {
		case errors.Is(msg.err, chat.ErrNotFound):
			m.notFound = true
		case msg.err != nil:
			m.notice = loadFailedNotice
		default:
			m.snap = msg.snap
		}
		return m, nil

	case snapshotMsg:
		// Snapshots can arrive before Initialize returns; keep the newest.
		if msg.Initialized {
			m.snap = chat.Snapshot(msg)
		}
		return m, nil

	case sendDoneMsg:
		m.sending = false
		if msg.err != nil {
			m.notice = sendFailedNotice
			return m, nil
		}
		m.notice = ""
		m.input.Reset()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the current input unless a send is already in flight.
// Blank input is ignored and never reaches the server.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	if m.loading || m.notFound || !m.snap.Initialized || m.sending {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.sending = true
	m.notice = ""
	return m, m.send(text)
}

// initialize runs Initialize in a command to avoid blocking Update().
func (m chatModel) initialize() tea.Cmd {
	s, id := m.session, m.subjectID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		snap, err := s.Initialize(ctx, id)
		return initDoneMsg{snap: snap, err: err}
	}
}

// send runs Send in a command to avoid blocking Update().
func (m chatModel) send(text string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		return sendDoneMsg{err: s.Send(ctx, text)}
	}
}

// View renders the chat display.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m chatModel) renderContent() string {
	if m.quitting {
		return ""
	}
	if m.loading {
		return fmt.Sprintf("%s Loading conversation...\n", m.spinner.View())
	}
	if m.notFound {
		return m.theme.errorStyle().Render(fmt.Sprintf("%s: %s", subjectMissingText, m.subjectID)) + "\n" +
			m.theme.hintStyle().Render("Press Esc to quit") + "\n"
	}
	if !m.snap.Initialized {
		return m.theme.errorStyle().Render(m.notice) + "\n" +
			m.theme.hintStyle().Render("Press Esc to quit") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	for _, msg := range visibleMessages(m.snap.Messages, m.visibleCount()) {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	if m.snap.Pending {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.theme.hintStyle().Render("Sending..."))
	}
	if m.notice != "" {
		b.WriteString(m.theme.errorStyle().Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("Enter to send, Esc to quit"))
	b.WriteString("\n")
	return b.String()
}

// renderHeader shows the subject's name and summary.
func (m chatModel) renderHeader() string {
	s := m.snap.Subject
	if s == nil {
		return m.theme.headerStyle().Render(m.subjectID) + "\n"
	}
	out := m.theme.headerStyle().Render(s.Name) + "\n"
	if s.Summary != "" {
		out += m.theme.hintStyle().Render(s.Summary) + "\n"
	}
	return out
}

func (m chatModel) renderMessage(msg chat.Message) string {
	return fmt.Sprintf("%s %s", m.theme.roleStyle(msg.Role).Render(roleLabel(msg.Role)+":"), msg.Body)
}

// visibleCount is how many messages fit above the input.
func (m chatModel) visibleCount() int {
	if m.height <= 0 {
		return defaultVisibleMessages
	}
	// header, blank lines, pending, notice, input and hint
	n := m.height - 9
	if n < 1 {
		return 1
	}
	return n
}

// visibleMessages returns the newest n messages, oldest first.
func visibleMessages(msgs []chat.Message, n int) []chat.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// roleLabel is the display name for a message author.
func roleLabel(r chat.Role) string {
	if r == chat.RoleCaregiver {
		return "You"
	}
	return "Assistant"
}

// programForwarder delivers controller snapshots to a running program.
type programForwarder struct {
	mu sync.Mutex
	p  *tea.Program
}

func (f *programForwarder) attach(p *tea.Program) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p = p
}

func (f *programForwarder) detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p = nil
}

// forward is installed as the controller's OnUpdate callback.
func (f *programForwarder) forward(s chat.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.p != nil {
		f.p.Send(snapshotMsg(s))
	}
}

// runChatUI runs the interactive chat UI until the user quits.
func runChatUI(ctrl *chat.Controller, subjectID string, fwd *programForwarder) error {
	p := tea.NewProgram(newChatModel(ctrl, subjectID))
	fwd.attach(p)

	_, err := p.Run()
	fwd.detach()
	ctrl.Teardown()
	ctrl.Wait()
	if err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
