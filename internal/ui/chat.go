package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/warpchat/internal/mesh"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 1
	inputHeight  = 3
	footerHeight = 1
	maxLines     = 1000
)

type eventMsg struct {
	ev mesh.Event
}

type eventsClosedMsg struct{}

type replyMsg struct {
	cmd   Command
	reply Reply
	err   error
}

// chatModel is the full-screen chat: a scrolling transcript above an
// input line, fed by the session's event stream.
type chatModel struct {
	ctx      context.Context
	session  Session
	events   <-chan mesh.Event
	viewport viewport.Model
	input    textinput.Model

	lines    []string
	name     string
	status   string
	online   int
	links    map[string]mesh.State
	width    int
	ready    bool
	ended    bool
	quitting bool
}

func newChatModel(ctx context.Context, s Session, name string) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help"
	ti.Prompt = "> "
	ti.PromptStyle = SelfStyle
	ti.CharLimit = 4000
	ti.Focus()

	m := &chatModel{
		ctx:     ctx,
		session: s,
		events:  s.Events(),
		input:   ti,
		name:    name,
		status:  "connecting",
		links:   make(map[string]mesh.State),
	}
	for _, g := range Greeting {
		m.appendLine(noticeLine(mesh.NoticeInfo, g, time.Now()))
	}
	return m
}

// RunChat runs the full-screen chat until the user quits or ctx ends.
func RunChat(ctx context.Context, s Session, name string) error {
	p := tea.NewProgram(newChatModel(ctx, s, name), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}
	return nil
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForEvents())
}

func (m *chatModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m *chatModel) execute(cmd Command) tea.Cmd {
	return func() tea.Msg {
		reply, err := Execute(m.ctx, m.session, cmd)
		return replyMsg{cmd: cmd, reply: reply, err: err}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-headerHeight-inputHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-6, 10)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				m.appendLine(noticeLine(mesh.NoticeError, err.Error(), time.Now()))
				return m, nil
			}
			return m, m.execute(cmd)

		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case eventMsg:
		m.apply(msg.ev)
		cmds = append(cmds, m.listenForEvents())

	case eventsClosedMsg:
		m.ended = true
		m.status = "offline"
		m.appendLine(noticeLine(mesh.NoticeWarning, "Session ended. Press ctrl+c to exit.", time.Now()))

	case replyMsg:
		if msg.err != nil {
			m.appendLine(noticeLine(mesh.NoticeError, msg.err.Error(), time.Now()))
			break
		}
		if msg.reply.Quit {
			m.quitting = true
			return m, tea.Quit
		}
		if msg.cmd.Kind == CmdName {
			m.name = msg.cmd.Arg
		}
		if msg.reply.Text != "" {
			m.appendLine(noticeLine(mesh.NoticeSuccess, msg.reply.Text, time.Now()))
		}
		if msg.reply.Table != nil {
			for _, l := range strings.Split(TableView(msg.reply.Table), "\n") {
				m.appendLine(l)
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// apply folds a session event into the model.
func (m *chatModel) apply(ev mesh.Event) {
	switch ev := ev.(type) {
	case mesh.StatusChanged:
		m.status = ev.Status
	case mesh.RosterChanged:
		m.online = len(ev.Peers)
	case mesh.PeerLinkChanged:
		if ev.State == mesh.Closed {
			delete(m.links, ev.RemoteID)
		} else {
			m.links[ev.RemoteID] = ev.State
		}
	case mesh.MessageReceived:
		m.appendLine(messageLine(ev))
	case mesh.SystemNotice:
		m.appendLine(noticeLine(ev.Level, ev.Text, ev.At))
	}
}

func (m *chatModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)
	m.viewport.SetContent(wrap.Render(strings.Join(m.lines, "\n")))
	m.viewport.GotoBottom()
}

func (m *chatModel) linked() int {
	n := 0
	for _, s := range m.links {
		if s == mesh.Linked {
			n++
		}
	}
	return n
}

func (m *chatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting chat..."
	}

	status := StatusStyle.Render(m.status)
	if m.ended || m.status != "connected" {
		status = OfflineStatusStyle.Render(m.status)
	}
	name := m.name
	if name == "" {
		name = "anonymous"
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		HeaderStyle.Render(IconChat+" warpchat"),
		" ", status, " ",
		SelfStyle.Render(name),
		MutedStyle.Render(fmt.Sprintf("  %d online  %d linked", m.online, m.linked())),
	)
	footer := FooterStyle.Render("enter send • /help commands • pgup/pgdn scroll • ctrl+c quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		InputStyle.Width(max(m.width-2, 10)).Render(m.input.View()),
		footer,
	)
}

func messageLine(ev mesh.MessageReceived) string {
	sender := SenderStyle(ev.SenderID).Render(ev.Sender)
	if ev.Outgoing {
		sender = SelfStyle.Render(ev.Sender)
	}
	return fmt.Sprintf("%s %s: %s", MutedStyle.Render(ev.At.Format("15:04")), sender, ev.Text)
}

func noticeLine(level mesh.NoticeLevel, text string, at time.Time) string {
	icon, style := IconInfo, MutedStyle
	switch level {
	case mesh.NoticeSuccess:
		icon, style = IconSuccess, SuccessStyle
	case mesh.NoticeWarning:
		icon, style = IconWarning, WarningStyle
	case mesh.NoticeError:
		icon, style = IconError, ErrorStyle
	}
	return fmt.Sprintf("%s %s %s", MutedStyle.Render(at.Format("15:04")), icon, style.Render(text))
}
