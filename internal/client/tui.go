package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"go-liveclass/pkg/chat"
)

const helpLine = "[Enter] send  /hand raise hand  /accept <user> accept a hand  /quit"

type Model struct {
	isEnteringUsername bool
	messages           []string
	input              textinput.Model
	username           string
	classID            string
	ws                 Sender
	connected          bool
	msgChan            chan tea.Msg
}

// NewModel builds the TUI for classID. With an empty username the user is
// prompted for one before joining.
func NewModel(ws Sender, msgChan chan tea.Msg, username, classID string) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your message here"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	m := Model{
		input:              ti,
		username:           username,
		classID:            classID,
		ws:                 ws,
		connected:          true,
		isEnteringUsername: username == "",
		msgChan:            msgChan,
	}
	if m.isEnteringUsername {
		m.input.Placeholder = "Your user id"
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.listen()}
	if !m.isEnteringUsername {
		cmds = append(cmds, m.join())
	}
	return tea.Batch(cmds...)
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.msgChan
	}
}

type sendFailedMsg struct {
	err error
}

func (m Model) send(msg chat.InboundMessage) tea.Cmd {
	return func() tea.Msg {
		if err := m.ws.Send(msg); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) join() tea.Cmd {
	return m.send(chat.InboundMessage{Type: chat.TypeJoinClass, UserID: m.username, ClassID: m.classID})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}

			if m.isEnteringUsername {
				m.username = text
				m.isEnteringUsername = false
				m.input.Placeholder = "Type your message here"
				m.addLine(fmt.Sprintf("* joined %s as %s", m.classID, m.username))
				return m, m.join()
			}

			return m.runInput(text)
		default:
			m.input, cmd = m.input.Update(msg)
		}

	case messageReceivedMsg:
		if ev, err := chat.DecodeOutbound(msg); err == nil {
			m.addLine(renderEvent(ev))
		}
		return m, m.listen()

	case disconnectedMsg:
		m.connected = false
		m.addLine(fmt.Sprintf("* disconnected: %v", msg.err))
		return m, nil

	case sendFailedMsg:
		m.addLine(fmt.Sprintf("* send failed: %v", msg.err))
		return m, nil
	}

	return m, cmd
}

func (m *Model) runInput(text string) (tea.Model, tea.Cmd) {
	if !m.connected {
		m.addLine("* not connected")
		return *m, nil
	}

	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit":
		return *m, tea.Quit
	case "/hand":
		m.addLine("* you raised a hand")
		return *m, m.send(chat.InboundMessage{Type: chat.TypeRaiseHand})
	case "/accept":
		if len(fields) != 2 {
			m.addLine("* usage: /accept <user>")
			return *m, nil
		}
		m.addLine(fmt.Sprintf("* you accepted %s", fields[1]))
		return *m, m.send(chat.InboundMessage{Type: chat.TypeAcceptHand, StudentID: fields[1]})
	}

	// the hub does not echo, so show our own line locally
	m.addLine(fmt.Sprintf("[%s you]: %s", time.Now().Format("15:04:05"), text))
	return *m, m.send(chat.InboundMessage{Type: chat.TypeChatMessage, Content: chat.Text(text)})
}

func (m *Model) addLine(s string) {
	m.messages = append(m.messages, s)
}

func renderEvent(ev chat.OutboundEvent) string {
	clock := ev.Timestamp
	if t, err := time.Parse(chat.TimestampLayout, ev.Timestamp); err == nil {
		clock = t.Local().Format("15:04:05")
	}

	switch ev.Type {
	case chat.TypeChatMessage:
		return fmt.Sprintf("[%s %s]: %s", clock, ev.UserID, ev.Content)
	case chat.TypeHandRaised:
		return fmt.Sprintf("[%s] * %s raised a hand", clock, ev.UserID)
	case chat.TypeHandAccepted:
		return fmt.Sprintf("[%s] * %s accepted your hand", clock, ev.TeacherID)
	default:
		return fmt.Sprintf("[%s] ? %s", clock, ev.Type)
	}
}

func (m Model) View() string {
	if m.isEnteringUsername {
		return fmt.Sprintf("Enter your user id for class %s: %s\n", m.classID, m.input.View())
	}
	var b strings.Builder

	fmt.Fprintf(&b, "class %s as %s\n\n", m.classID, m.username)
	for _, msg := range m.messages {
		b.WriteString(msg + "\n")
	}

	b.WriteString("\n" + m.input.View())
	b.WriteString("\n" + helpLine)
	return b.String()
}
