package ui

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// confirmModel is a single yes/no question.
type confirmModel struct {
	message   string
	keys      keyMap
	help      help.Model
	answered  bool
	confirmed bool
}

func newConfirmModel(message string) confirmModel {
	return confirmModel{message: message, keys: newKeyMap(), help: help.New()}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.yes):
		m.answered, m.confirmed = true, true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.no), key.Matches(keyMsg, m.keys.quit):
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		return ""
	}
	return fmt.Sprintf("%s\n%s\n", styles.title.Render(m.message), m.help.ShortHelpView(m.keys.ShortHelp()))
}

// Prompt asks the user to confirm destructive account operations.
type Prompt struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
}

// NewPrompt creates a [Prompt] reading from in and writing to out, defaulting to stdin and stdout.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Prompt{In: in, Out: out}
}

// Confirm shows message and blocks until the user answers or ctx ends.
//
// Returns true only for an explicit yes. A cancelled context is a dismissal and returns false with the context error.
func (p *Prompt) Confirm(ctx context.Context, message string) (bool, error) {
	if p.AssumeYes {
		fmt.Fprintf(p.Out, "%s %s\n", message, styles.help.Render("(yes)"))
		return true, nil
	}

	program := tea.NewProgram(newConfirmModel(message),
		tea.WithContext(ctx),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
	)

	final, err := program.Run()
	if err != nil {
		return false, err
	}

	m, ok := final.(confirmModel)
	return ok && m.confirmed, nil
}

// Inform shows a final status message.
func (p *Prompt) Inform(message string) {
	fmt.Fprintln(p.Out, styles.ok.Render("✓ "+message))
}
