package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"knlsetup/internal/pyenv"
)

// maxListedRejections caps how many rejected candidates the menu shows.
const maxListedRejections = 6

type fallbackModel struct {
	menu      pyenv.Menu
	choices   []pyenv.Choice
	cursor    int
	entering  bool
	input     textinput.Model
	selection pyenv.Selection
	done      bool
}

func newFallbackModel(menu pyenv.Menu) fallbackModel {
	input := textinput.New()
	input.Placeholder = "/usr/local/bin/python3"
	input.Prompt = "  path: "
	input.CharLimit = 4096
	input.Width = 60
	return fallbackModel{
		menu:    menu,
		choices: pyenv.Choices(),
		input:   input,
	}
}

func (m fallbackModel) Init() tea.Cmd {
	return nil
}

func (m fallbackModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.entering {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if key.String() == "ctrl+c" {
		m.selection = pyenv.Selection{Choice: pyenv.ChooseAbort}
		m.done = true
		return m, tea.Quit
	}

	if m.entering {
		switch key.String() {
		case "enter":
			m.selection = pyenv.Selection{Choice: pyenv.ChoosePath, Path: strings.TrimSpace(m.input.Value())}
			m.done = true
			return m, tea.Quit
		case "esc":
			m.entering = false
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case "1", "2", "3":
		m.cursor = int(key.Runes[0] - '1')
		return m.choose()
	case "enter":
		return m.choose()
	case "esc", "q":
		m.selection = pyenv.Selection{Choice: pyenv.ChooseAbort}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m fallbackModel) choose() (tea.Model, tea.Cmd) {
	choice := m.choices[m.cursor]
	if choice == pyenv.ChoosePath {
		m.entering = true
		return m, m.input.Focus()
	}
	m.selection = pyenv.Selection{Choice: choice}
	m.done = true
	return m, tea.Quit
}

func (m fallbackModel) View() string {
	faint := lipgloss.NewStyle().Faint(true)
	if m.done {
		return faint.Render("  "+m.selection.Choice.String()) + "\n"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(HeadingStyle.Render(fmt.Sprintf("No Python >= %s was found.", m.menu.Requirement)))
	sb.WriteString("\n")

	for i, r := range m.menu.Rejected {
		if i == maxListedRejections {
			sb.WriteString(faint.Render(fmt.Sprintf("  … and %d more", len(m.menu.Rejected)-i)) + "\n")
			break
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", StatusStyle("skipped").Render(r.Path), faint.Render(r.Reason)))
	}
	if m.menu.Notice != "" {
		sb.WriteString("\n" + StatusStyle("error").Render("  "+m.menu.Notice) + "\n")
	}
	sb.WriteString("\n")

	focused := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	for i, c := range m.choices {
		label := fmt.Sprintf("%d. %s", i+1, c)
		if i == m.cursor {
			sb.WriteString("▸ " + focused.Render(label) + "\n")
		} else {
			sb.WriteString("  " + faint.Render(label) + "\n")
		}
	}

	sb.WriteString("\n")
	if m.entering {
		sb.WriteString(m.input.View() + "\n\n")
		sb.WriteString(faint.Render("  [Enter] Use this interpreter  [Esc] Back"))
	} else {
		sb.WriteString(faint.Render("  [↑↓] Navigate  [Enter] Select  [Esc] Abort"))
	}
	sb.WriteString("\n")
	return sb.String()
}

// Prompter runs the runtime fallback menu as a bubbletea program.
type Prompter struct {
	In    io.Reader
	Out   io.Writer
	Width int
}

func (p *Prompter) Choose(ctx context.Context, menu pyenv.Menu) (pyenv.Selection, error) {
	prog := tea.NewProgram(newFallbackModel(menu),
		tea.WithContext(ctx),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
	)
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
			return pyenv.Selection{}, ctx.Err()
		}
		return pyenv.Selection{}, err
	}
	return final.(fallbackModel).selection, nil
}

func (p *Prompter) Show(_ context.Context, markdown string) error {
	_, err := fmt.Fprintln(p.Out, RenderMarkdown(markdown, p.Width))
	return err
}
