package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"knlsetup/internal/pyenv"
)

// LinePrompter asks the fallback questions on plain lines, for stdin that is
// a pipe rather than a terminal.
type LinePrompter struct {
	Out     io.Writer
	scanner *bufio.Scanner

	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	text string
	err  error
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{Out: out, scanner: bufio.NewScanner(in)}
}

func (p *LinePrompter) Choose(ctx context.Context, menu pyenv.Menu) (pyenv.Selection, error) {
	fmt.Fprintf(p.Out, "No Python >= %s was found.\n", menu.Requirement)
	for _, r := range menu.Rejected {
		fmt.Fprintf(p.Out, "  %s: %s\n", r.Path, r.Reason)
	}
	if menu.Notice != "" {
		fmt.Fprintf(p.Out, "Refused %s\n", menu.Notice)
	}
	for i, c := range pyenv.Choices() {
		fmt.Fprintf(p.Out, "  %d) %s\n", i+1, c)
	}

	for {
		fmt.Fprint(p.Out, "Choice [1-3]: ")
		answer, err := p.readLine(ctx)
		if err != nil {
			return pyenv.Selection{}, err
		}
		switch answer {
		case "1":
			fmt.Fprint(p.Out, "Interpreter path: ")
			path, err := p.readLine(ctx)
			if err != nil {
				return pyenv.Selection{}, err
			}
			return pyenv.Selection{Choice: pyenv.ChoosePath, Path: path}, nil
		case "2":
			return pyenv.Selection{Choice: pyenv.ChooseInstructions}, nil
		case "3", "q":
			return pyenv.Selection{Choice: pyenv.ChooseAbort}, nil
		}
		fmt.Fprintf(p.Out, "Please answer 1, 2 or 3.\n")
	}
}

func (p *LinePrompter) Show(_ context.Context, markdown string) error {
	_, err := fmt.Fprintln(p.Out, markdown)
	return err
}

// readLine returns the next trimmed line. End of input aborts; a cancelled
// ctx returns at once even while the read is blocked.
func (p *LinePrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.once.Do(p.startReader)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-p.lines:
		if !ok {
			return "", errors.Join(pyenv.ErrAborted, io.EOF)
		}
		return r.text, r.err
	}
}

// startReader feeds lines from the scanner. After a cancelled prompt the
// reader stays blocked until input ends; the process exits first.
func (p *LinePrompter) startReader() {
	p.lines = make(chan lineResult)
	go func() {
		defer close(p.lines)
		for p.scanner.Scan() {
			p.lines <- lineResult{text: strings.TrimSpace(p.scanner.Text())}
		}
		if err := p.scanner.Err(); err != nil {
			p.lines <- lineResult{err: err}
		}
	}()
}
