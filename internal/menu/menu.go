package menu

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vitaminmoo/z407-tool/internal/protocol"
)

// Prompter reads menu answers line by line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New returns a prompter reading from in and writing prompts to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Show prints the numbered action menu.
func (p *Prompter) Show() {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Select Action:")
	for _, c := range protocol.Commands {
		fmt.Fprintf(p.out, "%s. %s\n", c.Selection, c.Title)
	}
}

// Choose prompts for a menu selection.
func (p *Prompter) Choose() (protocol.Command, error) {
	answer := p.ask("Enter choice (0-9): ")
	return protocol.Lookup(answer)
}

// Steps prompts for a repeat count when cmd is repeatable and returns 1 otherwise.
func (p *Prompter) Steps(cmd protocol.Command) int {
	if !cmd.Repeatable {
		return 1
	}
	answer := p.ask(fmt.Sprintf("How many steps (default %d)? ", cmd.DefaultSteps))
	return ParseSteps(answer, cmd.DefaultSteps)
}

// Confirm prompts the user to type 'yes' to continue.
func (p *Prompter) Confirm(prompt string) bool {
	return p.ask(prompt) == "yes"
}

func (p *Prompter) ask(prompt string) string {
	fmt.Fprint(p.out, prompt)
	// A read error (EOF on a closed stdin) is an empty answer.
	line, _ := p.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// ParseSteps returns the step count typed by the user, or def when the input
// is blank, not a number, or not positive.
func ParseSteps(input string, def int) int {
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 {
		return def
	}
	return n
}
