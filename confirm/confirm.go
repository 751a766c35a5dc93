// Package confirm abstracts the interactive yes/no prompt so engines can be
// tested with deterministic answers instead of real stdin.
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirmer answers a yes/no prompt. Implementations may block indefinitely;
// there is deliberately no timeout on operator confirmation.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Stdin prompts on stdout and reads the answer from an input stream.
type Stdin struct {
	In  io.Reader
	Out io.Writer
}

// NewStdin returns a Confirmer wired to the process's stdin/stdout.
func NewStdin() *Stdin {
	return &Stdin{In: os.Stdin, Out: os.Stdout}
}

func (s *Stdin) Confirm(prompt string) bool {
	fmt.Fprintf(s.Out, "%s (y/n): ", prompt)
	reader := bufio.NewReader(s.In)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// Auto answers every prompt with a fixed value. Auto(true) backs the
// skip-confirmation flags; Auto(false) is the deterministic refusal used in
// tests.
type Auto bool

func (a Auto) Confirm(string) bool { return bool(a) }
