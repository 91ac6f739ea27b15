package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase once, from an environment variable
// or by prompting on the terminal.
type Source struct {
	envVar string
	prompt string

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting with the given label.
func NewSource(envVar, label string) *Source {
	if label == "" {
		label = "keystore"
	}
	return &Source{envVar: strings.TrimSpace(envVar), prompt: label}
}

// Get returns the cached passphrase. An environment variable that is set but
// empty selects an unprotected keystore, which is how nodes create their
// local owner key.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				s.value = value
				return
			}
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s passphrase required; set %s or run interactively", s.prompt, s.envVar)
			} else {
				s.err = fmt.Errorf("%s passphrase required and no terminal available", s.prompt)
			}
			return
		}
		fmt.Fprintf(os.Stderr, "Enter %s passphrase: ", s.prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = errors.New("passphrase cannot be empty")
			return
		}
		s.value = string(raw)
	})
	return s.value, s.err
}
