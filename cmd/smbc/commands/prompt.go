package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	"github.com/cloudsoda/smbc"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

type prompter interface {
	Input(label, defaultValue string) (string, error)
	Password(label string) (string, error)
}

// terminalPrompt asks on the controlling terminal.
type terminalPrompt struct{}

func (terminalPrompt) Input(label, defaultValue string) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}

	result, err := p.Run()
	return result, wrapPromptError(err)
}

func (terminalPrompt) Password(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}

	result, err := p.Run()
	return result, wrapPromptError(err)
}

func wrapPromptError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrEOF) {
		return ErrAborted
	}
	return err
}

// credState is what the resolver knows before asking anybody.
type credState struct {
	known       smbc.Credentials
	hasPassword bool
	prompt      prompter
	attempts    int
}

// newResolver returns the CLI's credential resolver. The first attempt uses
// known credentials when they are complete; missing pieces, and every retry,
// go to the prompt. Without a prompt the resolver gives up instead.
func newResolver(known smbc.Credentials, hasPassword bool, p prompter) smbc.CredentialResolver {
	return smbc.BindResolver(&credState{known: known, hasPassword: hasPassword, prompt: p}, resolveCredentials)
}

func resolveCredentials(ctx context.Context, st *credState, server, share string) (smbc.Credentials, error) {
	st.attempts++

	creds := st.known
	if st.attempts == 1 && creds.Username != "" && st.hasPassword {
		return creds, nil
	}

	if st.prompt == nil {
		if st.attempts > 1 {
			return smbc.Credentials{}, errors.New("credentials rejected and no terminal to ask for new ones")
		}
		return smbc.Credentials{}, errors.New("no password given and no terminal to ask for one")
	}

	if err := ctx.Err(); err != nil {
		return smbc.Credentials{}, err
	}

	var err error
	if creds.Username == "" || st.attempts > 1 {
		creds.Username, err = st.prompt.Input(fmt.Sprintf("Username for %s", server), creds.Username)
		if err != nil {
			return smbc.Credentials{}, err
		}
	}

	label := fmt.Sprintf("Password for %s@%s", creds.Username, server)
	if share != "" {
		label = fmt.Sprintf("Password for %s@%s/%s", creds.Username, server, share)
	}
	creds.Password, err = st.prompt.Password(label)
	if err != nil {
		return smbc.Credentials{}, err
	}

	return creds, nil
}
