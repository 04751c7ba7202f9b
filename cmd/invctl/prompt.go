package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// interactive reports whether in is a terminal a form can run on.
func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readSecretLine reads one line from in, stripping the trailing newline.
func readSecretLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

// promptCredentials asks for whatever of username and password is missing.
func promptCredentials(username, password *string) error {
	var fields []huh.Field
	if *username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Value(username).
			Validate(required("username")))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(required("password")))
	}
	if len(fields) == 0 {
		return nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// promptNewPassword asks for a password twice.
func promptNewPassword(password *string) error {
	var repeat string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("New password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(required("password")),
		huh.NewInput().
			Title("Repeat password").
			EchoMode(huh.EchoModePassword).
			Value(&repeat),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	if repeat != *password {
		return errors.New("passwords do not match")
	}
	return nil
}

// confirm asks a yes/no question.
func confirm(message string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(message).Value(&ok)))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return ok, nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
