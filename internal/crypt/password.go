package crypt

import (
	"errors"
	"fmt"
	"os"
)

// MinPasswordLen is the minimum accepted password size in bytes.
const MinPasswordLen = 8

var (
	// ErrPasswordFileEmpty reports a present but empty password file.
	ErrPasswordFileEmpty = errors.New("password file is empty")
	// ErrPasswordTooShort reports a password below MinPasswordLen.
	ErrPasswordTooShort = errors.New("password must be at least 8 bytes")
)

// ReadPassword loads the password from path. The file's entire
// contents form the password; a trailing newline is part of it.
func ReadPassword(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("no password file has been set")
	}
	pass, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open password file: %w", err)
	}
	if len(pass) == 0 {
		return nil, ErrPasswordFileEmpty
	}
	if len(pass) < MinPasswordLen {
		return nil, ErrPasswordTooShort
	}
	return pass, nil
}
