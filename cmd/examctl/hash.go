package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/mind-engage/mindengage-exams/internal/users"
)

var errPasswordMismatch = errors.New("passwords do not match")

func runHashPassword(out io.Writer) error {
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, "Repeat: ")
	again, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	if string(pw) != string(again) {
		return errPasswordMismatch
	}
	if len(pw) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	hash, err := users.HashPassword(string(pw))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
