// Command examctl imports exams, takes them from a terminal and hashes
// passwords for the admin bootstrap.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/mind-engage/mindengage-exams/internal/logger"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	server   = kingpin.Flag("server", "API base URL").Default("http://localhost:8080").Envar("EXAMCTL_SERVER").String()
	username = kingpin.Flag("user", "Username to log in with").Short('u').Envar("EXAMCTL_USER").String()
	password = kingpin.Flag("password", "Password; prompted when empty").Envar("EXAMCTL_PASSWORD").String()
	logLevel = kingpin.Flag("log-level", "debug|info|warn|error").Default("warn").String()

	importCmd   = kingpin.Command("import", "Upload exams from YAML files")
	importFiles = importCmd.Arg("files", "Exam YAML files").Required().ExistingFiles()
	importDry   = importCmd.Flag("dry-run", "Validate only, do not upload").Bool()

	takeCmd  = kingpin.Command("take", "Take an exam in this terminal")
	takeExam = takeCmd.Arg("exam", "Exam id").Required().String()

	hashCmd = kingpin.Command("hash-password", "Print a bcrypt hash for ADMIN_PASS_HASH")
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate)
	kingpin.CommandLine.Help = "MindEngage exams command line"
	cmd := kingpin.Parse()

	log := logger.Configure(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case importCmd.FullCommand():
		err = runImport(ctx, *importFiles, *importDry)
	case takeCmd.FullCommand():
		err = runTake(ctx, *takeExam, os.Stdin, os.Stdout, log)
	case hashCmd.FullCommand():
		err = runHashPassword(os.Stdout)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("failed")
		os.Exit(1)
	}
}

// credentials returns the configured user and password, prompting for the
// password when it was not given.
func credentials() (string, string, error) {
	if *username == "" {
		return "", "", fmt.Errorf("--user is required")
	}
	if *password != "" {
		return *username, *password, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", "", err
	}
	return *username, string(pw), nil
}
