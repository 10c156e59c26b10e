package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-exams/internal/client"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// loadExamFile reads one exam document and validates it locally.
func loadExamFile(path string) (exam.Exam, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return exam.Exam{}, err
	}
	var e exam.Exam
	if err := yaml.Unmarshal(raw, &e); err != nil {
		return exam.Exam{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := exam.ValidateExam(e); err != nil {
		return exam.Exam{}, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

func runImport(ctx context.Context, files []string, dryRun bool) error {
	exams := make([]exam.Exam, 0, len(files))
	for _, f := range files {
		e, err := loadExamFile(f)
		if err != nil {
			return err
		}
		exams = append(exams, e)
	}
	if dryRun {
		for _, e := range exams {
			fmt.Printf("ok  %s (%d questions)\n", e.ID, len(e.Questions))
		}
		return nil
	}

	user, pw, err := credentials()
	if err != nil {
		return err
	}
	c := client.New(client.Config{BaseURL: *server})
	if _, err := c.Login(ctx, user, pw); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	for _, e := range exams {
		saved, err := c.PutExam(ctx, e)
		if err != nil {
			return fmt.Errorf("upload %s: %w", e.ID, err)
		}
		fmt.Printf("saved %s (%d questions)\n", saved.ID, len(saved.Questions))
	}
	return nil
}
