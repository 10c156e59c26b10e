package exam

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

// custom tags and their messages
var customTags = map[string]string{
	"min_options":       "{0} needs at least two options",
	"one_correct":       "{0} needs at least one correct option",
	"true_false_pair":   "{0} of a true/false question must be exactly two",
	"unique_option_ids": "{0} must have unique ids",
	"unique_questions":  "{0} must have unique ids",
	"passing_le_total":  "{0} cannot exceed the exam's total marks",
	"window_order":      "{0} must be after starts_at",
	"timed_duration":    "{0} must be positive when time_limit is set",
}

func init() {
	validate = validator.New()

	eng := en.New()
	uni := ut.New(eng, eng)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON names, not Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for tag, text := range customTags {
		tag, text := tag, text
		_ = validate.RegisterTranslation(tag, translator,
			func(t ut.Translator) error { return t.Add(tag, text, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(tag, fe.Field())
				return s
			},
		)
	}

	validate.RegisterStructValidation(questionStructValidation, Question{})
	validate.RegisterStructValidation(examStructValidation, Exam{})
}

func questionStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(Question)
	if !ok || !q.Type.HasOptions() {
		return
	}
	if len(q.Options) < 2 {
		sl.ReportError(q.Options, "options", "Options", "min_options", "")
		return
	}
	if q.Type == TypeTrueFalse && len(q.Options) != 2 {
		sl.ReportError(q.Options, "options", "Options", "true_false_pair", "")
	}
	correct := 0
	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
		if _, dup := seen[o.ID]; dup {
			sl.ReportError(q.Options, "options", "Options", "unique_option_ids", "")
		}
		seen[o.ID] = struct{}{}
	}
	if correct == 0 {
		sl.ReportError(q.Options, "options", "Options", "one_correct", "")
	}
}

func examStructValidation(sl validator.StructLevel) {
	e, ok := sl.Current().Interface().(Exam)
	if !ok {
		return
	}
	seen := make(map[string]struct{}, len(e.Questions))
	for _, q := range e.Questions {
		if _, dup := seen[q.ID]; dup {
			sl.ReportError(e.Questions, "questions", "Questions", "unique_questions", "")
			break
		}
		seen[q.ID] = struct{}{}
	}
	if e.PassingMarks > e.MaxMarks() {
		sl.ReportError(e.PassingMarks, "passing_marks", "PassingMarks", "passing_le_total", "")
	}
	if e.StartsAt != nil && e.EndsAt != nil && !e.EndsAt.After(*e.StartsAt) {
		sl.ReportError(e.EndsAt, "ends_at", "EndsAt", "window_order", "")
	}
	if e.TimeLimit && e.DurationMin <= 0 {
		sl.ReportError(e.DurationMin, "duration_min", "DurationMin", "timed_duration", "")
	}
}

// ValidateExam checks field rules and the question invariants. The returned
// error is a validation error with one detail per offending field.
func ValidateExam(e Exam) error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		msg := fe.Translate(translator)
		details[key] = msg
		msgs = append(msgs, key+": "+msg)
	}
	return apperrors.NewValidation("invalid exam: " + strings.Join(msgs, "; ")).WithDetails(details)
}
