package exam

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Answer is a submitted response: a single string (option id, "true"/"false",
// free text) or a list of strings for multi-select questions.
type Answer struct {
	Values []string
	List   bool
}

// Text builds a single-valued answer.
func Text(s string) Answer { return Answer{Values: []string{s}} }

// Choices builds a list answer.
func Choices(ids ...string) Answer { return Answer{Values: ids, List: true} }

// Empty reports whether the answer carries no content.
func (a Answer) Empty() bool {
	for _, v := range a.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (a Answer) String() string { return strings.Join(a.Values, ", ") }

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.List {
		vals := a.Values
		if vals == nil {
			vals = []string{}
		}
		return json.Marshal(vals)
	}
	if len(a.Values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(a.Values[0])
}

var errAnswerShape = errors.New("answer must be a string or a list of strings")

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*a = Answer{}
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Text(s)
		return nil
	case b[0] == '[':
		var vals []string
		if err := json.Unmarshal(b, &vals); err != nil {
			return errAnswerShape
		}
		*a = Answer{Values: vals, List: true}
		return nil
	default:
		return errAnswerShape
	}
}
