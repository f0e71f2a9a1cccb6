package exam

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeShortAnswer    QuestionType = "short_answer"
	TypeCode           QuestionType = "code"
)

// Body carries the per-type grading data of a question. The set of
// implementations is closed: MultipleChoice, ShortAnswer and Code.
type Body interface {
	Type() QuestionType
	isBody()
}

type MultipleChoice struct {
	Options       []string
	CorrectAnswer string
}

type ShortAnswer struct {
	CorrectAnswer string
}

type Code struct {
	Language     string
	CodeTemplate string
	Solution     string
	TestCases    []TestCase
	Hints        []string
}

type TestCase struct {
	ID             string `json:"id,omitempty" yaml:"id,omitempty"`
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expected_output" yaml:"expected_output"`
	IsHidden       bool   `json:"is_hidden,omitempty" yaml:"is_hidden,omitempty"`
	// Points is an optional per-test weight, only used by the weighted policy.
	Points int `json:"points,omitempty" yaml:"points,omitempty"`
}

func (MultipleChoice) Type() QuestionType { return TypeMultipleChoice }
func (ShortAnswer) Type() QuestionType    { return TypeShortAnswer }
func (Code) Type() QuestionType           { return TypeCode }

func (MultipleChoice) isBody() {}
func (ShortAnswer) isBody()    {}
func (Code) isBody()           {}

// Weighted reports whether every test case carries its own points.
func (c Code) Weighted() bool {
	if len(c.TestCases) == 0 {
		return false
	}
	for _, tc := range c.TestCases {
		if tc.Points <= 0 {
			return false
		}
	}
	return true
}

// VisibleAndHidden counts the test cases on each side of the visibility line.
func (c Code) VisibleAndHidden() (visible, hidden int) {
	for _, tc := range c.TestCases {
		if tc.IsHidden {
			hidden++
		} else {
			visible++
		}
	}
	return
}

type Question struct {
	ID     string
	Prompt string
	Points int
	Body   Body
}

func (q Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// questionWire is the flat, type-discriminated form used on the wire and in
// fixture files.
type questionWire struct {
	ID            string       `json:"id" yaml:"id"`
	Type          QuestionType `json:"type" yaml:"type"`
	Prompt        string       `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Points        int          `json:"points" yaml:"points"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty" yaml:"correct_answer,omitempty"`
	Language      string       `json:"language,omitempty" yaml:"language,omitempty"`
	CodeTemplate  string       `json:"code_template,omitempty" yaml:"code_template,omitempty"`
	Solution      string       `json:"solution,omitempty" yaml:"solution,omitempty"`
	TestCases     []TestCase   `json:"test_cases,omitempty" yaml:"test_cases,omitempty"`
	Hints         []string     `json:"hints,omitempty" yaml:"hints,omitempty"`
}

func (q Question) toWire() questionWire {
	w := questionWire{ID: q.ID, Prompt: q.Prompt, Points: q.Points}
	switch b := q.Body.(type) {
	case MultipleChoice:
		w.Type = TypeMultipleChoice
		w.Options = b.Options
		w.CorrectAnswer = b.CorrectAnswer
	case ShortAnswer:
		w.Type = TypeShortAnswer
		w.CorrectAnswer = b.CorrectAnswer
	case Code:
		w.Type = TypeCode
		w.Language = b.Language
		w.CodeTemplate = b.CodeTemplate
		w.Solution = b.Solution
		w.TestCases = b.TestCases
		w.Hints = b.Hints
	}
	return w
}

func (w questionWire) toQuestion() (Question, error) {
	q := Question{ID: w.ID, Prompt: w.Prompt, Points: w.Points}
	switch w.Type {
	case TypeMultipleChoice:
		q.Body = MultipleChoice{Options: w.Options, CorrectAnswer: w.CorrectAnswer}
	case TypeShortAnswer:
		q.Body = ShortAnswer{CorrectAnswer: w.CorrectAnswer}
	case TypeCode:
		q.Body = Code{
			Language:     w.Language,
			CodeTemplate: w.CodeTemplate,
			Solution:     w.Solution,
			TestCases:    w.TestCases,
			Hints:        w.Hints,
		}
	default:
		return Question{}, fmt.Errorf("question %q: unknown type %q", w.ID, w.Type)
	}
	return q, nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.toWire())
}

// UnmarshalJSON rejects unknown fields in the question and its test cases;
// a misspelt is_hidden would otherwise publish a hidden test.
func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	out, err := w.toQuestion()
	if err != nil {
		return err
	}
	*q = out
	return nil
}

func (q Question) MarshalYAML() (interface{}, error) {
	return q.toWire(), nil
}

// UnmarshalYAML is as strict as UnmarshalJSON. node.Decode does not inherit
// the caller's KnownFields setting, so the node is decoded again on its own.
func (q *Question) UnmarshalYAML(node *yaml.Node) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	var w questionWire
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("question at line %d: %w", node.Line, err)
	}
	out, err := w.toQuestion()
	if err != nil {
		return err
	}
	*q = out
	return nil
}
