package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromContentType maps an HTTP content type to a fixture format.
// Anything that is not YAML is treated as JSON.
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(ct)
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		return FormatYAML
	}
	return FormatJSON
}

// DecodeExam parses an exam definition and validates it. Warnings are the
// non-fatal authoring findings from Prepare.
func DecodeExam(data []byte, format Format) (Exam, []string, error) {
	var e Exam
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&e); err != nil {
			return Exam{}, nil, fmt.Errorf("%w: %v", ErrInvalidExam, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return Exam{}, nil, fmt.Errorf("%w: %v", ErrInvalidExam, err)
		}
	}
	warnings, err := e.Prepare()
	if err != nil {
		return Exam{}, warnings, err
	}
	return e, warnings, nil
}

// LoadExamFile reads an exam from a .json, .yaml or .yml file.
func LoadExamFile(path string) (Exam, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Exam{}, nil, err
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	e, warnings, err := DecodeExam(data, format)
	if err != nil {
		return Exam{}, warnings, fmt.Errorf("%s: %w", path, err)
	}
	return e, warnings, nil
}
