package sandbox

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LanguageTable maps human language names to sandbox language ids.
// Lookups are case-insensitive and ignore surrounding whitespace.
type LanguageTable struct {
	IDs     map[string]int    `yaml:"languages"`
	Aliases map[string]string `yaml:"aliases"`
}

// DefaultLanguages is the Judge0 CE mapping the service ships with.
func DefaultLanguages() LanguageTable {
	return LanguageTable{
		IDs: map[string]int{
			"python":     71,
			"javascript": 63,
			"java":       62,
			"cpp":        54,
			"csharp":     51,
			"c":          50,
			"typescript": 74,
			"ruby":       72,
			"go":         60,
			"rust":       73,
		},
		Aliases: map[string]string{
			"py":      "python",
			"python3": "python",
			"js":      "javascript",
			"node":    "javascript",
			"c++":     "cpp",
			"c#":      "csharp",
			"cs":      "csharp",
			"ts":      "typescript",
			"rb":      "ruby",
			"golang":  "go",
			"rs":      "rust",
		},
	}
}

// Resolve returns the sandbox id for name, or ErrUnsupportedLanguage.
func (t LanguageTable) Resolve(name string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canon, ok := t.Aliases[key]; ok {
		key = strings.ToLower(canon)
	}
	if id, ok := t.IDs[key]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
}

// Merge returns a copy of t with the entries of o layered on top.
func (t LanguageTable) Merge(o LanguageTable) LanguageTable {
	out := LanguageTable{IDs: map[string]int{}, Aliases: map[string]string{}}
	for k, v := range t.IDs {
		out.IDs[k] = v
	}
	for k, v := range t.Aliases {
		out.Aliases[k] = v
	}
	for k, v := range o.IDs {
		out.IDs[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for k, v := range o.Aliases {
		out.Aliases[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// LoadLanguages reads a YAML override file and merges it over the defaults.
//
//	languages:
//	  kotlin: 78
//	aliases:
//	  kt: kotlin
func LoadLanguages(path string) (LanguageTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LanguageTable{}, fmt.Errorf("read language table: %w", err)
	}
	var override LanguageTable
	if err := yaml.Unmarshal(data, &override); err != nil {
		return LanguageTable{}, fmt.Errorf("parse language table: %w", err)
	}
	return DefaultLanguages().Merge(override), nil
}
