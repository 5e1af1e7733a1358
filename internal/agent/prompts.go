package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// languagePlaceholder is replaced with the target language in the
// translation prompt.
const languagePlaceholder = "{{language}}"

type Prompts struct {
	Summarize string `yaml:"SUMMARIZE_PROMPT"`
	Translate string `yaml:"TRANSLATE_PROMPT"`
}

// TranslateFor renders the translation prompt for language.
func (p Prompts) TranslateFor(language string) string {
	return strings.ReplaceAll(p.Translate, languagePlaceholder, language)
}

// LoadPrompts returns the built-in prompts, with any non-empty entries from
// the YAML file at path taking precedence. An empty path uses the built-ins.
func LoadPrompts(path string) (Prompts, error) {
	var prompts Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("parse built-in prompts: %w", err)
	}
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	if override.Summarize != "" {
		prompts.Summarize = override.Summarize
	}
	if override.Translate != "" {
		prompts.Translate = override.Translate
	}
	return prompts, nil
}
