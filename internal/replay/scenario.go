package replay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted browsing session: page loads and user actions in
// one tab, with virtual time passing only through wait steps.
type Scenario struct {
	Name     string `yaml:"name"`
	AutoSave bool   `yaml:"auto_save"`
	Steps    []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Load    *LoadStep     `yaml:"load,omitempty"`
	Click   string        `yaml:"click,omitempty"`
	Type    *TypeStep     `yaml:"type,omitempty"`
	Key     *KeyStep      `yaml:"key,omitempty"`
	Submit  string        `yaml:"submit,omitempty"`
	Append  *AppendStep   `yaml:"append,omitempty"`
	Remove  string        `yaml:"remove,omitempty"`
	Visible *bool         `yaml:"visible,omitempty"`
	Wait    time.Duration `yaml:"wait,omitempty"`
}

type LoadStep struct {
	URL  string `yaml:"url"`
	HTML string `yaml:"html"`
}

type TypeStep struct {
	Selector string `yaml:"selector"`
	Text     string `yaml:"text"`
}

type KeyStep struct {
	Selector string `yaml:"selector"`
	Key      string `yaml:"key"`
}

type AppendStep struct {
	Selector string `yaml:"selector"`
	HTML     string `yaml:"html"`
}

func (s Step) kind() string {
	var kinds []string
	if s.Load != nil {
		kinds = append(kinds, "load")
	}
	if s.Click != "" {
		kinds = append(kinds, "click")
	}
	if s.Type != nil {
		kinds = append(kinds, "type")
	}
	if s.Key != nil {
		kinds = append(kinds, "key")
	}
	if s.Submit != "" {
		kinds = append(kinds, "submit")
	}
	if s.Append != nil {
		kinds = append(kinds, "append")
	}
	if s.Remove != "" {
		kinds = append(kinds, "remove")
	}
	if s.Visible != nil {
		kinds = append(kinds, "visible")
	}
	if s.Wait != 0 {
		kinds = append(kinds, "wait")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if step.kind() == "" {
			return nil, fmt.Errorf("scenario %q step %d: exactly one action required", sc.Name, i+1)
		}
		if step.Wait < 0 {
			return nil, fmt.Errorf("scenario %q step %d: negative wait", sc.Name, i+1)
		}
	}
	return &sc, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	return Parse(data)
}
