package harness

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sctrl/eventstack/internal/es"
)

type scenarioFile struct {
	Name   string `yaml:"name"`
	Entity string `yaml:"entity"`
	Seed   []struct {
		Event   string         `yaml:"event"`
		Payload map[string]any `yaml:"payload"`
	} `yaml:"seed"`
	Steps []struct {
		Action  string         `yaml:"action"`
		Payload map[string]any `yaml:"payload"`
		Expect  *struct {
			Outcome string                    `yaml:"outcome"`
			Code    string                    `yaml:"code"`
			Views   map[string]map[string]any `yaml:"views"`
		} `yaml:"expect"`
	} `yaml:"steps"`
}

// LoadScenario parses a YAML scenario document and binds it to the
// definition. Actions and views are referenced by name and resolved at
// run time against the definition's registries.
func LoadScenario(data []byte, def *es.StackDefinition) (*Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("parse scenario: missing name")
	}

	s := NewScenario(file.Name, def)
	if file.Entity != "" {
		s.WithEntityID(file.Entity)
	}
	for _, seed := range file.Seed {
		s.WithEvent(seed.Event, seed.Payload)
	}
	for i, st := range file.Steps {
		if st.Action == "" {
			return nil, fmt.Errorf("parse scenario %s: step %d missing action", file.Name, i)
		}
		s.OnAction(st.Action, st.Payload)
		if st.Expect == nil {
			continue
		}
		switch st.Expect.Outcome {
		case OutcomeCommit:
			s.ExpectCommit()
		case OutcomeReject:
			s.ExpectReject(st.Expect.Code)
		case "":
		default:
			return nil, fmt.Errorf("parse scenario %s: step %d unknown outcome %q", file.Name, i, st.Expect.Outcome)
		}
		for viewType, expected := range st.Expect.Views {
			s.ExpectView(viewType, es.State(expected))
		}
	}
	return s, nil
}
