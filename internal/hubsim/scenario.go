package hubsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is the YAML form of a simulator setup.
type Scenario struct {
	Token          string       `yaml:"token"`
	Standalone     bool         `yaml:"standalone"`
	PageSize       int          `yaml:"page_size"`
	RejectTriggers int          `yaml:"reject_triggers"`
	OmitJobID      bool         `yaml:"omit_job_id"`
	MoveFailures   int          `yaml:"move_failures"`
	Projects       []Project    `yaml:"projects"`
	Repositories   []Repository `yaml:"repositories"`
	Collections    []Collection `yaml:"collections"`
}

// DefaultScenario has one of everything, all succeeding after a few polls.
func DefaultScenario() Scenario {
	return Scenario{
		Projects: []Project{
			{ID: 1, Name: "demo", CanUpdate: true, Script: []string{"pending", "running", "successful"}},
			{ID: 2, Name: "manual", CanUpdate: false},
		},
		Repositories: []Repository{
			{Name: "rh-certified", Remote: "/api/galaxy/pulp/api/v3/remotes/ansible/collection/rh-certified/", Script: []string{"waiting", "running", "completed"}},
		},
		Collections: []Collection{{Namespace: "demo", Name: "tools", Version: "1.0.0", VisibleAfter: 1}},
	}
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	return sc, nil
}

// NewServer returns a simulator configured from sc.
func NewServer(sc Scenario) *Server {
	return &Server{
		Token:          sc.Token,
		Standalone:     sc.Standalone,
		PageSize:       sc.PageSize,
		RejectTriggers: sc.RejectTriggers,
		OmitJobID:      sc.OmitJobID,
		MoveFailures:   sc.MoveFailures,
		Projects:       sc.Projects,
		Repositories:   sc.Repositories,
		Collections:    sc.Collections,
	}
}
