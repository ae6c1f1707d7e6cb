// Package deploy models the dev to test to prod promotion pipeline the
// service ships through. The shape is fixed at three stages; the validator
// catches configuration drift before a promotion runs against the wrong
// project.
package deploy

import (
	"fmt"

	"namereg/internal/platform/config"
	dErrors "namereg/pkg/domain-errors"
)

// Stage names, in promotion order.
const (
	StageDev  = "dev"
	StageTest = "test"
	StageProd = "prod"
)

// Stage is one promotion target.
type Stage struct {
	Name           string `json:"name"`
	Project        string `json:"project"`
	ServiceAccount string `json:"serviceAccount"`
	// VerificationJob names an automated post-deploy check. The pipeline
	// runs without one; promotion is gated manually.
	VerificationJob string `json:"verificationJob,omitempty"`
}

// Pipeline is the full promotion path for one service.
type Pipeline struct {
	Service string  `json:"service"`
	Stages  []Stage `json:"stages"`
}

// FromConfig binds the environment's stage settings into a Pipeline.
func FromConfig(cfg config.Deploy) Pipeline {
	return Pipeline{
		Service: cfg.Service,
		Stages: []Stage{
			{Name: StageDev, Project: cfg.DevProject, ServiceAccount: cfg.DevServiceAccount},
			{Name: StageTest, Project: cfg.TestProject, ServiceAccount: cfg.TestServiceAccount},
			{Name: StageProd, Project: cfg.ProdProject, ServiceAccount: cfg.ProdServiceAccount},
		},
	}
}

// Validate checks the pipeline invariants: exactly the three stages in
// order, every binding present, and no project or service account shared
// between stages.
func (p Pipeline) Validate() error {
	if p.Service == "" {
		return dErrors.New(dErrors.CodeValidation, "pipeline service is required")
	}
	if len(p.Stages) != 3 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("pipeline needs exactly 3 stages, got %d", len(p.Stages)))
	}

	wantOrder := []string{StageDev, StageTest, StageProd}
	projects := make(map[string]string, 3)
	accounts := make(map[string]string, 3)
	for i, st := range p.Stages {
		if st.Name != wantOrder[i] {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("stage %d must be %q, got %q", i, wantOrder[i], st.Name))
		}
		if st.Project == "" || st.ServiceAccount == "" {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("stage %s is missing its project or service account", st.Name))
		}
		if st.VerificationJob != "" {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("stage %s configures an automated verification job; promotion is gated manually", st.Name))
		}
		if other, dup := projects[st.Project]; dup {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("stages %s and %s share project %s", other, st.Name, st.Project))
		}
		if other, dup := accounts[st.ServiceAccount]; dup {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("stages %s and %s share service account %s", other, st.Name, st.ServiceAccount))
		}
		projects[st.Project] = st.Name
		accounts[st.ServiceAccount] = st.Name
	}
	return nil
}

// Next returns the stage a build in the given stage promotes to, or empty
// when the stage is terminal.
func (p Pipeline) Next(stage string) (Stage, bool) {
	for i, st := range p.Stages {
		if st.Name == stage && i+1 < len(p.Stages) {
			return p.Stages[i+1], true
		}
	}
	return Stage{}, false
}
