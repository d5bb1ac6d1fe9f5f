// Package testutils holds fixtures shared by tests across packages.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory, writes files into it and initializes a Loam
// repository on top. It fails the test immediately on error.
func SetupTestRepo(t *testing.T, files map[string]string, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	for name, content := range files {
		path := filepath.Join(absPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

func ptr(f float64) *float64 { return &f }

// SampleForm is a small onboarding form exercising every routing feature:
//
//	role (choice) --"dev"--> stack --> chat --> thanks
//	     |                                ^
//	     +--default------> age ---->18----+
//	                            \--else--> thanks
func SampleForm() *domain.Form {
	return &domain.Form{
		ID:    "onboarding",
		Title: "Onboarding",
		Blocks: []domain.Block{
			{ID: "role", Type: domain.BlockMultipleChoice, Order: 0, Title: "What is your role?", Required: true,
				Settings: domain.BlockSettings{Options: []domain.ChoiceOption{
					{ID: "opt-dev", Label: "Developer"},
					{ID: "opt-pm", Label: "Product"},
				}}},
			{ID: "stack", Type: domain.BlockShortText, Order: 1, Title: "Which stack do you use?"},
			{ID: "age", Type: domain.BlockNumber, Order: 2, Title: "How old are you?",
				Settings: domain.BlockSettings{Min: ptr(0), Max: ptr(130)}},
			{ID: "chat", Type: domain.BlockAIConversation, Order: 3, Title: "Tell us more",
				Settings: domain.BlockSettings{StarterPrompt: "What are you hoping to get out of this?", MaxQuestions: 3}},
			{ID: "thanks", Type: domain.BlockStatement, Order: 4, Title: "Thanks!"},
		},
		Connections: []domain.Connection{
			{
				ID:              "conn-role",
				SourceBlockID:   "role",
				DefaultTargetID: "age",
				IsExplicit:      true,
				Rules: []domain.Rule{{
					ID:            "rule-dev",
					TargetBlockID: "stack",
					Conditions: domain.ConditionGroup{
						LogicalOperator: domain.LogicAnd,
						Conditions: []domain.ConditionRule{
							{ID: "c-dev", Field: "choice:opt-dev", Operator: domain.OpEquals, Value: domain.BoolValue(true)},
						},
					},
				}},
			},
			{
				ID:              "conn-age",
				SourceBlockID:   "age",
				DefaultTargetID: "thanks",
				IsExplicit:      true,
				Rules: []domain.Rule{{
					ID:            "rule-adult",
					TargetBlockID: "chat",
					Conditions: domain.ConditionGroup{
						LogicalOperator: domain.LogicAnd,
						Conditions: []domain.ConditionRule{
							{ID: "c-adult", Field: "age", Operator: domain.OpGreaterThan, Value: domain.NumberValue(17)},
						},
					},
				}},
			},
		},
	}
}
