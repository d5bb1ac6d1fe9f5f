package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/aretw0/formweave/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const surveyForm = `---
id: survey
title: Survey
blocks:
  - {id: q1, type: short_text, order: 0, title: Continue?}
  - {id: accepted, type: statement, order: 1, title: Welcome}
  - {id: declined, type: statement, order: 2, title: Bye}
connections:
  - id: conn-q1
    source_block_id: q1
    default_target_id: declined
    rules:
      - id: rule-y
        target_block_id: accepted
        conditions:
          logical_operator: AND
          conditions:
            - {id: c1, field: q1, operator: equals, value: "y"}
---
A two-way survey.
`

func formsDir(t *testing.T) string {
	t.Helper()
	dir, _ := testutils.SetupTestRepo(t, map[string]string{"survey.md": surveyForm})
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "formweave version")
}

func TestRoute(t *testing.T) {
	dir := formsDir(t)

	out, err := run(t, "route", "survey", "q1", "--dir", dir, "--answers", `{"q1": "y"}`)
	require.NoError(t, err)
	assert.Equal(t, "accepted\n", out)

	out, err = run(t, "route", "survey", "q1", "--dir", dir, "--answers", `{"q1": "n"}`)
	require.NoError(t, err)
	assert.Equal(t, "declined\n", out)

	_, err = run(t, "route", "survey", "accepted", "--dir", dir, "--answers", "")
	assert.Error(t, err)

	out, err = run(t, "route", "survey", "accepted", "--dir", dir, "--positional")
	require.NoError(t, err)
	assert.Equal(t, "declined (positional)\n", out)

	out, err = run(t, "route", "survey", "declined", "--dir", dir, "--positional")
	require.NoError(t, err)
	assert.Equal(t, "end\n", out)
}

func TestValidateAndGraph(t *testing.T) {
	dir := formsDir(t)

	out, err := run(t, "validate", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Form survey is valid!")

	out, err = run(t, "graph", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "accepted")
}

func TestConversationLs_Empty(t *testing.T) {
	out, err := run(t, "conversation", "ls", "--dir", formsDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations found.")

	_, err = run(t, "conversation", "rm", "--dir", formsDir(t))
	assert.ErrorContains(t, err, "--all")
}
