package dsl

import (
	"context"
	"testing"

	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onboarding() *Builder {
	b := New("onboarding").Title("Onboarding")

	b.Add("role").
		MultipleChoice("What is your role?").
		Required().
		Option("opt-dev", "Developer").
		Option("opt-pm", "Product").
		Branch("stack", When("choice:opt-dev", domain.OpEquals, true)).
		Go("age")

	b.Add("stack").ShortText("Which stack do you use?").Go("chat")

	b.Add("age").
		Number("How old are you?").
		Range(0, 130).
		Branch("chat", When("age", domain.OpGreaterThan, 17)).
		Go("thanks")

	b.Add("chat").Conversation("Tell us more", "What brings you here?", 3)
	b.Add("thanks").Statement("Thanks!")
	return b
}

func TestBuilder_Form(t *testing.T) {
	form, err := onboarding().Form()
	require.NoError(t, err)

	assert.Equal(t, "Onboarding", form.Title)
	require.Len(t, form.Blocks, 5)
	for i, b := range form.Blocks {
		assert.Equal(t, i, b.Order, b.ID)
	}

	role, ok := form.Block("role")
	require.True(t, ok)
	assert.Equal(t, domain.BlockMultipleChoice, role.Type)
	assert.True(t, role.Required)
	assert.Len(t, role.Settings.Options, 2)

	chat, _ := form.Block("chat")
	assert.Equal(t, 3, chat.Settings.MaxQuestions)

	conn, ok := form.ConnectionFor("age")
	require.True(t, ok)
	assert.Equal(t, "conn-age", conn.ID)
	assert.Equal(t, "thanks", conn.DefaultTargetID)
	require.Len(t, conn.Rules, 1)
	assert.Equal(t, "rule-age-1", conn.Rules[0].ID)
	cond := conn.Rules[0].Conditions.Conditions[0]
	assert.Equal(t, "rule-age-1-c1", cond.ID)
	assert.Equal(t, domain.NumberValue(17), cond.Value)

	_, ok = form.ConnectionFor("thanks")
	assert.False(t, ok)
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New("f")
	first := b.Add("q")
	assert.Same(t, first, b.Add("q"))
	first.Email("Your email?")

	form, err := b.Form()
	require.NoError(t, err)
	require.Len(t, form.Blocks, 1)
	assert.Equal(t, domain.BlockEmail, form.Blocks[0].Type)
}

func TestBuilder_BuildRoutes(t *testing.T) {
	loader, err := onboarding().Build()
	require.NoError(t, err)

	ctx := context.Background()
	ids, err := loader.ListForms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"onboarding"}, ids)

	form, err := loader.LoadForm(ctx, "onboarding")
	require.NoError(t, err)

	conn, ok := form.ConnectionFor("age")
	require.True(t, ok)

	target, err := runtime.ResolveNextBlock(conn, runtime.NewFormAnswers(form, domain.Answers{"age": domain.NumberAnswer(30)}))
	require.NoError(t, err)
	assert.Equal(t, "chat", target)

	target, err = runtime.ResolveNextBlock(conn, runtime.NewFormAnswers(form, domain.Answers{"age": domain.NumberAnswer(12)}))
	require.NoError(t, err)
	assert.Equal(t, "thanks", target)
}

func TestBuilder_BranchAnyAndExpression(t *testing.T) {
	b := New("f")
	b.Add("q").ShortText("Pick").
		BranchAny("a", When("q", domain.OpEquals, "x"), When("q", domain.OpEquals, "y")).
		Expression("b", `q == "z"`).
		Go("c")
	b.Add("a").Statement("A")
	b.Add("b").Statement("B")
	b.Add("c").Statement("C")

	form, err := b.Form()
	require.NoError(t, err)
	conn, _ := form.ConnectionFor("q")
	require.Len(t, conn.Rules, 2)
	assert.Equal(t, domain.LogicOr, conn.Rules[0].Conditions.LogicalOperator)
	assert.Len(t, conn.Rules[0].Conditions.Conditions, 2)
	assert.Equal(t, `q == "z"`, conn.Rules[1].Expression)
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("bad condition value", func(t *testing.T) {
		b := New("f")
		b.Add("q").ShortText("Q").Branch("r", When("q", domain.OpEquals, []int{1}))
		b.Add("r").Statement("R")
		_, err := b.Build()
		assert.ErrorContains(t, err, "block q")
	})

	t.Run("missing target", func(t *testing.T) {
		b := New("f")
		b.Add("q").ShortText("Q").Go("nowhere")
		_, err := b.Build()
		assert.ErrorContains(t, err, "Missing block 'nowhere'")
	})

	t.Run("conversation without starter", func(t *testing.T) {
		b := New("f")
		b.Add("chat").Conversation("Chat", " ", 2)
		_, err := b.Build()
		assert.ErrorContains(t, err, "no starter prompt")
	})
}
