package formweave_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/pkg/adapters/memory"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

const surveyYAML = `
id: survey
blocks:
  - {id: A, type: short_text, order: 0}
  - {id: q1, type: short_text, order: 1}
  - {id: B, type: statement, order: 2}
  - {id: C, type: statement, order: 3}
  - {id: D, type: statement, order: 4}
  - id: chat
    type: ai_conversation
    order: 5
    settings: {starter_prompt: "What brought you here?", max_questions: 2}
connections:
  - {source_block_id: A, default_target_id: B}
  - source_block_id: q1
    default_target_id: D
    rules:
      - target_block_id: C
        conditions:
          logical_operator: AND
          conditions:
            - {field: q1, operator: equals, value: "yes"}
`

func newSurveyEngine(opts ...formweave.Option) *formweave.Engine {
	loader, err := memory.NewLoader(map[string]string{"survey": surveyYAML})
	if err != nil {
		log.Fatal(err)
	}
	engine, err := formweave.New("", append([]formweave.Option{formweave.WithLoader(loader)}, opts...)...)
	if err != nil {
		log.Fatal(err)
	}
	return engine
}

// A connection without rules always leads to its default target.
func ExampleEngine_ResolveNext_unconditional() {
	ctx := context.Background()
	engine := newSurveyEngine()
	form, _ := engine.LoadForm(ctx, "survey")

	next, err := engine.ResolveNext(ctx, form, "A", domain.Answers{"A": domain.TextAnswer("anything")})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(next.BlockID)
	// Output: B
}

// The first matching rule wins; otherwise the default target applies.
func ExampleEngine_ResolveNext_rules() {
	ctx := context.Background()
	engine := newSurveyEngine()
	form, _ := engine.LoadForm(ctx, "survey")

	yes, _ := engine.ResolveNext(ctx, form, "q1", domain.Answers{"q1": domain.TextAnswer("yes")})
	no, _ := engine.ResolveNext(ctx, form, "q1", domain.Answers{"q1": domain.TextAnswer("no")})
	fmt.Println(yes.BlockID, no.BlockID)
	// Output: C D
}

// A two-question conversation completes after the second answer and signals the form once.
func ExampleEngine_SubmitAnswer() {
	ctx := context.Background()
	generator := ports.GeneratorFunc(func(ctx context.Context, req domain.QuestionRequest) (domain.GeneratedQuestion, error) {
		return domain.GeneratedQuestion{Text: "next question"}, nil
	})
	engine := newSurveyEngine(formweave.WithGenerator(generator))
	form, _ := engine.LoadForm(ctx, "survey")

	res, err := engine.StartConversation(ctx, form, "chat", "resp-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.State.FrontierQuestion())

	res, _ = engine.SubmitAnswer(ctx, res.State.ID, 0, "Curiosity")
	fmt.Println(res.State.FrontierQuestion(), res.State.EffectiveComplete(), res.Advance)

	res, _ = engine.SubmitAnswer(ctx, res.State.ID, 1, "Nothing else")
	fmt.Println(res.State.EffectiveComplete(), res.Advance)
	// Output:
	// What brought you here?
	// next question false false
	// true true
}
