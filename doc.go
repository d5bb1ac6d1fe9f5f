/*
Package formweave is a branching engine for conversational forms.

A form is an ordered list of blocks. After each block, the connection leaving it decides
where the respondent goes next: its rules are evaluated in order and the first whose
conditions hold wins, otherwise the default target applies. AI-conversation blocks run a
bounded dialogue in which a question generator asks follow-ups, answers can be revisited
and edited, and the form advances once the conversation completes.

# Architecture

The engine is hexagonal. Rule evaluation and conversation transitions are pure functions
over explicit state (internal/runtime); forms, connections and conversations reach them
through ports (pkg/ports) implemented by adapters for memory, files, Loam, Redis and SQL.
The host owns the I/O: a terminal (Runner), the HTTP API or an MCP client.

# Usage

	eng, err := formweave.New("./forms",
		formweave.WithGenerator(llm.New(baseURL, "gpt-4o-mini", apiKey)),
		formweave.WithPositionalFallback(true),
	)
	if err != nil {
		log.Fatal(err)
	}

	form, _ := eng.LoadForm(ctx, "onboarding")
	next, err := eng.ResolveNext(ctx, form, "role", domain.Answers{
		"role": domain.TextAnswer("opt-dev"),
	})

	res, _ := eng.StartConversation(ctx, form, "chat", "response-42")
	res, err = eng.SubmitAnswer(ctx, res.State.ID, 0, "Ship faster")
	if res.Advance {
		// move on to the block after "chat"
	}
*/
package formweave
