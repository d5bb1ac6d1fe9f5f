/*
Package dsl builds formweave forms in Go instead of Markdown or YAML files.

It is useful for tests, generated forms and anywhere IDE type-checking beats a text file.
Blocks are ordered by the sequence in which they are added.

Example usage:

	b := dsl.New("signup").Title("Sign up")

	b.Add("role").
		MultipleChoice("What is your role?").
		Option("opt-dev", "Developer").
		Option("opt-pm", "Product").
		Branch("stack", dsl.When("choice:opt-dev", domain.OpEquals, true)).
		Go("age")

	b.Add("stack").ShortText("Which stack do you use?")
	b.Add("age").Number("How old are you?").Range(0, 130)
	b.Add("end").Statement("Thanks!")

	loader, err := b.Build()
	// ... pass loader to formweave.New(dir, formweave.WithLoader(loader))
*/
package dsl
