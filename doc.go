/*
Package canvas is the conversation engine of the Business Canvas Builder.

The builder walks a chat thread through nine fixed questions (Dream, Purpose,
Audience, Problem, Value, Channels, Revenue, Costs, Next actions), preceded by
one question for the company name. Each question is shown as a widget; the
answer comes back as a widget action and moves the thread one step forward.

# Architecture

The Engine implements chatkit.Handler. It is wired from small parts:

  - session.Manager serialises the turns of one thread and persists its state
    through any ports.StateStore (memory, file, redis, sqlite).
  - The wizard sequencer applies the linear advance rule.
  - widget.Renderer builds the intro and steps widgets from templates.

Widgets are rendered before the new state is committed, so a thread never
points at a step whose widget could not be shown.

# Usage

	eng, err := canvas.New(canvas.WithStore(memory.NewStore()))
	if err != nil {
		log.Fatal(err)
	}
	srv := chatkit.NewServer(eng)

	res, err := srv.Process(ctx, body)
	// stream *chatkit.StreamingResult frames or write *chatkit.NonStreamingResult.JSON

# Actions

	bc.intro.submit  {"answer": "..."}  records the company name
	bc.step.submit   {"answer": "..."}  records a free-text answer
	bc.step.choice   {"label": "..."}   records a quick reply; empty labels are ignored

The unprefixed tags intro.submit, step.submit and step.choice are accepted too.
Any other action type is ignored without error.
*/
package canvas
