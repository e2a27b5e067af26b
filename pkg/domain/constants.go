package domain

const (
	// CompanyKey is the answer key for the very first answer, given before
	// the scripted steps begin.
	CompanyKey = "company"

	// NotStarted is the CurrentStep value of a thread that has not received
	// its first answer yet.
	NotStarted = -1
)

// Wire tags for widget actions.
const (
	ActionIntroSubmit = "bc.intro.submit"
	ActionStepSubmit  = "bc.step.submit"
	ActionStepChoice  = "bc.step.choice"
)

// Payload field names.
const (
	FieldAnswer = "answer"
	FieldLabel  = "label"
)
