/*
Package domain contains the core domain models of the Business Canvas wizard.

It defines the scripted step sequence, the per-thread wizard state, the
presentation record shown for a step and the closed set of actions a
widget can send back. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - StepDefinition / Script: the ordered, immutable list of questions.
  - WizardState: the runtime snapshot of one thread (current step, answers).
  - PresentationStep: what the host should render for the current step.
  - Action: a tagged variant (IntroSubmit, StepSubmit, StepChoice, UnknownAction).
*/
package domain
