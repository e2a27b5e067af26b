/*
Package ports defines the driven ports (interfaces) of the Canvas engine.

These interfaces decouple the wizard logic from external implementations,
allowing the engine to work with various storage backends, lock services
and event sinks.

# Key Interfaces

  - StateStore: Responsible for persisting and loading per-thread WizardState.
  - DistributedLocker: Provides distributed locking for concurrent turns on the same thread.
  - EventPublisher: Receives a notification for every advance (optional).
*/
package ports
