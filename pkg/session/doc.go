/*
Package session implements thread state management and persistence orchestration.

A Manager serialises every read-modify-write of a thread's wizard state behind a
per-thread lock. Locks are reference counted and dropped once no turn holds or
waits for them. An optional ports.DistributedLocker extends the exclusion across
replicas that share a store.
*/
package session
