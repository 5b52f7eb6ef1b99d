// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
//   - EmbeddingService: A loaded embedding backend
//   - Embedder: Normalised embeddings as consumed by the pipeline
//   - VectorIndex: Vector storage and similarity search
//   - PostProcessor: Turns document text into chunks
//   - SchedulerStore: Background job state and history
//   - ConfigStore: Application settings
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
