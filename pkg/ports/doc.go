/*
Package ports defines the driven ports (interfaces) of formweave.

These interfaces decouple the branching engine and the conversation machine from
storage backends, form sources and the LLM provider.

# Key Interfaces

  - AnswerResolver: Looks up the respondent's answer to a prior block.
  - QuestionGenerator: Produces the next follow-up question of an AI-conversation block.
  - ConnectionStore / ConversationStore: Persist connections and conversations with idempotent apply operations.
  - FormLoader: Loads form definitions (blocks and connections).
  - DistributedLocker: Provides distributed locking for conversations shared across replicas.
*/
package ports
