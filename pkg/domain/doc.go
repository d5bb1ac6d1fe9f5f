/*
Package domain contains the core models of formweave.

It defines the form graph (Blocks and the Connections between them), the branching model
(Rules, ConditionGroups and ConditionRules) and the state of AI-conversation blocks
(ConversationState and its Turns). This package is kept pure and free of I/O, following
Hexagonal Architecture principles.

# Key Entities

  - Block: a question or content unit. Its type decides the declared value type of its answers.
  - Connection: the outgoing edge of a block, a default target plus rules evaluated in order.
  - ConditionValue / AnswerValue: tagged unions for comparands and answers.
  - ConversationState: the bounded, editable list of question/answer turns of one block.
*/
package domain
