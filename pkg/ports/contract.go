package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConnectionStoreContract runs a suite of tests to verify that a ConnectionStore implementation
// adheres to the defined interface contract.
func RunConnectionStoreContract(t *testing.T, store ConnectionStore) {
	ctx := context.Background()
	connID := "contract-conn-" + time.Now().Format("20060102150405")

	newConn := func(id, source string) *domain.Connection {
		return &domain.Connection{
			ID:              id,
			SourceBlockID:   source,
			DefaultTargetID: "b",
			Rules: []domain.Rule{{
				ID:            "r1",
				TargetBlockID: "c",
				Conditions: domain.ConditionGroup{
					LogicalOperator: domain.LogicAnd,
					Conditions: []domain.ConditionRule{
						{ID: "c1", Field: "age", Operator: domain.OpGreaterThan, Value: domain.NumberValue(18)},
					},
				},
			}},
		}
	}

	t.Run("Save and Get", func(t *testing.T) {
		conn := newConn(connID, "a")
		require.NoError(t, store.Save(ctx, conn), "Save should not return error")

		loaded, err := store.Get(ctx, connID)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, "a", loaded.SourceBlockID)
		assert.Equal(t, "b", loaded.DefaultTargetID)
		require.Len(t, loaded.Rules, 1)
		require.Len(t, loaded.Rules[0].Conditions.Conditions, 1)
		assert.Equal(t, domain.NumberValue(18), loaded.Rules[0].Conditions.Conditions[0].Value)

		bySource, err := store.GetBySource(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, connID, bySource.ID)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+connID)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)

		_, err = store.GetBySource(ctx, "non-existent-block")
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
	})

	t.Run("ApplyConnectionUpdate is idempotent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newConn(connID, "a")))

		fields := map[string]any{
			"default_target_id": "d",
			"is_explicit":       true,
			"rules": []any{
				map[string]any{
					"id":              "r1",
					"target_block_id": "c",
					"conditions": map[string]any{
						"logical_operator": "OR",
						"conditions": []any{
							map[string]any{"id": "c1", "field": "q1", "operator": "equals", "value": map[string]any{"type": "string", "value": "yes"}},
						},
					},
				},
			},
		}

		first, err := store.ApplyConnectionUpdate(ctx, connID, fields)
		require.NoError(t, err)
		second, err := store.ApplyConnectionUpdate(ctx, connID, fields)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		loaded, err := store.Get(ctx, connID)
		require.NoError(t, err)
		assert.Equal(t, "d", loaded.DefaultTargetID)
		assert.True(t, loaded.IsExplicit)
		assert.Equal(t, "a", loaded.SourceBlockID, "fields not in the update are kept")
		require.Len(t, loaded.Rules, 1, "re-applying must not duplicate rules")
		assert.Equal(t, domain.LogicOr, loaded.Rules[0].Conditions.LogicalOperator)
		assert.Equal(t, domain.StringValue("yes"), loaded.Rules[0].Conditions.Conditions[0].Value)
	})

	t.Run("ApplyConnectionUpdate creates missing connection", func(t *testing.T) {
		id := connID + "-lazy"
		defer func() { _ = store.Delete(ctx, id) }()

		conn, err := store.ApplyConnectionUpdate(ctx, id, map[string]any{
			"source_block_id":   "lazy-source",
			"default_target_id": "z",
		})
		require.NoError(t, err)
		assert.Equal(t, id, conn.ID)
		assert.Empty(t, conn.Rules)

		loaded, err := store.GetBySource(ctx, "lazy-source")
		require.NoError(t, err)
		assert.Equal(t, "z", loaded.DefaultTargetID)
	})

	t.Run("ApplyConnectionUpdate rejects unknown fields", func(t *testing.T) {
		_, err := store.ApplyConnectionUpdate(ctx, connID, map[string]any{"colour": "red"})
		assert.ErrorIs(t, err, persistence.ErrInvalidUpdate)
	})

	t.Run("One connection per source block", func(t *testing.T) {
		source := "shared-" + connID
		oldID, newID := connID+"-a-old", connID+"-z-new"
		defer func() {
			_ = store.Delete(ctx, oldID)
			_ = store.Delete(ctx, newID)
		}()

		require.NoError(t, store.Save(ctx, newConn(oldID, source)))
		_, err := store.ApplyConnectionUpdate(ctx, newID, map[string]any{
			"source_block_id":   source,
			"default_target_id": "c",
		})
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			got, err := store.GetBySource(ctx, source)
			require.NoError(t, err)
			assert.Equal(t, newID, got.ID)
			assert.Equal(t, "c", got.DefaultTargetID)
		}
		_, err = store.Get(ctx, oldID)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound, "the replaced connection is gone")
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, oldID)

		require.NoError(t, store.Save(ctx, newConn(oldID, source)))
		got, err := store.GetBySource(ctx, source)
		require.NoError(t, err)
		assert.Equal(t, oldID, got.ID, "Save replaces as well")
		_, err = store.Get(ctx, newID)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)

		require.NoError(t, store.Delete(ctx, oldID))
		_, err = store.GetBySource(ctx, source)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newConn(connID, "a")))

		require.NoError(t, store.Delete(ctx, connID), "Delete should not return error")

		_, err := store.Get(ctx, connID)
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound, "Get after Delete should return ErrConnectionNotFound")
		_, err = store.GetBySource(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)

		assert.NoError(t, store.Delete(ctx, connID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := connID + "-1"
		id2 := connID + "-2"
		_ = store.Save(ctx, newConn(id1, "s1"))
		_ = store.Save(ctx, newConn(id2, "s2"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunConversationStoreContract runs a suite of tests to verify that a ConversationStore implementation
// adheres to the defined interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	convID := "contract-conv-" + time.Now().Format("20060102150405")

	block := domain.Block{
		ID:   "chat",
		Type: domain.BlockAIConversation,
		Settings: domain.BlockSettings{
			StarterPrompt: "What brings you here?",
			MaxQuestions:  3,
		},
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewConversation(convID, "resp-1", block)
		state.Turns = append(state.Turns, domain.Turn{Index: 0, Question: block.Settings.StarterPrompt, Answer: "curiosity", AnsweredAt: at})
		state.PendingQuestion = "Why?"
		state.ActiveIndex = 1

		require.NoError(t, store.Save(ctx, state), "Save should not return error")

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "chat", loaded.BlockID)
		assert.Equal(t, "resp-1", loaded.ResponseID)
		assert.Equal(t, 3, loaded.MaxQuestions)
		assert.Equal(t, "Why?", loaded.PendingQuestion)
		assert.Equal(t, 1, loaded.ActiveIndex)
		require.Len(t, loaded.Turns, 1)
		assert.Equal(t, "curiosity", loaded.Turns[0].Answer)
		assert.True(t, at.Equal(loaded.Turns[0].AnsweredAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+convID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("ApplyConversationTurn is idempotent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewConversation(convID, "resp-1", block)))

		turn0 := domain.Turn{Index: 0, Question: block.Settings.StarterPrompt, Answer: "a0", AnsweredAt: at}
		turn1 := domain.Turn{Index: 1, Question: "Follow up?", Answer: "a1", AnsweredAt: at}

		require.NoError(t, store.ApplyConversationTurn(ctx, convID, turn0))
		require.NoError(t, store.ApplyConversationTurn(ctx, convID, turn0))
		require.NoError(t, store.ApplyConversationTurn(ctx, convID, turn1))
		require.NoError(t, store.ApplyConversationTurn(ctx, convID, turn1))

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err)
		require.Len(t, loaded.Turns, 2, "re-applying a turn must not append it twice")
		assert.Equal(t, "a1", loaded.Turns[1].Answer)

		edited := turn0
		edited.Answer = "a0 edited"
		require.NoError(t, store.ApplyConversationTurn(ctx, convID, edited))

		loaded, err = store.Load(ctx, convID)
		require.NoError(t, err)
		require.Len(t, loaded.Turns, 2)
		assert.Equal(t, "a0 edited", loaded.Turns[0].Answer)
		assert.Equal(t, "Follow up?", loaded.Turns[1].Question, "later questions are untouched")
	})

	t.Run("ApplyConversationTurn past frontier", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewConversation(convID, "resp-1", block)))

		err := store.ApplyConversationTurn(ctx, convID, domain.Turn{Index: 2, Answer: "gap"})
		assert.ErrorIs(t, err, domain.ErrTurnOutOfRange)
	})

	t.Run("ApplyConversationTurn on missing conversation", func(t *testing.T) {
		err := store.ApplyConversationTurn(ctx, "non-existent-"+convID, domain.Turn{Index: 0, Answer: "x"})
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewConversation(convID, "resp-1", block)))

		require.NoError(t, store.Delete(ctx, convID), "Delete should not return error")

		_, err := store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound, "Load after Delete should return ErrConversationNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := convID + "-1"
		id2 := convID + "-2"
		_ = store.Save(ctx, domain.NewConversation(id1, "resp-1", block))
		_ = store.Save(ctx, domain.NewConversation(id2, "resp-2", block))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
