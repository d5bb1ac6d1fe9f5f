package validator

import (
	"testing"

	"github.com/aretw0/formweave/internal/testutils"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(ids ...string) *domain.Form {
	form := &domain.Form{ID: "f"}
	for i, id := range ids {
		form.Blocks = append(form.Blocks, domain.Block{ID: id, Type: domain.BlockShortText, Order: i})
	}
	return form
}

func TestValidateForm_Valid(t *testing.T) {
	require.NoError(t, ValidateForm(testutils.SampleForm()))
	require.NoError(t, ValidateForm(linear("a", "b", "c")), "positional order reaches every block")
}

func TestValidateForm_Broken(t *testing.T) {
	cases := []struct {
		name  string
		build func() *domain.Form
		want  []string
	}{
		{
			name: "missing target",
			build: func() *domain.Form {
				f := linear("a", "b")
				f.Connections = []domain.Connection{{ID: "c", SourceBlockID: "a", DefaultTargetID: "ghost"}}
				return f
			},
			want: []string{"Missing block 'ghost'", "Unreachable block: 'b'"},
		},
		{
			name: "deleted target",
			build: func() *domain.Form {
				f := linear("a", "b", "c")
				f.Blocks[1].Deleted = true
				f.Connections = []domain.Connection{{
					ID: "c", SourceBlockID: "a", DefaultTargetID: "c",
					Rules: []domain.Rule{{ID: "r", TargetBlockID: "b"}},
				}}
				return f
			},
			want: []string{"Deleted block 'b' (rule 'r' target)"},
		},
		{
			name: "self loop and duplicate connection",
			build: func() *domain.Form {
				f := linear("a", "b")
				f.Connections = []domain.Connection{
					{ID: "c1", SourceBlockID: "a", Rules: []domain.Rule{{ID: "loop", TargetBlockID: "a"}}},
					{ID: "c2", SourceBlockID: "a", DefaultTargetID: "b"},
				}
				return f
			},
			want: []string{"leads block 'a' to itself", "more than one connection"},
		},
		{
			name: "bad expression",
			build: func() *domain.Form {
				f := linear("a", "b")
				f.Connections = []domain.Connection{{
					ID: "c", SourceBlockID: "a", DefaultTargetID: "b",
					Rules: []domain.Rule{{ID: "r", TargetBlockID: "b", Expression: "age >"}},
				}}
				return f
			},
			want: []string{"expression does not compile"},
		},
		{
			name: "conversation without starter",
			build: func() *domain.Form {
				f := linear("a")
				f.Blocks[0].Type = domain.BlockAIConversation
				return f
			},
			want: []string{"has no starter prompt"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateForm(tc.build())
			require.Error(t, err)
			for _, want := range tc.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidateForm_Empty(t *testing.T) {
	assert.Error(t, ValidateForm(&domain.Form{ID: "f"}))
	assert.Error(t, ValidateForm(nil))
}
