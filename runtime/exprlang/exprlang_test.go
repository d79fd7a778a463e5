package exprlang_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/exprlang"
)

func TestEvaluateArithmetic(t *testing.T) {
	v, err := exprlang.Evaluate("1+2", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, v)
}

func TestEvaluateContextLookup(t *testing.T) {
	ctx := exprlang.Context{"input": map[string]any{"n": int64(-1)}}
	v, err := exprlang.Evaluate("input.n > 0", ctx)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEvaluateUndefinedNameIsErrName(t *testing.T) {
	_, err := exprlang.Evaluate("missing + 1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exprlang.ErrName))
}

func TestValidateExpressionSyntaxError(t *testing.T) {
	err := exprlang.ValidateExpression("1 +")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exprlang.ErrSyntax))
}

func TestRenderIdempotentWithoutSubstitutions(t *testing.T) {
	const t1 = "plain text, no braces here"
	out, err := exprlang.Render(t1, exprlang.Context{})
	require.NoError(t, err)
	assert.Equal(t, t1, out)
}

func TestRenderSubstitutesAndBridgesSprig(t *testing.T) {
	out, err := exprlang.Render("hello {{ upper(name) }}!", exprlang.Context{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ADA!", out)
}

func TestForeachOverListLiteral(t *testing.T) {
	v, err := exprlang.Evaluate("[1,2,3]", nil)
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

func TestEmptyMapLiteral(t *testing.T) {
	v, err := exprlang.Evaluate("{}", nil)
	require.NoError(t, err)
	assert.Empty(t, v)
}
