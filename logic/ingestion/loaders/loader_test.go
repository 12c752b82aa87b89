package loaders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractx/types"
)

func TestToPagesRejectsEmptyDocument(t *testing.T) {
	_, err := toPages("empty.pdf", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "empty.pdf")

	in := []types.PageInput{{Number: 1, Text: "a"}, {Number: 2}}
	out, err := toPages("two.pdf", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
