package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVLessIsStrict(t *testing.T) {
	data := CSV{{"7"}, {"7"}}
	assert.False(t, data.Less(0, 1))
	assert.False(t, data.Less(1, 0))
}

func TestWriteAsCSVKeepsOrderOfEqualKeys(t *testing.T) {
	data := CSV{
		{"10", "a"},
		{"2", "first"},
		{"2", "second"},
		{"10", "b"},
		{"2", "third"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteAsCSV(&buf, data, []string{"id", "value"}))
	assert.Equal(t, "id,value\n2,first\n2,second\n2,third\n10,a\n10,b\n", buf.String())
}
