package tradehistory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONObjectWriter(t *testing.T) {
	var w jsonObjectWriter
	w.Append("b", 1).Append("a", "x").Optional("zero", 0).Optional("set", true).Nullable("none", "")
	got, err := w.MarshalJSON()
	require.NoError(t, err)
	// field order is the insertion order.
	assert.Equal(t, `{"b":1,"a":"x","set":true,"none":null}`, string(got))
}

func TestJSONObjectWriterError(t *testing.T) {
	var w jsonObjectWriter
	w.Append("bad", make(chan int)).Append("ignored", 1)
	_, err := w.MarshalJSON()
	assert.Error(t, err)
}
