package main

import (
	"testing"

	"github.com/etnz/tradehistory/cmd"
	"github.com/posener/complete/v2/predict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion(t *testing.T) {
	root := completion()
	for _, group := range cmd.Groups {
		for _, c := range cmd.Commands[group] {
			assert.Contains(t, root.Sub, c.Name())
		}
	}

	imp := root.Sub["import"]
	require.NotNil(t, imp)
	assert.NotNil(t, imp.Args, "import completes file names")
	assert.Equal(t, predict.Set{"events", "lines", "prices", "rates", "instruments"}, imp.Flags["kind"])

	report := root.Sub["report"]
	require.NotNil(t, report)
	assert.Contains(t, report.Flags, "json")
	assert.Contains(t, report.Flags, "month")
	assert.Equal(t, predict.Set{"total", "account", "institution"}, report.Flags["group"])
}
