package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fmbridge/fmbridge/config"
)

func TestScriptCandidates(t *testing.T) {
	c := config.Default()
	c.FileMaker.Scripts["getData"] = "Load Invoice"

	assert.Equal(t, []string{"Load Invoice", "Load_Widget_Data", "Log Web Message"}, scriptCandidates(c, "Lo"))
	assert.Contains(t, scriptCandidates(c, ""), "Test Connection")
	assert.Empty(t, scriptCandidates(c, "zzz"))
}
