package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmailsKeepsFirstFieldOnly(t *testing.T) {
	input := "a@x.com,Alice,Engineering\nb@x.com,Bob\nc@x.com"
	emails, err := ParseEmails(strings.NewReader(input), ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, emails)
}

func TestParseEmailsDiscardsNonEmailRows(t *testing.T) {
	input := "email,name\na@x.com,Alice\nnot-an-email,Bob\n,Carol\nb@x.com,Dave"
	emails, err := ParseEmails(strings.NewReader(input), ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, emails, "header and invalid rows are dropped")
}

func TestParseEmailsTrimsWhitespace(t *testing.T) {
	input := "  a@x.com ,Alice\n\tb@x.com\t,Bob"
	emails, err := ParseEmails(strings.NewReader(input), ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, emails)
}

func TestParseEmailsAlternateDelimiter(t *testing.T) {
	input := "a@x.com;Alice\nb@x.com;Bob"
	emails, err := ParseEmails(strings.NewReader(input), ';')
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, emails)
}

func TestParseEmailsEmptyInput(t *testing.T) {
	emails, err := ParseEmails(strings.NewReader(""), ',')
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestParseEmailsKeepsDuplicates(t *testing.T) {
	input := "a@x.com\na@x.com"
	emails, err := ParseEmails(strings.NewReader(input), ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "a@x.com"}, emails, "dedup happens downstream against the directory")
}
