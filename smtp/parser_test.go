package smtp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailcore/smtp"
)

func TestParserSplitsVerbAndArgs(t *testing.T) {
	p := smtp.Parser{}

	verb, args, err := p.Parse([]byte("mail from:<a@b.com>\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "MAIL", verb)
	assert.Equal(t, "from:<a@b.com>", args)
}

func TestParserRejectsEmptyLine(t *testing.T) {
	p := smtp.Parser{}
	_, _, err := p.Parse([]byte("\r\n"))
	assert.Error(t, err)
}

func TestParseMailPathExtractsAddressAndParams(t *testing.T) {
	path, params, err := smtp.ParseMailPath("FROM:<sender@example.com> SIZE=1000 BODY=8BITMIME", "FROM:")
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", path.Address)
	assert.False(t, path.IsNull)
	assert.Equal(t, "1000", params["SIZE"])
	assert.Equal(t, "", params["BODY"])
}

func TestParseMailPathNullReversePath(t *testing.T) {
	path, _, err := smtp.ParseMailPath("FROM:<>", "FROM:")
	require.NoError(t, err)
	assert.True(t, path.IsNull)
}

func TestParseMailPathRejectsMissingPrefix(t *testing.T) {
	_, _, err := smtp.ParseMailPath("<a@b.com>", "FROM:")
	assert.Error(t, err)
}

func TestParseHeloHostnameValidatesSyntax(t *testing.T) {
	_, err := smtp.ParseHeloHostname("not a hostname")
	assert.Error(t, err)

	host, err := smtp.ParseHeloHostname(" mail.example.com ")
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com", host)
}

func TestDataLineReaderDotStuffing(t *testing.T) {
	var codec smtp.DataLineReader

	assert.True(t, codec.IsTerminator([]byte(".\r\n")))
	assert.False(t, codec.IsTerminator([]byte("..\r\n")))

	assert.Equal(t, []byte("line"), codec.UnstuffLine([]byte(".line")))
	assert.Equal(t, []byte("plain"), codec.UnstuffLine([]byte("plain")))

	assert.Equal(t, []byte("..escaped"), codec.StuffLine([]byte(".escaped")))
	assert.Equal(t, []byte("plain"), codec.StuffLine([]byte("plain")))
}
