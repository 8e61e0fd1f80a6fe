package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SimpleAVRule(t *testing.T) {
	blocks, err := Tokenize("allow domain file_type:file read;")
	require.NoError(t, err)
	assert.Equal(t, []string{"allow", "domain", "file_type", "file", "read"}, blocks)
}

func TestTokenize_PermissionSet(t *testing.T) {
	blocks, err := Tokenize("allow domain file_type:file { read write open };")
	require.NoError(t, err)
	require.Len(t, blocks, 5)
	assert.Equal(t, "{ read write open }", blocks[4])
}

func TestTokenize_Complement(t *testing.T) {
	blocks, err := Tokenize("allow ~untrusted_domain file_type:file read;")
	require.NoError(t, err)
	assert.Equal(t, "~untrusted_domain", blocks[1])
}

func TestTokenize_ComplementSet(t *testing.T) {
	blocks, err := Tokenize("allow ~{ domain_a domain_b } file_type:file read;")
	require.NoError(t, err)
	assert.Equal(t, "~{ domain_a domain_b }", blocks[1])
}

func TestTokenize_SubtractionInSet(t *testing.T) {
	blocks, err := Tokenize("allow domain { file_type -exec_type }:file read;")
	require.NoError(t, err)
	assert.Equal(t, "{ file_type -exec_type }", blocks[2])
}

func TestTokenize_SelfTarget(t *testing.T) {
	blocks, err := Tokenize("allow domain self:process signal;")
	require.NoError(t, err)
	assert.Equal(t, "self", blocks[2])
}

func TestTokenize_NameTransition(t *testing.T) {
	blocks, err := Tokenize(`type_transition domain file_type:file new_type "filename";`)
	require.NoError(t, err)
	require.Len(t, blocks, 6)
	assert.Equal(t, `"filename"`, blocks[5])
}

func TestTokenize_UnbalancedBraces(t *testing.T) {
	_, err := Tokenize("allow domain file_type:file { read write;")
	assert.Error(t, err)
}

func TestTokenize_BadComplement(t *testing.T) {
	_, err := Tokenize("allow ~: file_type:file read;")
	assert.Error(t, err)
}

func TestTokenize_WrongBlockCount(t *testing.T) {
	_, err := Tokenize("allow domain;")
	assert.Error(t, err)
}
