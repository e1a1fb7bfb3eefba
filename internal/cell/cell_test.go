package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCell(t *testing.T) {
	c := New(CodeKind, "echo hi", "sh")
	assert.NotEmpty(t, c.Handle())
	assert.Equal(t, CodeKind, c.Kind())
	assert.Equal(t, 7, c.Len())
	assert.False(t, c.Empty())
	assert.Equal(t, RunStateIdle, c.RunState)

	other := New(CodeKind, "", "sh")
	assert.NotEqual(t, c.Handle(), other.Handle())
	assert.True(t, other.Empty())
}

func TestCloneIsDeep(t *testing.T) {
	c := New(MarkupKind, "text", "")
	c.Metadata["name"] = "intro"
	c.Outputs = []*Output{NewOutput(OutputItem{Mime: MimeText, Data: []byte("x")})}

	dup := c.Clone()
	require.Equal(t, c.Handle(), dup.Handle())

	dup.Metadata["name"] = "changed"
	dup.Outputs[0].Items[0] = OutputItem{Mime: MimeText, Data: []byte("y")}

	assert.Equal(t, "intro", c.Metadata["name"])
	assert.Equal(t, []byte("x"), c.Outputs[0].Items[0].Data)
}

func TestPickItemNegotiation(t *testing.T) {
	out := NewOutput(
		OutputItem{Mime: "image/png", Data: []byte{0x89}},
		OutputItem{Mime: MimeText, Data: []byte("fallback")},
	)

	item := out.PickItem([]string{MimeText})
	require.NotNil(t, item)
	assert.Equal(t, MimeText, item.Mime)

	item = out.PickItem([]string{"image/png", MimeText})
	require.NotNil(t, item)
	assert.Equal(t, "image/png", item.Mime, "item order beats renderer order")

	item = out.PickItem([]string{"application/pdf"})
	require.NotNil(t, item)
	assert.Equal(t, "image/png", item.Mime, "no match falls back to the first item")

	assert.Nil(t, NewOutput().PickItem([]string{MimeText}))
}

func TestItemMimeSniffsUntagged(t *testing.T) {
	assert.Equal(t, "custom/mime", ItemMime(OutputItem{Mime: "custom/mime"}))

	sniffed := ItemMime(OutputItem{Data: []byte("plain text payload")})
	assert.Contains(t, sniffed, "text/plain")
}
