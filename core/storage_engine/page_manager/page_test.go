package pagemanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPage_ResetClearsState(t *testing.T) {
	p := NewPage(16)
	require.False(t, p.IsValid())

	p.SetFileID(3)
	p.SetPageID(7)
	p.Pin()
	p.MarkDirty()
	copy(p.GetData(), []byte("payload"))
	require.True(t, p.IsValid())
	require.Equal(t, uint32(1), p.GetPinCount())

	p.Reset()
	require.False(t, p.IsValid())
	require.False(t, p.IsDirty())
	require.Zero(t, p.GetPinCount())
	require.Equal(t, make([]byte, 16), p.GetData())
}

func TestPage_UnpinNeverUnderflows(t *testing.T) {
	p := NewPage(8)
	p.Unpin()
	require.Zero(t, p.GetPinCount())
	p.Pin()
	p.Pin()
	p.Unpin()
	require.Equal(t, uint32(1), p.GetPinCount())
}
