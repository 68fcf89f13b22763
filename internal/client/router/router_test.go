package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roomnotes/roomnotes-server/internal/client/uistate"
)

func TestRoomFromPath(t *testing.T) {
	tests := map[string]string{
		"/":                "",
		"":                 "",
		"/room-abc":        "room-abc",
		"/room-abc/":       "room-abc",
		"/room-abc/extra":  "room-abc",
		"/room%20with%20x": "room with x",
	}
	for path, want := range tests {
		assert.Equal(t, want, RoomFromPath(path), path)
	}
	assert.Equal(t, "/", Path(""))
	assert.Equal(t, "/room-abc", Path("room-abc"))
}

func TestNavigate_ResetsTagFilterOnRoomChange(t *testing.T) {
	ui := uistate.New()
	r := New(ui, nil)

	r.Navigate("/room-a")
	ui.TagFilter.Set("dairy")

	r.Navigate("/room-a")
	assert.Equal(t, "dairy", ui.TagFilter.Get(nil), "same room keeps the filter")

	r.Navigate("/room-b")
	assert.Equal(t, "room-b", ui.SelectedRoom.Get(nil))
	assert.False(t, ui.TagFilter.IsSet(nil))
}

func TestSetRoom_PushesHistory(t *testing.T) {
	ui := uistate.New()
	h := &MemoryHistory{}
	r := New(ui, h)

	assert.Equal(t, "/", h.Current())
	r.SetRoom("room-a")
	r.SetRoom("")

	assert.Equal(t, []string{"/room-a", "/"}, h.Entries())
	assert.False(t, ui.SelectedRoom.IsSet(nil))
}

func TestSelectFirst(t *testing.T) {
	ui := uistate.New()
	h := &MemoryHistory{}
	r := New(ui, h)

	assert.False(t, r.SelectFirst(""))
	assert.True(t, r.SelectFirst("room-a"))
	assert.False(t, r.SelectFirst("room-b"))
	assert.Equal(t, "room-a", ui.SelectedRoom.Get(nil))
	assert.Equal(t, []string{"/room-a"}, h.Entries())
}
