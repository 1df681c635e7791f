package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordedCommands struct {
	calls []string
}

func (r *recordedCommands) Connect()         { r.calls = append(r.calls, "connect") }
func (r *recordedCommands) Disconnect()      { r.calls = append(r.calls, "disconnect") }
func (r *recordedCommands) ManualReconnect() { r.calls = append(r.calls, "reconnect") }

func TestReadViewerCommands(t *testing.T) {
	ctl := &recordedCommands{}
	quit := 0

	readViewerCommands(strings.NewReader("r\n D \n\nx\nc\nq\nr\n"), ctl, func() { quit++ })

	assert.Equal(t, []string{"reconnect", "disconnect", "connect"}, ctl.calls)
	assert.Equal(t, 1, quit)
}

func TestReadViewerCommands_EOF(t *testing.T) {
	ctl := &recordedCommands{}
	quit := 0

	readViewerCommands(strings.NewReader("c"), ctl, func() { quit++ })

	assert.Equal(t, []string{"connect"}, ctl.calls)
	assert.Zero(t, quit)
}
