package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/test/testhelpers"
)

func TestShutdownClosesLiveConnections(t *testing.T) {
	req := require.New(t)
	rig := testhelpers.StartRelay(t)

	conn := rig.Dial(t)
	testhelpers.SendFrame(t, conn, map[string]any{
		"action": "register_user", "username": "alice",
	})
	testhelpers.ReceiveFrame(t, conn)

	req.NoError(rig.Hub.Shutdown(5 * time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	req.Error(err, "connection must be closed after shutdown")
}

func TestShutdownWithNoSessionsReturnsPromptly(t *testing.T) {
	rig := testhelpers.StartRelay(t)

	start := time.Now()
	require.NoError(t, rig.Hub.Shutdown(5*time.Second))
	require.Less(t, time.Since(start), 2*time.Second)
}
