package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/test/testhelpers"
)

func TestUpgradeRejectsDisallowedOrigin(t *testing.T) {
	rig := testhelpers.StartRelay(t)

	conn, err := testhelpers.DialOrigin(rig.WSURL(), "http://evil.example")
	if conn != nil {
		_ = conn.Close()
	}
	require.Error(t, err, "upgrade from an unlisted origin must fail")
}

func TestUpgradeRejectsMissingOrigin(t *testing.T) {
	rig := testhelpers.StartRelay(t)

	conn, err := testhelpers.DialOrigin(rig.WSURL(), "")
	if conn != nil {
		_ = conn.Close()
	}
	require.Error(t, err)
}

func TestUpgradeAllowsConfiguredOrigin(t *testing.T) {
	rig := testhelpers.StartRelay(t)

	conn, err := testhelpers.DialOrigin(rig.WSURL(), testhelpers.TestOrigin)
	require.NoError(t, err)
	require.NoError(t, testhelpers.CloseWebSocket(conn))
}
