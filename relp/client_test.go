package relp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/session"
	"github.com/rsyslog/rsyslog-sub006/transport"
)

func TestNewClientRejectsMissingAddr(t *testing.T) {
	_, err := NewClient(Config{}, session.Callbacks{})
	require.Error(t, err)
}

func TestNewClientPlainSucceeds(t *testing.T) {
	commands := command.NewEnableMap()
	commands.Set(command.Syslog, command.Desired)
	c, err := NewClient(Config{DialAddr: "127.0.0.1:0", Commands: commands}, session.Callbacks{})
	require.NoError(t, err)
	require.Equal(t, session.Disconnected, c.State())
}

func TestNewClientTLSRejectsUnreadableCACert(t *testing.T) {
	cfg := Config{
		DialAddr: "127.0.0.1:0",
		Transport: transport.Config{
			EnableTLS:  true,
			CACertFile: "testdata/does-not-exist.pem",
		},
	}
	_, err := NewClient(cfg, session.Callbacks{})
	require.Error(t, err)
}

func TestNewClientTLSPlainConfigSucceeds(t *testing.T) {
	cfg := Config{
		DialAddr: "127.0.0.1:0",
		Transport: transport.Config{
			EnableTLS: true,
		},
	}
	c, err := NewClient(cfg, session.Callbacks{})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestAuthModeNameMapping(t *testing.T) {
	require.Equal(t, "none", authModeName(transport.AuthNone))
	require.Equal(t, "fingerprint", authModeName(transport.AuthFingerprint))
	require.Equal(t, "name", authModeName(transport.AuthName))
}
