package relp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/session"
)

func TestNewEngineRejectsMissingAddr(t *testing.T) {
	_, err := NewEngine(Config{}, session.Callbacks{})
	require.Error(t, err)
}

func TestNewEnginePlainSucceeds(t *testing.T) {
	commands := command.NewEnableMap()
	commands.Set(command.Syslog, command.Desired)
	e, err := NewEngine(Config{ListenAddr: ":0", Commands: commands}, session.Callbacks{})
	require.NoError(t, err)
	require.Empty(t, e.Sessions())
}

func TestCloneEnableMapIsIndependent(t *testing.T) {
	src := command.NewEnableMap()
	src.Set(command.Syslog, command.Desired)
	clone := cloneEnableMap(src)
	clone.Set(command.Syslog, command.Forbidden)
	require.Equal(t, command.Desired, src[command.Syslog])
	require.Equal(t, command.Forbidden, clone[command.Syslog])
}
