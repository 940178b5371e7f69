package checks

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/mailprobe/pkg/resilience"
)

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestTCPPortReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c := NewTCPPort("http_port", "127.0.0.1", listenerPort(t, ln))
	require.NoError(t, c.Check(testCtx(t)))
	assert.Equal(t, "http_port", c.Name())
}

func TestTCPPortRefusedIsNetworkFailure(t *testing.T) {
	// Grab a port that is free, then close the listener so the dial is
	// refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listenerPort(t, ln)
	require.NoError(t, ln.Close())

	c := NewTCPPort("mail_port", "127.0.0.1", port)
	err = c.Check(testCtx(t))
	require.Error(t, err)

	classifier := resilience.NewClassifier(true)
	assert.Equal(t, resilience.CategoryNetwork, classifier.Classify(err))
}
