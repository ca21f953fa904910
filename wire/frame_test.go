package wire

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestConnSendAndDispatch(t *testing.T) {
	left, right := net.Pipe()

	serverReg := NewRegistry()
	RegisterAll(serverReg)
	received := make(chan Message, 1)
	serverReg.Listen(MsgSummaryRequest, func(_ *Conn, msg Message) { received <- msg })
	server := newConn(left, serverReg, nil)
	defer server.Close()

	clientReg := NewRegistry()
	RegisterAll(clientReg)
	client := newConn(right, clientReg, nil)
	defer client.Close()

	require.NoError(t, client.Send(&SummaryRequest{RequestID: "r1", ProductID: "iron_ingot"}))

	msg := awaitMessage(t, received)
	req := msg.(*SummaryRequest)
	assert.Equal(t, "r1", req.RequestID)
	assert.Equal(t, "iron_ingot", req.ProductID)
}

func TestConnClosesOnOversizedFrame(t *testing.T) {
	left, right := net.Pipe()
	conn := newConn(left, NewRegistry(), nil)
	defer conn.Close()

	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, MaxPayload+1)
	_, err := right.Write(header)
	require.NoError(t, err)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection survived a framing violation")
	}
	assert.ErrorIs(t, conn.Send(&CatalogueRequest{}), net.ErrClosed)
}

func TestConnSendAfterCloseAlwaysFails(t *testing.T) {
	left, _ := net.Pipe()
	conn := newConn(left, NewRegistry(), nil)
	require.NoError(t, conn.Close())

	// The outbound queue has room, so a racy enqueue could otherwise slip
	// through and report success on a dead connection.
	for i := 0; i < 1000; i++ {
		assert.ErrorIs(t, conn.Send(&CatalogueRequest{}), net.ErrClosed)
	}
}

func TestConnSurvivesZeroLengthAndGarbageFrames(t *testing.T) {
	left, right := net.Pipe()

	reg := NewRegistry()
	RegisterAll(reg)
	received := make(chan Message, 1)
	reg.Listen(MsgCatalogueRequest, func(_ *Conn, msg Message) { received <- msg })
	conn := newConn(left, reg, nil)
	defer conn.Close()

	// A zero-length payload is a complete, silently dropped packet; a
	// well-framed garbage body is dropped too. Neither desyncs the stream.
	_, err := right.Write([]byte{0x00, 0x00})
	require.NoError(t, err)
	_, err = right.Write([]byte{0x00, 0x01, 0xff})
	require.NoError(t, err)

	payload, err := Encode(&CatalogueRequest{})
	require.NoError(t, err)
	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[2:], payload)
	_, err = right.Write(frame)
	require.NoError(t, err)

	awaitMessage(t, received)
}

func TestConnCloseInvokesCallbackOnce(t *testing.T) {
	left, _ := net.Pipe()
	closes := 0
	conn := newConn(left, NewRegistry(), func(*Conn) { closes++ })

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, closes)
	assert.NotEmpty(t, conn.ID())
}

func TestResolveAddress(t *testing.T) {
	network, addr, err := ResolveAddress("inet:127.0.0.1:25600")
	require.NoError(t, err)
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "127.0.0.1:25600", addr)

	network, addr, err = ResolveAddress("socket:/tmp/bazaar.sock")
	require.NoError(t, err)
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/tmp/bazaar.sock", addr)

	_, _, err = ResolveAddress("ipx:whatever")
	assert.Error(t, err)
	_, _, err = ResolveAddress("bare")
	assert.Error(t, err)
}
