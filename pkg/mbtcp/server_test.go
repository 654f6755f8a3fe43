package mbtcp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapHandler struct {
	regs map[uint16]uint16
}

func (h *mapHandler) read(addr, qty uint16) ([]uint16, error) {
	out := make([]uint16, qty)
	for i := uint16(0); i < qty; i++ {
		v, ok := h.regs[addr+i]
		if !ok {
			return nil, IllegalDataAddressError(FuncReadHoldingRegisters)
		}
		out[i] = v
	}
	return out, nil
}

func (h *mapHandler) ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]uint16, error) {
	return h.read(addr, qty)
}

func (h *mapHandler) ReadInputRegisters(unitID uint8, addr, qty uint16) ([]uint16, error) {
	return h.read(addr, qty)
}

func startTestServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()
	handler := &mapHandler{regs: map[uint16]uint16{
		40000: 0x5375,
		40001: 0x6e53,
		40002: 1,
		40003: 65,
	}}
	srv := NewServer(handler, ServerConfig{}, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func exchange(t *testing.T, conn net.Conn, txID uint16, pdu []byte) *Frame {
	t.Helper()
	req := Frame{
		Header: MBAPHeader{TransactionID: txID, UnitID: 240},
		PDU:    pdu,
	}
	_, err := conn.Write(req.Encode())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := ReadFrame(conn)
	require.NoError(t, err)
	return resp
}

func TestServerAnswersReads(t *testing.T) {
	_, conn := startTestServer(t)

	pdu, err := BuildReadRegistersPDU(FuncReadHoldingRegisters, 40000, 4)
	require.NoError(t, err)
	resp := exchange(t, conn, 7, pdu)

	assert.Equal(t, uint16(7), resp.Header.TransactionID)
	assert.Equal(t, uint8(240), resp.Header.UnitID)
	values, err := ParseRegistersResponsePDU(resp.PDU, 4)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{0x5375, 0x6e53, 1, 65}, values)

	// Input register reads answer from the same handler.
	pdu, err = BuildReadRegistersPDU(FuncReadInputRegisters, 40000, 2)
	require.NoError(t, err)
	resp = exchange(t, conn, 8, pdu)
	values, err = ParseRegistersResponsePDU(resp.PDU, 2)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{0x5375, 0x6e53}, values)
}

func TestServerRejectsWrites(t *testing.T) {
	_, conn := startTestServer(t)

	// FC06 WriteSingleRegister
	resp := exchange(t, conn, 1, []byte{0x06, 0x9c, 0x40, 0x00, 0x01})
	merr := ParseExceptionPDU(resp.PDU)
	assert.NotNil(t, merr)
	assert.Equal(t, ExceptionIllegalFunction, merr.Exception)

	// FC16 WriteMultipleRegisters
	resp = exchange(t, conn, 2, []byte{0x10, 0x9c, 0x40, 0x00, 0x01, 0x02, 0x00, 0x01})
	merr = ParseExceptionPDU(resp.PDU)
	assert.NotNil(t, merr)
	assert.Equal(t, ExceptionIllegalFunction, merr.Exception)
}

func TestServerUnknownAddress(t *testing.T) {
	_, conn := startTestServer(t)

	pdu, err := BuildReadRegistersPDU(FuncReadHoldingRegisters, 100, 1)
	require.NoError(t, err)
	resp := exchange(t, conn, 3, pdu)
	merr := ParseExceptionPDU(resp.PDU)
	assert.NotNil(t, merr)
	assert.Equal(t, ExceptionIllegalDataAddress, merr.Exception)
}

func TestServerInvalidQuantity(t *testing.T) {
	_, conn := startTestServer(t)

	// quantity zero
	resp := exchange(t, conn, 4, []byte{0x03, 0x9c, 0x40, 0x00, 0x00})
	merr := ParseExceptionPDU(resp.PDU)
	assert.NotNil(t, merr)
	assert.Equal(t, ExceptionIllegalDataValue, merr.Exception)

	// quantity over the FC03 limit
	resp = exchange(t, conn, 5, []byte{0x03, 0x9c, 0x40, 0x00, 0x7e})
	merr = ParseExceptionPDU(resp.PDU)
	assert.NotNil(t, merr)
	assert.Equal(t, ExceptionIllegalDataValue, merr.Exception)
}

func TestServerConnectionSurvivesExceptions(t *testing.T) {
	_, conn := startTestServer(t)

	for txID := uint16(1); txID <= 5; txID++ {
		resp := exchange(t, conn, txID, []byte{0x06, 0x00, 0x00, 0x00, 0x01})
		assert.Equal(t, txID, resp.Header.TransactionID)
		assert.True(t, IsExceptionPDU(resp.PDU))
	}

	// still serving valid reads afterwards
	pdu, err := BuildReadRegistersPDU(FuncReadHoldingRegisters, 40000, 1)
	require.NoError(t, err)
	resp := exchange(t, conn, 6, pdu)
	values, err := ParseRegistersResponsePDU(resp.PDU, 1)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{0x5375}, values)
}

func TestServerDefaultsReadTimeout(t *testing.T) {
	srv := NewServer(&mapHandler{}, ServerConfig{}, zap.NewNop())
	assert.Equal(t, 30*time.Second, srv.cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.cfg.WriteTimeout)
}

func TestServerDropsStalledConnection(t *testing.T) {
	handler := &mapHandler{regs: map[uint16]uint16{40000: 0x5375}}
	srv := NewServer(handler, ServerConfig{ReadTimeout: 200 * time.Millisecond}, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// half an MBAP header, then silence
	_, err = conn.Write([]byte{0x00, 0x01, 0x00})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF, "stalled peer disconnected")
}

func TestServerConcurrentConnections(t *testing.T) {
	srv, conn := startTestServer(t)

	conn2, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn2.Close()

	pdu, err := BuildReadRegistersPDU(FuncReadHoldingRegisters, 40000, 2)
	require.NoError(t, err)

	resp1 := exchange(t, conn, 10, pdu)
	resp2 := exchange(t, conn2, 20, pdu)
	assert.Equal(t, uint16(10), resp1.Header.TransactionID)
	assert.Equal(t, uint16(20), resp2.Header.TransactionID)
	assert.Equal(t, resp1.PDU, resp2.PDU)
}
