package mbtcp

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MBAPHeaderSize is the fixed Modbus-TCP header size in bytes.
	MBAPHeaderSize = 7
	// ProtocolID is the only protocol identifier Modbus defines.
	ProtocolID uint16 = 0
	// MaxPDUSize is the largest PDU the protocol allows.
	MaxPDUSize = 253
	// MaxReadQuantity is the register count limit for FC03/FC04.
	MaxReadQuantity = 125
)

type FunctionCode uint8

const (
	FuncReadHoldingRegisters FunctionCode = 0x03
	FuncReadInputRegisters   FunctionCode = 0x04
)

func (fc FunctionCode) String() string {
	switch fc {
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	}
	return fmt.Sprintf("Func(0x%02x)", uint8(fc))
}

type ExceptionCode uint8

const (
	ExceptionIllegalFunction     ExceptionCode = 0x01
	ExceptionIllegalDataAddress  ExceptionCode = 0x02
	ExceptionIllegalDataValue    ExceptionCode = 0x03
	ExceptionServerDeviceFailure ExceptionCode = 0x04
)

func (ec ExceptionCode) String() string {
	switch ec {
	case ExceptionIllegalFunction:
		return "IllegalFunction"
	case ExceptionIllegalDataAddress:
		return "IllegalDataAddress"
	case ExceptionIllegalDataValue:
		return "IllegalDataValue"
	case ExceptionServerDeviceFailure:
		return "ServerDeviceFailure"
	}
	return fmt.Sprintf("Exception(0x%02x)", uint8(ec))
}

// MBAPHeader is the Modbus Application Protocol header carried before
// every PDU on a TCP transport.
type MBAPHeader struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // bytes following the length field: unit id + PDU
	UnitID        uint8
}

func (h *MBAPHeader) Encode() []byte {
	buf := make([]byte, MBAPHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = h.UnitID
	return buf
}

func (h *MBAPHeader) Decode(data []byte) error {
	if len(data) < MBAPHeaderSize {
		return fmt.Errorf("%w: MBAP header too short", ErrMalformedFrame)
	}
	h.TransactionID = binary.BigEndian.Uint16(data[0:2])
	h.ProtocolID = binary.BigEndian.Uint16(data[2:4])
	h.Length = binary.BigEndian.Uint16(data[4:6])
	h.UnitID = data[6]
	return nil
}

// Frame is a complete Modbus-TCP frame: MBAP header plus PDU.
type Frame struct {
	Header MBAPHeader
	PDU    []byte
}

// Encode serializes the frame, recomputing the length field from the PDU.
func (f *Frame) Encode() []byte {
	f.Header.Length = uint16(len(f.PDU) + 1)
	buf := make([]byte, MBAPHeaderSize+len(f.PDU))
	copy(buf, f.Header.Encode())
	copy(buf[MBAPHeaderSize:], f.PDU)
	return buf
}

// Decode parses a frame from a byte buffer, validating the declared
// length against the available payload.
func (f *Frame) Decode(data []byte) error {
	if err := f.Header.Decode(data); err != nil {
		return err
	}
	pduLen := int(f.Header.Length) - 1
	if pduLen < 0 || pduLen > MaxPDUSize {
		return fmt.Errorf("%w: invalid length field %d", ErrMalformedFrame, f.Header.Length)
	}
	if len(data) < MBAPHeaderSize+pduLen {
		return fmt.Errorf("%w: incomplete frame", ErrMalformedFrame)
	}
	f.PDU = make([]byte, pduLen)
	copy(f.PDU, data[MBAPHeaderSize:MBAPHeaderSize+pduLen])
	return nil
}

// ReadFrame reads exactly one frame from the reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, MBAPHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	var f Frame
	if err := f.Header.Decode(header); err != nil {
		return nil, err
	}
	if f.Header.ProtocolID != ProtocolID {
		return nil, fmt.Errorf("%w: protocol id %d", ErrMalformedFrame, f.Header.ProtocolID)
	}
	pduLen := int(f.Header.Length) - 1
	if pduLen < 0 || pduLen > MaxPDUSize {
		return nil, fmt.Errorf("%w: invalid PDU length %d", ErrMalformedFrame, pduLen)
	}

	f.PDU = make([]byte, pduLen)
	if _, err := io.ReadFull(r, f.PDU); err != nil {
		return nil, err
	}
	return &f, nil
}

// BuildReadRegistersPDU builds a read request PDU for FC03 or FC04.
func BuildReadRegistersPDU(fc FunctionCode, addr, qty uint16) ([]byte, error) {
	if fc != FuncReadHoldingRegisters && fc != FuncReadInputRegisters {
		return nil, IllegalFunctionError(fc)
	}
	if qty < 1 || qty > MaxReadQuantity {
		return nil, IllegalDataValueError(fc)
	}
	if uint32(addr)+uint32(qty) > 65536 {
		return nil, IllegalDataAddressError(fc)
	}
	pdu := make([]byte, 5)
	pdu[0] = byte(fc)
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], qty)
	return pdu, nil
}

// ParseReadRequestPDU extracts address and quantity from a read request.
func ParseReadRequestPDU(pdu []byte) (addr, qty uint16, err error) {
	if len(pdu) < 5 {
		return 0, 0, fmt.Errorf("%w: read request PDU too short", ErrMalformedFrame)
	}
	return binary.BigEndian.Uint16(pdu[1:3]), binary.BigEndian.Uint16(pdu[3:5]), nil
}

// BuildRegistersResponsePDU builds a read response carrying the values.
func BuildRegistersResponsePDU(fc FunctionCode, values []uint16) []byte {
	byteCount := len(values) * 2
	pdu := make([]byte, 2+byteCount)
	pdu[0] = byte(fc)
	pdu[1] = byte(byteCount)
	for i, v := range values {
		binary.BigEndian.PutUint16(pdu[2+i*2:], v)
	}
	return pdu
}

// ParseRegistersResponsePDU parses a FC03/FC04 response against the
// requested quantity.
func ParseRegistersResponsePDU(pdu []byte, qty uint16) ([]uint16, error) {
	if len(pdu) < 2 {
		return nil, fmt.Errorf("%w: response PDU too short", ErrMalformedFrame)
	}
	byteCount := int(pdu[1])
	if byteCount != int(qty)*2 || len(pdu) < 2+byteCount {
		return nil, fmt.Errorf("%w: invalid byte count %d", ErrMalformedFrame, byteCount)
	}
	values := make([]uint16, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = binary.BigEndian.Uint16(pdu[2+i*2:])
	}
	return values, nil
}

// BuildExceptionPDU builds an exception response for the given function.
func BuildExceptionPDU(fc FunctionCode, ec ExceptionCode) []byte {
	return []byte{byte(fc) | 0x80, byte(ec)}
}

// IsExceptionPDU reports whether the PDU is an exception response.
func IsExceptionPDU(pdu []byte) bool {
	return len(pdu) > 0 && pdu[0]&0x80 != 0
}

// ParseExceptionPDU decodes an exception response, or nil if it is not one.
func ParseExceptionPDU(pdu []byte) *ModbusError {
	if len(pdu) < 2 || pdu[0]&0x80 == 0 {
		return nil
	}
	return &ModbusError{
		Function:  FunctionCode(pdu[0] & 0x7f),
		Exception: ExceptionCode(pdu[1]),
	}
}
