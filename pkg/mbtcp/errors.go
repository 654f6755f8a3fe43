package mbtcp

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame marks a byte stream that cannot be parsed as a
// Modbus-TCP frame. Once framing is lost the connection cannot be
// re-synchronized, so callers should drop it.
var ErrMalformedFrame = errors.New("mbtcp: malformed frame")

// ModbusError is a protocol-level refusal. A server turns it into an
// exception frame and keeps the connection open.
type ModbusError struct {
	Function  FunctionCode
	Exception ExceptionCode
}

func (e *ModbusError) Error() string {
	return fmt.Sprintf("mbtcp: function 0x%02x exception %s", uint8(e.Function), e.Exception)
}

func IllegalFunctionError(fc FunctionCode) *ModbusError {
	return &ModbusError{Function: fc, Exception: ExceptionIllegalFunction}
}

func IllegalDataAddressError(fc FunctionCode) *ModbusError {
	return &ModbusError{Function: fc, Exception: ExceptionIllegalDataAddress}
}

func IllegalDataValueError(fc FunctionCode) *ModbusError {
	return &ModbusError{Function: fc, Exception: ExceptionIllegalDataValue}
}
