// internal/status/errcode.go
package status

import (
	"errors"

	"github.com/goburrow/modbus"

	rtu "github.com/MysteriaLV/modbus-alert/internal/poller/modbus"
)

// ErrorCode maps a poll error to the value stored in SlotLastErrorCode:
// the exception code of a Modbus exception response, ErrorCodeTimeout for a
// silent device, ErrorCodeGeneric for anything else.
func ErrorCode(err error) uint16 {
	if err == nil {
		return ErrorCodeNone
	}

	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return uint16(mbErr.ExceptionCode)
	}

	if errors.Is(err, rtu.ErrTimeout) {
		return ErrorCodeTimeout
	}

	return ErrorCodeGeneric
}
