// internal/status/constants.go
package status

// Device status block layout.
// These values define the register map read by HMIs and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of register slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last error code (see ErrorCode).
const SlotLastErrorCode = 1

// SlotSecondsInError holds how long (in seconds) the device has been failing.
const SlotSecondsInError = 2

// SlotLastValue holds the first register of the last successful read.
const SlotLastValue = 3

// ---- RESERVED RANGE ----

// Slots 4-10 are reserved.
const SlotReservedStart = 4
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// The name always sits at the END of the block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for the name.
const DeviceNameMaxChars = 16

// MaxSecondsInError is where the seconds counter saturates.
const MaxSecondsInError = 65535

// ---- HEALTH CODES ----

// HealthUnknown is the boot state, before the first poll of the device.
const HealthUnknown uint16 = 0

// HealthOK means the last poll succeeded.
const HealthOK uint16 = 1

// HealthError means the last poll failed.
const HealthError uint16 = 2

// HealthStale means no result arrived for longer than the stale window.
const HealthStale uint16 = 3

// HealthDisabled marks the block of a device rejected by configuration.
// It is written once per connection and never changes.
const HealthDisabled uint16 = 4

// ---- ERROR CODES ----

// ErrorCodeNone is written while the device is healthy.
const ErrorCodeNone uint16 = 0

// ErrorCodeGeneric covers framing, CRC and port errors.
const ErrorCodeGeneric uint16 = 1

// ErrorCodeTimeout is the Modbus "gateway target failed to respond" exception.
const ErrorCodeTimeout uint16 = 11
