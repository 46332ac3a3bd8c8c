package device

import "github.com/emergingrobotics/go-harddoom/pkg/driver"

// Errors for device operations
var (
	ErrNoDevices    = driver.NewError(driver.StatusNotFound, "no devices found")
	ErrRegistryFull = driver.NewError(driver.StatusResourceExhausted, "device registry full")
	ErrRingFull     = driver.NewError(driver.StatusResourceExhausted, "command ring full")
	ErrSessionDone  = driver.NewError(driver.StatusDeviceClosed, "session is closed")
)
