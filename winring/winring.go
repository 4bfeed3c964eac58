// Package winring manages transient WinRing0 kernel-driver sessions. The
// service is created, started, used and deleted within a single session so it
// is never registered while the machine goes through a sleep transition.
package winring

import "errors"

const (
	// ServiceName is the reserved name of the transient service registration.
	ServiceName = "WinRing0_Transient"
	// LegacyServiceName is the registration left behind by stock WinRing0
	// installs; Uninstall removes it too.
	LegacyServiceName = "WinRing0_1_2_0"

	DeviceName  = `\\.\WinRing0_1_2_0`
	DriverFile  = "WinRing0x64.sys"
	displayName = "WinRing0 (Transient)"

	// cacheDirName is the per-user directory the driver binary is copied
	// into so it survives across runs and program relocations.
	cacheDirName = "Yoga Fan Control"
)

var (
	ErrDriverNotFound = errors.New("winring: " + DriverFile + " not found next to the executable")
	ErrService        = errors.New("winring: service control failed")
	ErrHandle         = errors.New("winring: cannot open driver device")
	ErrIO             = errors.New("winring: port i/o rejected by driver")
	ErrPermission     = errors.New("winring: administrator privilege required")
	ErrUnsupported    = errors.New("winring: only supported on windows")
)

// OLS ioctl interface of the WinRing0 driver.
const (
	olsDeviceType = 40000

	methodBuffered  = 0
	fileReadAccess  = 1
	fileWriteAccess = 2
)

func ctlCode(deviceType, function, method, access uint32) uint32 {
	return deviceType<<16 | access<<14 | function<<2 | method
}

var (
	ioctlReadIoPortByte  = ctlCode(olsDeviceType, 0x833, methodBuffered, fileReadAccess)
	ioctlWriteIoPortByte = ctlCode(olsDeviceType, 0x836, methodBuffered, fileWriteAccess)
)
