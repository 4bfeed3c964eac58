//go:build windows

package winring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// Session is one transient driver session: Open installs and starts the
// service and opens the device, Close tears all of it down again. A Session
// is not safe for concurrent use; the fan controller serializes access.
type Session struct {
	driverPath string
	manager    *mgr.Mgr
	service    *mgr.Service
	handle     windows.Handle
}

// NewSession returns an unopened session. driverPath overrides the default
// driver binary lookup when non-empty.
func NewSession(driverPath string) *Session {
	return &Session{driverPath: driverPath}
}

// Elevated reports whether the process token carries administrator rights.
func Elevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// Open installs, starts and connects to the driver. Idempotent when the
// device handle is already open. Every failure path unwinds through Close so
// no service registration outlives the call.
func (s *Session) Open() error {
	if s.handle != 0 && s.handle != windows.InvalidHandle {
		return nil
	}

	if !Elevated() {
		return ErrPermission
	}

	path, err := locateDriver(s.driverPath)
	if err != nil {
		return err
	}

	s.manager, err = mgr.Connect()
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("%w: connect scm: %v", ErrService, err)
	}

	// A previous crashed run may have left a registration behind.
	removeService(s.manager, ServiceName)

	s.service, err = s.manager.CreateService(ServiceName, path, mgr.Config{
		ServiceType:  windows.SERVICE_KERNEL_DRIVER,
		StartType:    mgr.StartManual,
		ErrorControl: mgr.ErrorNormal,
		DisplayName:  displayName,
	})
	if err != nil {
		s.Close()
		return fmt.Errorf("%w: create %s: %v", ErrService, ServiceName, err)
	}

	err = s.service.Start()
	if err != nil && !errors.Is(err, windows.ERROR_SERVICE_ALREADY_RUNNING) {
		s.Close()
		return fmt.Errorf("%w: start %s: %v", ErrService, ServiceName, err)
	}

	s.handle, err = windows.CreateFile(
		windows.StringToUTF16Ptr(DeviceName),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		s.handle = 0
		s.Close()
		return fmt.Errorf("%w: %s: %v", ErrHandle, DeviceName, err)
	}

	return nil
}

// Close closes the device handle, stops the service and deletes its
// registration. Safe to call multiple times and on a never-opened session.
// Cleanup failures are swallowed: a service that is already gone is the
// desired end state.
func (s *Session) Close() error {
	if s.handle != 0 && s.handle != windows.InvalidHandle {
		windows.CloseHandle(s.handle)
		s.handle = 0
	}

	if s.service != nil {
		s.service.Control(svc.Stop)
		// Give the kernel a moment to process the stop before deletion.
		time.Sleep(50 * time.Millisecond)
		s.service.Delete()
		s.service.Close()
		s.service = nil
	}

	if s.manager != nil {
		s.manager.Disconnect()
		s.manager = nil
	}

	return nil
}

// ReadPort reads a single byte from a legacy I/O port.
func (s *Session) ReadPort(port uint16) (byte, error) {
	var in [4]byte
	binary.LittleEndian.PutUint32(in[:], uint32(port))

	var out [4]byte
	var returned uint32
	err := windows.DeviceIoControl(s.handle, ioctlReadIoPortByte,
		&in[0], uint32(len(in)), &out[0], uint32(len(out)), &returned, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: read port 0x%X: %v", ErrIO, port, err)
	}

	return out[0], nil
}

// WritePort writes a single byte to a legacy I/O port. High bits of wider
// values never reach the wire, the payload is truncated to one byte.
func (s *Session) WritePort(port uint16, value byte) error {
	var in [8]byte
	binary.LittleEndian.PutUint32(in[:4], uint32(port))
	binary.LittleEndian.PutUint32(in[4:], uint32(value))

	var returned uint32
	err := windows.DeviceIoControl(s.handle, ioctlWriteIoPortByte,
		&in[0], uint32(len(in)), nil, 0, &returned, nil)
	if err != nil {
		return fmt.Errorf("%w: write 0x%02X to port 0x%X: %v", ErrIO, value, port, err)
	}

	return nil
}

// RemoveServices stops and deletes any driver service registration, both the
// transient one and a legacy stock install. Used by forced teardown and by
// uninstall; a session does not need to be open.
func RemoveServices() error {
	m, err := mgr.Connect()
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("%w: connect scm: %v", ErrService, err)
	}
	defer m.Disconnect()

	removeService(m, ServiceName)
	removeService(m, LegacyServiceName)
	return nil
}

// Uninstall removes leftover services and the cached driver directory.
func Uninstall() error {
	if err := RemoveServices(); err != nil {
		return err
	}

	dir, err := cacheDir()
	if err != nil {
		return nil
	}
	return os.RemoveAll(dir)
}

func removeService(m *mgr.Mgr, name string) {
	s, err := m.OpenService(name)
	if err != nil {
		return
	}
	defer s.Close()

	s.Control(svc.Stop)
	time.Sleep(100 * time.Millisecond)
	s.Delete()
}

func cacheDir() (string, error) {
	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = home
	}
	return filepath.Join(base, cacheDirName), nil
}

// locateDriver resolves the driver binary: an explicit override, the cached
// per-user copy, or the file next to the executable which is then cached.
func locateDriver(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%w: %s", ErrDriverNotFound, override)
		}
		return override, nil
	}

	dir, err := cacheDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDriverNotFound, err)
	}
	dest := filepath.Join(dir, DriverFile)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDriverNotFound, err)
	}
	src := filepath.Join(filepath.Dir(exe), DriverFile)
	if _, err := os.Stat(src); err != nil {
		return "", ErrDriverNotFound
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDriverNotFound, err)
	}
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDriverNotFound, err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
