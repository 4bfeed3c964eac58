//go:build !windows

package winring

// Session is a placeholder on non-windows platforms so the CLI and tests
// build everywhere; only the dummy gateway works outside windows.
type Session struct {
	driverPath string
}

func NewSession(driverPath string) *Session {
	return &Session{driverPath: driverPath}
}

func Elevated() bool {
	return false
}

func (s *Session) Open() error {
	return ErrUnsupported
}

func (s *Session) Close() error {
	return nil
}

func (s *Session) ReadPort(port uint16) (byte, error) {
	return 0, ErrUnsupported
}

func (s *Session) WritePort(port uint16, value byte) error {
	return ErrUnsupported
}

func RemoveServices() error {
	return ErrUnsupported
}

func Uninstall() error {
	return ErrUnsupported
}
