package yogafanctl

import (
	"sync"

	"yogafanctl/ec"
)

// A DummyGateway emulates the EC mailbox handshake in memory. It should only
// be used for dev & tests; it lets the whole CLI run without the driver.
type DummyGateway struct {
	sync sync.Mutex

	// mailbox handshake state
	cmd     byte
	sub     byte
	haveCmd bool
	haveSub bool
	result  byte
	pending bool

	// emulated EC state
	fan1 byte
	fan2 byte
	auto bool
}

func NewDummyGateway() *DummyGateway {
	return &DummyGateway{auto: true}
}

func (g *DummyGateway) Open() error {
	return nil
}

func (g *DummyGateway) Close() error {
	return nil
}

func (g *DummyGateway) ReadPort(port uint16) (byte, error) {
	g.sync.Lock()
	defer g.sync.Unlock()

	switch port {
	case ec.PortCmd:
		var status byte
		if g.pending {
			status |= ec.StatusOutputFull
		}
		// Input buffer is always ready to accept.
		return status, nil
	case ec.PortData:
		if !g.pending {
			return 0, nil
		}
		g.pending = false
		return g.result, nil
	}
	return 0, nil
}

func (g *DummyGateway) WritePort(port uint16, value byte) error {
	g.sync.Lock()
	defer g.sync.Unlock()

	switch port {
	case ec.PortCmd:
		g.cmd = value
		g.haveCmd = true
		g.haveSub = false
		g.pending = false
	case ec.PortData:
		switch {
		case g.haveCmd && !g.haveSub:
			g.sub = value
			g.haveSub = true
		case g.haveCmd && g.haveSub:
			g.result = g.execute(g.sub, value)
			g.pending = true
			g.haveCmd = false
			g.haveSub = false
		}
	}
	return nil
}

func (g *DummyGateway) execute(sub, arg byte) byte {
	if g.cmd != ec.CmdFan {
		return 0
	}

	switch sub {
	case ec.SubSetFan1:
		g.fan1 = arg
		g.auto = false
		return ec.SuccessCode
	case ec.SubSetFan2:
		g.fan2 = arg
		g.auto = false
		return ec.SuccessCode
	case ec.SubQuery:
		switch arg {
		case ec.QueryReadFan1:
			return g.fan1
		case ec.QueryReadFan2:
			return g.fan2
		case ec.QueryAutoMode:
			g.auto = true
			g.fan1, g.fan2 = 0, 0
			return ec.SuccessCode
		}
	}
	return 0
}
