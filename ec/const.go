package ec

import "time"

// Mailbox I/O ports of the Lenovo Yoga Pro 9i Gen 9 EC.
const (
	PortData uint16 = 0x5C0
	PortCmd  uint16 = 0x5C4
)

// Status register bits, read from PortCmd.
const (
	StatusOutputFull byte = 0x01 // OBF: the EC has a byte ready on PortData
	StatusInputFull  byte = 0x02 // IBF inverse clear means the EC accepts input
)

const (
	CmdFan byte = 0xEF

	SubSetFan1 byte = 0x61
	SubSetFan2 byte = 0x62
	SubQuery   byte = 0x63

	QueryReadFan1 byte = 0x01
	QueryReadFan2 byte = 0x02
	QueryAutoMode byte = 0x03

	// SuccessCode is returned by the EC for acknowledged set/auto transactions.
	SuccessCode byte = 0xAC
)

// PollLimit and PollDelay bound every handshake wait. They mirror the polling
// loop of the EC firmware itself and are protocol constants, not tunables.
const (
	PollLimit = 0x10000
	PollDelay = 10 * time.Microsecond
)

const (
	Fan1 Fan = iota + 1
	Fan2
)
