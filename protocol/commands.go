// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package protocol

// Bus command vocabulary. The texts are QLink constants, not protocol
// logic; the bridge translates them onto the wire.
const (
	// HandshakeCommand confirms the bus is ready for enumeration.
	HandshakeCommand = "VCL 1"

	// MastersCommand lists the master controllers on the bus.
	MastersCommand = "VQM"
)

// HandshakeAck is the exact normalized acknowledgement expected in reply
// to HandshakeCommand. Anything else is a handshake failure.
var HandshakeAck = []string{"1", "0"}

// ModulesCommand builds the module enumeration command for one master.
func ModulesCommand(master string) string {
	return "VQP " + master
}

// StationsCommand builds the station enumeration command for a master or
// module address.
func StationsCommand(addr string) string {
	return "VQS " + addr
}

// IsHandshakeAck reports whether normalized lines match HandshakeAck
// exactly.
func IsHandshakeAck(lines []string) bool {
	if len(lines) != len(HandshakeAck) {
		return false
	}
	for i, tok := range HandshakeAck {
		if lines[i] != tok {
			return false
		}
	}
	return true
}
