package models

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
)

// Protocol is the transport protocol column of a connection listing
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
	ProtocolTCP6
	ProtocolUDP6
)

var protocolNames = map[Protocol]string{
	ProtocolTCP:  "TCP",
	ProtocolUDP:  "UDP",
	ProtocolTCP6: "TCP6",
	ProtocolUDP6: "UDP6",
}

// protocolTokens maps every token the listing may print to its protocol.
// Matching is case-sensitive.
var protocolTokens = map[string]Protocol{
	"TCP":   ProtocolTCP,
	"UDP":   ProtocolUDP,
	"TCP6":  ProtocolTCP6,
	"UDP6":  ProtocolUDP6,
	"TCPv6": ProtocolTCP6,
	"UDPv6": ProtocolUDP6,
}

// ParseProtocol returns the protocol for a listing token
func ParseProtocol(token string) (Protocol, bool) {
	p, ok := protocolTokens[token]
	return p, ok
}

// ProtocolTokens returns every accepted protocol token, longest first so that
// regex alternations prefer TCPv6 over TCP.
func ProtocolTokens() []string {
	return []string{"TCPv6", "UDPv6", "TCP6", "UDP6", "TCP", "UDP"}
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// IsUDP reports whether the protocol is connectionless
func (p Protocol) IsUDP() bool {
	return p == ProtocolUDP || p == ProtocolUDP6
}

func (p Protocol) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ConnectionState is the TCP state column; UDP rows carry StateNotApplicable
type ConnectionState int

const (
	StateNotApplicable ConnectionState = iota
	StateCloseWait
	StateClosed
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateLastAck
	StateListening
	StateSynReceived
	StateSynSent
	StateTimeWait
)

var stateNames = []string{
	StateNotApplicable: "",
	StateCloseWait:     "CLOSE_WAIT",
	StateClosed:        "CLOSED",
	StateEstablished:   "ESTABLISHED",
	StateFinWait1:      "FIN_WAIT_1",
	StateFinWait2:      "FIN_WAIT_2",
	StateLastAck:       "LAST_ACK",
	StateListening:     "LISTENING",
	StateSynReceived:   "SYN_RECEIVED",
	StateSynSent:       "SYN_SENT",
	StateTimeWait:      "TIME_WAIT",
}

// ParseState returns the state for a listing token. The empty token is not a
// state; callers treat a missing column as StateNotApplicable.
func ParseState(token string) (ConnectionState, bool) {
	if token == "" {
		return StateNotApplicable, false
	}
	for i, name := range stateNames {
		if name == token {
			return ConnectionState(i), true
		}
	}
	return StateNotApplicable, false
}

// StateTokens returns the listing tokens of every real state
func StateTokens() []string {
	return append([]string(nil), stateNames[1:]...)
}

func (s ConnectionState) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		if s == StateNotApplicable {
			return "N/A"
		}
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ConnectionRecord is one observed connection or listener
type ConnectionRecord struct {
	Protocol  Protocol        `json:"protocol"`
	Local     netip.AddrPort  `json:"local"`
	Remote    netip.AddrPort  `json:"remote,omitempty"`
	HasRemote bool            `json:"has_remote"`
	State     ConnectionState `json:"state"`
	PID       int             `json:"pid"`
}

// HasState reports whether the source line carried a state token
func (r ConnectionRecord) HasState() bool {
	return r.State != StateNotApplicable
}

// String renders the record in the listing column layout
func (r ConnectionRecord) String() string {
	remote := "*:*"
	if r.HasRemote {
		remote = FormatEndpoint(r.Remote)
	}
	cols := []string{r.Protocol.String(), FormatEndpoint(r.Local), remote}
	if r.HasState() {
		cols = append(cols, r.State.String())
	}
	cols = append(cols, fmt.Sprintf("%d", r.PID))
	return strings.Join(cols, "  ")
}

// FormatEndpoint renders an endpoint the way netstat prints it: IPv6
// addresses are bracketed.
func FormatEndpoint(ep netip.AddrPort) string {
	return ep.String()
}

// StateCounts is the Listen / Established / Other breakdown of a set of records
type StateCounts struct {
	Listen      int `json:"listen"`
	Established int `json:"established"`
	Other       int `json:"other"`
}

// Add counts one record's state
func (c *StateCounts) Add(state ConnectionState) {
	switch state {
	case StateListening:
		c.Listen++
	case StateEstablished:
		c.Established++
	default:
		c.Other++
	}
}

// Total returns the number of records counted
func (c StateCounts) Total() int {
	return c.Listen + c.Established + c.Other
}

func (c StateCounts) String() string {
	return fmt.Sprintf("Listen: %d, Established: %d, Other: %d", c.Listen, c.Established, c.Other)
}
