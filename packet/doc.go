// Package packet frames a byte stream into newline-terminated packets.
//
// A packet is a run of bytes ending in a single '\n'. The newline belongs to
// the packet. Partial packets are retained across reads so that splitting a
// packet over any number of chunks frames the same bytes as sending it whole.
package packet
