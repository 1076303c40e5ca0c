// Package storage provides the file backed packet log of pktlogd.
//
// The log is a single file of concatenated packets with no structure beyond
// the packet newlines. It is created on demand, appended to and streamed back
// in full, and removed when the server shuts down.
package storage
