// Package server provides the TCP server of pktlogd.
//
// A Server binds a listening socket, accepts one connection at a time and
// runs a Session on it until the peer goes away. Each Session frames the
// incoming bytes into packets, appends every packet to the shared log and
// writes the whole log back to the same peer. A Coordinator turns SIGINT and
// SIGTERM into a stop of the accept loop, after which the server removes the
// log file.
//
// # Related Packages
//
//   - github.com/signadot/pktlogd/packet - packet framing
//   - github.com/signadot/pktlogd/storage - the packet log
//   - github.com/signadot/pktlogd/daemon - detaching into the background
package server
