package server

import "errors"

// ErrSocketSetup indicates that creating, configuring or binding the
// listening socket failed.
var ErrSocketSetup = errors.New("socket setup failed")

// ErrListen indicates that the bound socket could not be put into the
// listening state.
var ErrListen = errors.New("listen failed")
