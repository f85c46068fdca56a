// Package timeouts defines shared timeout constants used across relay
// components so the values stay discoverable in one place.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the admin gRPC endpoint.
const GRPCDial = 2 * time.Second

// ControlRead bounds how long a control-plane connection may take to deliver
// its full request frame.
const ControlRead = 10 * time.Second

// ControlWrite bounds the response write on a control-plane connection.
const ControlWrite = 5 * time.Second

// Shutdown limits how long the server waits for in-flight work to drain.
const Shutdown = 5 * time.Second
