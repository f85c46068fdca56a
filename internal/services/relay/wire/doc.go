// Package wire encodes and decodes the relay's two binary formats.
//
// Control frames travel over the connection-oriented plane and carry a fixed
// 32-byte header: room-name length (1), operation (1), state (1), and a 29-byte
// big-endian payload length, followed by the room name and a JSON payload.
//
// Datagrams travel over the connectionless plane with a 2-byte header (room-name
// length, token length) followed by the room name, token, and message bytes.
// The message has no length prefix; the datagram boundary ends it.
package wire
