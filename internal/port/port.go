// Package port defines the abstract byte-addressable backing for
// GenICam register nodes (spec §3 "Device", L3 in the layering table).
// It is grounded on periph.io/x/periph's conn/mmr package, whose
// Dev8/Dev16/Dev32 helpers read and write fixed-width registers through
// a single conn.Conn.Tx round trip — the same read(address, length) /
// write(address, bytes) shape this package generalizes to 64-bit
// addressing and variable length.
package port

import "context"

// Port is polymorphic over the two primitives every transport (GVCP,
// UVCP) must provide; the GenICam engine never knows which transport
// underlies a Port (§4.2).
type Port interface {
	Read(ctx context.Context, address uint64, length int) ([]byte, error)
	Write(ctx context.Context, address uint64, data []byte) error
}

// RegisterPort is the hot-path extension for a single aligned 32-bit
// access (§4.2 "Devices expose ... read_register / write_register").
// Implementations that have no faster path than Read/Write may embed a
// Port and fall back to it.
type RegisterPort interface {
	Port
	ReadRegister(ctx context.Context, address uint64) (uint32, error)
	WriteRegister(ctx context.Context, address uint64, value uint32) error
}
