package discovery

import "errors"

var (
	// ErrNotFound is returned when no host on the subnet answers on the decoder port.
	ErrNotFound = errors.New("discovery: decoder not found")

	// ErrNoIPv4 is returned when the subnet cannot be derived because the
	// host has no non-loopback IPv4 address.
	ErrNoIPv4 = errors.New("discovery: no IPv4 interface address")

	// ErrInvalidSubnet is returned for a subnet prefix not of the form "a.b.c.".
	ErrInvalidSubnet = errors.New("discovery: invalid subnet prefix")
)
