// Package discovery implements mDNS/DNS-SD discovery of Relay brokers.
//
// Brokers advertise the service type _relay._tcp in the local domain. The
// instance name is free-form (at most 63 bytes). TXT records carry:
//
//   - ver: protocol version announced in Info
//   - cap: comma separated capabilities (push, pull, tls)
//   - max: maximum message length in bytes (optional)
//
// A discovered broker is a hint only. The handshake remains authoritative
// for version, capabilities and limits.
package discovery
