// Package domain models Blitzortung lightning strike frames and turns them
// into one-line summaries.
//
// # Data Source
//
// Strikes come from the Blitzortung community detection network, which pushes
// them over a WebSocket (wss://ws1.blitzortung.org/) after the client sends the
// subscription handshake {"a":111}. Each WebSocket message is one frame.
//
// # Frame Encoding
//
// A frame is either plain JSON or JSON compressed with an LZW-style scheme
// whose dictionary is rebuilt from the frame itself:
//
//	code points below 256 are literal characters
//	code points from 256 up refer to dictionary entries built during decoding
//	entry 256+k is previous+first(current) for the k-th step
//	an undefined code means previous+first(previous)
//
// See [Decompress]. The dictionary never outlives one frame.
//
// # Strike Fields
//
//	lat, lon   WGS-84 degrees
//	time       strike time as an integer of unknown unit (see below)
//	pol        polarity: 1 positive, 0 negative, anything else unknown
//	region     Blitzortung region number
//	sig        list of detecting stations; only its length is used
//	delay      network propagation delay estimate in seconds
//
// Missing fields default to zero.
//
// # Strike Time Units
//
// The time field carries no unit. It is inferred from its magnitude:
//
//	> 10^15            nanoseconds since the Unix epoch
//	(10^12, 10^15]     microseconds
//	(10^9, 10^12]      seconds
//	anything else      unknown, shown as "??:??:??"
//
// This is best-effort inference, not authoritative decoding. See [InferTimeUnit].
package domain
