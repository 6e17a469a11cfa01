// Package transport provides the datagram endpoints the meshwire
// stack runs on.
//
// The stack is pump-driven: no layer owns a goroutine that advances
// protocol state. The transport therefore exposes a strictly
// non-blocking receive - Recv returns the next buffered datagram or
// reports that none is pending, and all protocol work happens when
// the layers above drain it.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│     Persistent (lifecycle)     │
//	├────────────────────────────────┤
//	│   Frame (fragment/reassemble)  │
//	├────────────────────────────────┤
//	│   Reliable (seq/ack/resend)    │
//	├────────────────────────────────┤
//	│    CBOR Packet envelope        │
//	├────────────────────────────────┤
//	│            UDP                 │
//	└────────────────────────────────┘
//
// # Implementations
//
// UDPConn wraps a real socket. A single reader goroutine moves
// datagrams from the OS into a bounded queue; it never touches
// protocol state, so pump determinism is preserved. When the queue
// is full the oldest datagrams are simply lost, which is no more
// than UDP already promises.
//
// MemoryNetwork routes datagrams between in-process endpoints
// synchronously, with an optional filter for dropping or inspecting
// traffic. Tests use it to exercise loss, duplication, and partition
// scenarios deterministically.
package transport
