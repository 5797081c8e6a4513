// Package transport defines the boundary between the soundbox device and the
// USB protocol stack that enumerates it.
//
// The stack is an external collaborator. It owns enumeration and endpoint
// scheduling; the device supplies a [descriptor.Set] and a [Handler], then
// drives the stack by calling [Transport.Task] from a single service loop.
// Every class callback runs synchronously inside Task, so handlers never run
// concurrently with each other.
//
// Class control requests for the composite's interfaces are decoded by a
// [Dispatcher], which any Transport implementation can embed. [Port] adapts
// the CDC data channel to the [drivers.UART] contract.
package transport
