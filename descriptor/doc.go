// Package descriptor builds the USB identity of the soundbox composite
// device: the device descriptor, the configuration descriptor carrying the
// mass-storage, CDC-ACM and UAC2 speaker functions, and the string table.
//
// The descriptors are derived from a [Features] bitmap. Interface numbers
// are assigned in the fixed order MSC, CDC (control, data), audio (control,
// streaming) and compact when a feature is disabled; endpoint addresses never
// move. [Build] returns a [Set] whose [InterfaceMap] is the single source of
// truth for interface numbering, and [Set.Validate] checks that the encoded
// configuration agrees with it.
//
// Descriptor structs follow a MarshalTo idiom: each writes itself into a
// caller-provided buffer and returns the number of bytes written, or 0 if the
// buffer is too small.
package descriptor
