// Package storage backs the soundbox mass-storage volume.
//
// The data partition is located in a [Table] laid over a flash
// [tinyfs.BlockDevice], wrapped by a [WearLeveler] that hides erase
// semantics, and mounted as a [Filesystem] at a fixed path. An [Adapter]
// owns the resulting handle: it serializes mount state transitions with the
// block I/O the USB host issues, and exposes the directory listing used for
// diagnostics.
//
// On desktop builds, [Flash] emulates NOR flash in memory or in a file, and
// [NewFAT] binds the FAT implementation from tinygo.org/x/tinyfs/fatfs when
// cgo is available.
package storage
