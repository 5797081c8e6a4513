package composite

import (
	"github.com/ardnew/soundbox/pkg"
)

// MountChanged handles the host loading or ejecting the mass-storage medium.
// A load mounts storage only while the console is closed.
func (d *Device) MountChanged(loaded bool) {
	pkg.LogInfo(pkg.ComponentComposite, "medium changed", "loaded", loaded)
	if d.storage == nil {
		return
	}
	if !loaded {
		if err := d.storage.Unmount(); err != nil {
			pkg.LogErr(pkg.ComponentStorage, "unmount on eject failed", err)
		}
		return
	}

	switch {
	case d.console.IsOpen():
		pkg.LogDebug(pkg.ComponentComposite, "mount deferred, console open")
	case d.storage.Mounted():
		pkg.LogDebug(pkg.ComponentComposite, "already mounted")
	default:
		if err := d.storage.Mount(); err != nil {
			pkg.LogErr(pkg.ComponentStorage, "mount on load failed", err)
		}
	}
}

// DataAvailable forwards received console bytes to the bridge.
func (d *Device) DataAvailable(itf uint8) {
	d.console.DataAvailable(itf)
}

// LineStateChanged forwards DTR to the console bridge.
func (d *Device) LineStateChanged(itf uint8, dtr, rts bool) {
	pkg.LogDebug(pkg.ComponentComposite, "line state", "itf", itf, "dtr", dtr, "rts", rts)
	d.console.LineStateChanged(dtr)
}

// AudioPayload relays one audio packet to the output channel.
func (d *Device) AudioPayload(p []byte) {
	if d.relay == nil {
		return
	}
	ctx := d.loopContext()
	if _, err := d.relay.Relay(ctx, p); err != nil {
		if ctx.Err() != nil {
			pkg.LogDebug(pkg.ComponentAudio, "relay abandoned, service loop stopping", "bytes", len(p))
			return
		}
		pkg.LogErr(pkg.ComponentAudio, "relay failed", err, "bytes", len(p))
	}
}

// PortOpened unmounts storage while a terminal holds the console.
func (d *Device) PortOpened() {
	if d.storage == nil {
		return
	}
	if err := d.storage.Unmount(); err != nil {
		pkg.LogErr(pkg.ComponentStorage, "unmount on console open failed", err)
	}
}

// PortClosed makes storage eligible for remount on the next medium load.
func (d *Device) PortClosed() {
	pkg.LogInfo(pkg.ComponentComposite, "console closed, remount deferred to next medium load")
}

// StorageCapacity implements [transport.StorageHandler].
func (d *Device) StorageCapacity() (blocks, blockSize uint32) {
	if d.storage == nil {
		return 0, 0
	}
	return d.storage.Capacity()
}

// StorageRead implements [transport.StorageHandler].
func (d *Device) StorageRead(lba, offset uint32, buf []byte) (int, error) {
	if d.storage == nil {
		return 0, pkg.ErrNotMounted
	}
	return d.storage.ReadBlocks(lba, offset, buf)
}

// StorageWrite implements [transport.StorageHandler].
func (d *Device) StorageWrite(lba, offset uint32, data []byte) (int, error) {
	if d.storage == nil {
		return 0, pkg.ErrNotMounted
	}
	return d.storage.WriteBlocks(lba, offset, data)
}

// StorageReady implements [transport.StorageHandler].
func (d *Device) StorageReady() bool {
	return d.storage != nil && d.storage.Ready()
}
