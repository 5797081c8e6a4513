// Package composite orchestrates the soundbox composite USB device.
//
// A [Device] boots the storage, audio and console functions, registers
// itself as the transport's class handler and then runs a single service
// loop that calls [transport.Transport.Task]. Every class callback runs
// synchronously inside that loop:
//
//	cfg := composite.DefaultConfig()
//	cfg.Descriptors.UniqueID = flash.UniqueID()
//	dev := composite.New(tr, store, relay, cfg)
//	if err := dev.Boot(ctx); err != nil {
//	    return err // fatal, dev.State() == composite.StateHalted
//	}
//	if err := dev.Start(ctx); err != nil {
//	    return err
//	}
//	return dev.Wait()
//
// # Cross-class policy
//
// Opening the serial console unmounts the data partition so the host and
// the console never touch the filesystem at the same time. Closing the
// console does not remount; the partition is mounted again when the host
// next loads the mass-storage medium, or at the next boot. The console's own
// mount command is refused while the console is open.
package composite
