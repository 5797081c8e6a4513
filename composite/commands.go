package composite

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/ardnew/soundbox/console"
	"github.com/ardnew/soundbox/pkg"
)

func (d *Device) registerCommands() {
	for _, cmd := range []console.Command{
		{
			Name:    "ls",
			Aliases: []string{"dir"},
			Usage:   "ls",
			Help:    "List the data partition",
			Run:     d.cmdList,
		},
		{
			Name:  "mount",
			Usage: "mount",
			Help:  "Mount the data partition (refused while the console is open)",
			Run:   d.cmdMount,
		},
		{
			Name:    "umount",
			Aliases: []string{"unmount"},
			Usage:   "umount",
			Help:    "Unmount the data partition",
			Run:     d.cmdUnmount,
		},
		{
			Name:  "status",
			Usage: "status",
			Help:  "Show device state",
			Run:   d.cmdStatus,
		},
		{
			Name:  "audio",
			Usage: "audio",
			Help:  "Show audio relay statistics",
			Run:   d.cmdAudio,
		},
	} {
		if err := d.registry.Register(cmd); err != nil {
			pkg.LogWarn(pkg.ComponentConsole, "command not registered", "name", cmd.Name, "error", err)
		}
	}
}

func (d *Device) cmdList(w io.Writer, _ []string) int {
	if d.storage == nil {
		fmt.Fprint(w, "no storage\r\n")
		return console.StatusError
	}
	infos, err := d.storage.List()
	if err != nil {
		fmt.Fprintf(w, "ls: %v\r\n", err)
		return console.StatusError
	}
	for _, fi := range infos {
		kind := "-"
		if fi.IsDir() {
			kind = "d"
		}
		fmt.Fprintf(w, "%s %8s  %s\r\n", kind, humanize.IBytes(uint64(fi.Size())), fi.Name())
	}
	fmt.Fprintf(w, "%d entries in %s\r\n", len(infos), d.storage.Path())
	return console.StatusOK
}

func (d *Device) cmdMount(w io.Writer, _ []string) int {
	if d.storage == nil {
		fmt.Fprint(w, "no storage\r\n")
		return console.StatusError
	}
	if d.console.IsOpen() {
		fmt.Fprint(w, "mount: console open, storage stays detached until it closes\r\n")
		return console.StatusError
	}
	if err := d.storage.Mount(); err != nil {
		fmt.Fprintf(w, "mount: %v\r\n", err)
		return console.StatusError
	}
	fmt.Fprintf(w, "mounted %s\r\n", d.storage.Path())
	return console.StatusOK
}

func (d *Device) cmdUnmount(w io.Writer, _ []string) int {
	if d.storage == nil {
		fmt.Fprint(w, "no storage\r\n")
		return console.StatusError
	}
	if err := d.storage.Unmount(); err != nil {
		fmt.Fprintf(w, "umount: %v\r\n", err)
		return console.StatusError
	}
	fmt.Fprintf(w, "unmounted %s\r\n", d.storage.Path())
	return console.StatusOK
}

func (d *Device) cmdStatus(w io.Writer, _ []string) int {
	fmt.Fprintf(w, "state:    %s\r\n", d.State())
	fmt.Fprintf(w, "features: %s\r\n", d.cfg.Descriptors.Features)
	fmt.Fprintf(w, "console:  %s\r\n", d.console.State())
	fmt.Fprintf(w, "usb:      connected=%t\r\n", d.transport.Connected())
	if d.storage != nil {
		blocks, size := d.storage.Capacity()
		st := d.storage.Stats()
		fmt.Fprintf(w, "storage:  %s %s (%s)\r\n",
			d.storage.State(), d.storage.Path(),
			humanize.IBytes(uint64(blocks)*uint64(size)))
		fmt.Fprintf(w, "blocks:   %s read, %s written\r\n",
			humanize.Comma(int64(st.BlocksRead)), humanize.Comma(int64(st.BlocksWritten)))
	}
	return console.StatusOK
}

func (d *Device) cmdAudio(w io.Writer, _ []string) int {
	if d.relay == nil {
		fmt.Fprint(w, "no audio\r\n")
		return console.StatusError
	}
	cfg, ok := d.relay.Config()
	if !ok {
		fmt.Fprint(w, "audio: not configured\r\n")
		return console.StatusError
	}
	st := d.relay.Stats()
	fmt.Fprintf(w, "format:    %d Hz, %d-bit, %d ch, %s policy\r\n",
		cfg.SampleRate, cfg.BitsPerSample, cfg.Channels, cfg.Policy)
	fmt.Fprintf(w, "ring:      %d x %d frames (%s, %v)\r\n",
		cfg.DMADescriptors, cfg.FrameCount, humanize.IBytes(uint64(cfg.BufferBytes())), cfg.Latency())
	fmt.Fprintf(w, "payloads:  %s\r\n", humanize.Comma(int64(st.Payloads)))
	fmt.Fprintf(w, "written:   %s\r\n", humanize.IBytes(st.BytesWritten))
	fmt.Fprintf(w, "underruns: %s (%s dropped)\r\n",
		humanize.Comma(int64(st.Underruns)), humanize.IBytes(st.DroppedBytes))
	return console.StatusOK
}
