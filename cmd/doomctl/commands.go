package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/emergingrobotics/go-harddoom/pkg/command"
	"github.com/emergingrobotics/go-harddoom/pkg/config"
	"github.com/emergingrobotics/go-harddoom/pkg/device"
	"github.com/emergingrobotics/go-harddoom/pkg/dma"
	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "doomctl",
		Short:         "HardDoom accelerator control",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newScanCommand(),
		newInfoCommand(),
		newRunCommand(),
		newDecodeCommand(),
		newDebugCommand(),
		newVersionCommand(),
	)
	return root
}

func newScanCommand() *cobra.Command {
	var sysfs string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for accelerators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := driver.ScanPCI(sysfs)
			if err != nil {
				return fmt.Errorf("scanning devices: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No HardDoom devices found")
				return nil
			}
			fmt.Fprintf(out, "Found %d HardDoom device(s):\n", len(devices))
			for i, dev := range devices {
				fmt.Fprintf(out, "  [%d] %s (%04x:%04x)\n", i, dev.Address, dev.Vendor, dev.Device)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sysfs, "sysfs", driver.PCIDevicesRoot, "sysfs PCI device directory")
	return cmd
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <pci-address>",
		Short: "Dump device registers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mmio, err := driver.OpenMMIO(driver.ResourcePath(args[0]), driver.RegisterSpace)
			if err != nil {
				return err
			}
			defer mmio.Close()
			printRegisters(cmd.OutOrStdout(), args[0], mmio)
			return nil
		},
	}
}

var registerNames = []struct {
	name   string
	offset uint32
}{
	{"ENABLE", driver.RegEnable},
	{"INTR", driver.RegIntr},
	{"INTR_ENABLE", driver.RegIntrEnable},
	{"CMD_PT", driver.RegCmdPT},
	{"CMD_SIZE", driver.RegCmdSize},
	{"CMD_READ_IDX", driver.RegCmdReadIdx},
	{"CMD_WRITE_IDX", driver.RegCmdWriteIdx},
}

func printRegisters(out io.Writer, name string, regs driver.Registers) {
	fmt.Fprintf(out, "Device: %s\n", name)
	for _, r := range registerNames {
		fmt.Fprintf(out, "  %-14s [0x%03x] 0x%08x\n", r.name, r.offset, regs.Read32(r.offset))
	}
}

func newRunCommand() *cobra.Command {
	var (
		cfgPath  string
		cmdsPath string
		color    uint8
		poll     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Probe configured devices and submit a test batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if cfgPath != "" {
				var err error
				if cfg, err = config.Load(cfgPath); err != nil {
					return err
				}
			}
			driver.SetLogger(cfg.Logger())
			if len(cfg.Devices) == 0 {
				return device.ErrNoDevices
			}

			var records []byte
			if cmdsPath != "" {
				var err error
				if records, err = os.ReadFile(cmdsPath); err != nil {
					return fmt.Errorf("failed to read commands: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			reg := device.NewRegistry(cfg.MaxDevices)
			defer reg.Close()

			g, ctx := errgroup.WithContext(ctx)
			for _, dc := range cfg.Devices {
				dc := dc
				g.Go(func() error {
					return runDevice(ctx, cmd.OutOrStdout(), cfg, dc, reg, records, color, poll)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "configuration file")
	cmd.Flags().StringVar(&cmdsPath, "commands", "", "file of raw command records to submit")
	cmd.Flags().Uint8Var(&color, "color", 0, "fill color of the test surface")
	cmd.Flags().DurationVar(&poll, "poll", time.Millisecond, "interrupt poll interval when no UIO device is configured")
	return cmd
}

// runDevice probes one device, clears a surface and submits the batch
func runDevice(ctx context.Context, out io.Writer, cfg *config.Config, dc config.DeviceConfig,
	reg *device.Registry, records []byte, color uint8, poll time.Duration) error {
	name := dc.DisplayName()

	microcode, err := dc.LoadMicrocode()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	mmio, err := driver.OpenMMIO(driver.ResourcePath(dc.PCI), driver.RegisterSpace)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer mmio.Close()

	dev, err := device.Probe(mmio, dma.NewHostPlatform(cfg.DmaAddressBits), device.Options{
		Name:      name,
		RingSize:  cfg.RingSize,
		Microcode: microcode,
	})
	if err != nil {
		return err
	}
	id, err := reg.Add(dev)
	if err != nil {
		dev.Remove()
		return err
	}

	irqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go serveInterrupts(irqCtx, dev, dc.UIO, poll)

	s, err := dev.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	surf, err := s.CreateSurface(640, 480)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer surf.Release()
	if err := s.Bind(command.SlotDst, surf); err != nil {
		return err
	}

	n, err := s.Submit([]command.Raw{command.FillRect{Width: 640, Height: 480, Color: color}})
	if err != nil {
		return fmt.Errorf("%s: clear: %w", name, err)
	}
	fmt.Fprintf(out, "[%d] %s: cleared 640x480 surface (%d bytes)\n", id, name, n)

	for len(records) > 0 {
		n, err := s.Write(records)
		if err != nil {
			return fmt.Errorf("%s: submit: %w", name, err)
		}
		fmt.Fprintf(out, "[%d] %s: submitted %d bytes\n", id, name, n)
		records = records[n:]
		if len(records) < command.RawSize {
			break
		}
	}
	return nil
}

// serveInterrupts dispatches device interrupts from UIO, or polls the
// interrupt register when no UIO device is configured
func serveInterrupts(ctx context.Context, dev *device.Device, uio string, poll time.Duration) {
	if uio != "" {
		src, err := driver.OpenUIO(uio)
		if err == nil {
			if err := dev.ServeInterrupts(ctx, src); err != nil && ctx.Err() == nil {
				driver.Logger().Error("interrupt loop stopped", "device", dev.Name(), "err", err)
			}
			return
		}
		driver.Logger().Warn("falling back to polling", "device", dev.Name(), "uio", uio, "err", err)
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dev.HandleInterrupt()
		}
	}
}

func newDecodeCommand() *cobra.Command {
	var words bool
	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode a file of raw command records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if words {
				return printWords(cmd.OutOrStdout(), data)
			}
			return printCommands(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().BoolVar(&words, "words", false, "decode packed instruction words instead of raw records")
	return cmd
}

func printCommands(out io.Writer, data []byte) error {
	cmds, err := command.DecodeAll(data)
	for i, c := range cmds {
		fmt.Fprintf(out, "%4d  %-16s %+v\n", i, c.Kind(), c)
	}
	if rest := len(data) % command.RawSize; rest != 0 && err == nil {
		fmt.Fprintf(out, "(%d trailing bytes ignored)\n", rest)
	}
	return err
}

func printWords(out io.Writer, data []byte) error {
	for i := 0; i+command.WordSize <= len(data); i += command.WordSize {
		w := command.WordFromBytes(data[i : i+command.WordSize])
		ins, err := command.Unpack(w)
		if err != nil {
			return fmt.Errorf("word %d: %w", i/command.WordSize, err)
		}
		fmt.Fprintf(out, "%4d  %-16s flags=0x%02x %+v\n", i/command.WordSize, ins.Type, uint32(ins.Flags), ins)
	}
	return nil
}

func newDebugCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Print ABI debug information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "ABI Debug Information")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "PCI ID: %04x:%04x\n", driver.VendorID, driver.DeviceID)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Record Sizes:")
			fmt.Fprintf(out, "  CreateSurfaceRequest: %d bytes\n", driver.SizeOfCreateSurfaceRequest)
			fmt.Fprintf(out, "  CreateBufferRequest:  %d bytes\n", driver.SizeOfCreateBufferRequest)
			fmt.Fprintf(out, "  SetupRequest:         %d bytes\n", driver.SizeOfSetupRequest)
			fmt.Fprintf(out, "  Raw command:          %d bytes\n", command.RawSize)
			fmt.Fprintf(out, "  Instruction word:     %d bytes\n", command.WordSize)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "IOCTL Command Codes:")
			for _, code := range []uint32{driver.IoctlCreateSurfaceCode, driver.IoctlCreateBufferCode, driver.IoctlSetupCode} {
				fmt.Fprintf(out, "  %-26s 0x%08x\n", driver.IoctlName(code), code)
			}
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "doomctl version %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Go version: %s\n", GoVersion)
		},
	}
}
