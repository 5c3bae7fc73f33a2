package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/ddcci-go/ddcci"
	"github.com/ddcci-go/ddcci/vcpname"
)

func adapterName(path string) string {
	bus := strings.TrimPrefix(path, "/dev/i2c-")
	data, err := os.ReadFile(fmt.Sprintf("/sys/class/i2c-adapter/i2c-%s/name", bus))
	if err != nil {
		return path
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return path
	}
	return name
}

func parseVerbosity(s string) (ddcci.Verbosity, error) {
	switch s {
	case "none":
		return ddcci.VerboseNone, nil
	case "overview":
		return ddcci.VerboseOverview, nil
	case "protocol":
		return ddcci.VerboseProtocol, nil
	}
	return ddcci.VerboseNone, fmt.Errorf("unknown verbosity %q, expected none, overview or protocol", s)
}

func showDevice(device *ddcci.Device) error {
	fmt.Printf("device:   %s (%s)\n", device.Path(), adapterName(device.Path()))
	fmt.Printf("edid md5: %s\n", device.EDIDFingerprint())
	fmt.Printf("pnp id:   %s\n", device.PNPID())

	model, err := device.Model()
	if err != nil {
		return err
	}
	kind, err := device.Kind()
	if err != nil {
		return err
	}
	fmt.Printf("model:    %s\n", model)
	fmt.Printf("kind:     %s\n", kind)

	controls, err := device.Controls()
	if err != nil {
		return err
	}
	for _, c := range controls {
		fmt.Printf("  0x%02x  %-40s", c.Opcode(), vcpname.Describe(c.Opcode()))
		if values := c.Values(); len(values) > 0 {
			fmt.Printf("  values: %v", values)
		}
		fmt.Println()
	}
	return nil
}

func main() {
	var verbose = pflag.StringP("verbose", "v", "none", "Verbosity: none, overview or protocol")
	var edid = pflag.StringP("edid", "e", "", "Select the device with this EDID MD5 fingerprint")
	var list = pflag.BoolP("list", "l", false, "List every detected device with its controls")
	var vcp = pflag.StringP("vcp", "c", "", "VCP opcode to operate on, e.g. 0x10")
	var value = pflag.Int32P("value", "w", -1, "Value to write to the selected control")
	var reset = pflag.BoolP("reset", "r", false, "Reset the selected control to its factory default")
	var save = pflag.BoolP("save", "s", false, "Save the current settings to the display's EEPROM")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - get and set DDC/CI display controls.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	verbosity, err := parseVerbosity(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := ddcci.NewClient(verbosity)
	defer client.Close()

	devices, err := client.GetDevices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *edid != "" {
		device, err := client.GetDeviceByEDID(*edid)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		devices = []*ddcci.Device{device}
	}

	if *list {
		// Capability retrieval is the slow part of a listing, so tick a
		// bar once per probed device.
		p := mpb.New(mpb.WithWidth(80), mpb.WithOutput(os.Stderr))
		bar := p.AddBar(int64(len(devices)),
			mpb.PrependDecorators(
				decor.Name("Reading capabilities: "),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
			),
		)
		for _, device := range devices {
			_, err := device.Controls()
			bar.Increment()
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", device.Path(), err)
			}
		}
		p.Wait()
		for _, device := range devices {
			if err := showDevice(device); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", device.Path(), err)
			}
			fmt.Println()
		}
		return
	}

	if *vcp != "" {
		opcode, err := strconv.ParseUint(strings.TrimPrefix(*vcp, "0x"), 16, 8)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad vcp opcode %q: %v\n", *vcp, err)
			os.Exit(1)
		}
		for _, device := range devices {
			ctrl, err := device.ControlByOpcode(byte(opcode))
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", device.Path(), err)
				os.Exit(1)
			}
			switch {
			case *reset:
				err = ctrl.Reset()
			case *value >= 0:
				err = ctrl.Set(uint16(*value))
			default:
				var current, maximum uint16
				current, maximum, err = ctrl.Request()
				if err == nil {
					fmt.Printf("%s %s: %d (max %d)\n", device.Path(), vcpname.Describe(ctrl.Opcode()), current, maximum)
				}
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", device.Path(), err)
				os.Exit(1)
			}
		}
	}

	if *save {
		for _, device := range devices {
			if err := device.Save(); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", device.Path(), err)
				os.Exit(1)
			}
		}
	}
}
