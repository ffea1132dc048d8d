// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Seagate/lpss-lib/pkg/ig4"
	"github.com/Seagate/lpss-lib/pkg/lpss"
	"github.com/Seagate/lpss-lib/pkg/newbus"
	"github.com/Seagate/lpss-lib/pkg/newbus/sysfsbus"

	"k8s.io/klog/v2"
)

var Version = "1.0.0"

// This variable is filled in during the linker step - -ldflags "-X main.buildTime=`date -u '+%Y-%m-%dT%H:%M:%S'`"
var buildTime = ""

var helptxt = `
lpss-util is a command line tool to discover and exercise Intel LPSS PCI functions on the host server.

Usage:
./lpss-util [--version] [--help] [--list] [--PCIE=BUS:DEV.FUN] [--priv] [--init] [--cycle] [--sysfs=/sys] [--verbosity=0]

Which:
	version            : Print the version of this application and exit
	help               : Print the help text and exit
	list               : List all LPSS functions on the host
	PCIE=BUS:DEV.FUN   : Print the platform profile of the LPSS function at BUS:DEV.FUN
	priv               : Print the decoded private registers. Need to use with --PCIE
	init               : Attach the controller, run the power-on sequence and detach again. Need to use with --PCIE
	cycle              : Run a suspend/resume cycle while attached. Need to use with --init
	sysfs              : Mount point of sysfs
	verbosity          : Set the log level verbosity, where 0 is no longing and 4 is very verbose
`

const (
	DefaultVerbosity = "0" // Default log level
	DefaultSysfs     = "/sys"
)

type Settings struct {
	Version   bool   // Print the version of this application and exit if true
	Verbosity string // The log level verbosity, where 0 is no longing and 4 is very verbose
	Help      bool   // Print the help text and exit
	List      bool   // List all LPSS functions on the host
	PCIE      string // Address of the LPSS function to work on
	Priv      bool   // Print the decoded private registers
	Init      bool   // Attach, initialize and detach the controller
	Cycle     bool   // Suspend and resume while attached
	Sysfs     string // sysfs mount point
}

// InitContext: initialize the configuration data using command line args
func (s *Settings) InitContext(args []string, ctx context.Context) (error, context.Context) {

	newContext := ctx

	flags := flag.NewFlagSet(args[0], flag.ExitOnError)

	var (
		version   = flags.Bool("version", false, "Display version and exit")
		verbosity = flags.String("verbosity", DefaultVerbosity, "Log level verbosity")
		help      = flags.Bool("help", false, "Print the help text")
		list      = flags.Bool("list", false, "List all LPSS functions on the host")
		pcie      = flags.String("PCIE", "", "Address of the LPSS function, BUS:DEV.FUN")
		priv      = flags.Bool("priv", false, "Print the decoded private registers. Need to use with --PCIE")
		initDev   = flags.Bool("init", false, "Attach, initialize and detach the controller. Need to use with --PCIE")
		cycle     = flags.Bool("cycle", false, "Run a suspend/resume cycle while attached. Need to use with --init")
		sysfs     = flags.String("sysfs", DefaultSysfs, "sysfs mount point")
	)

	err := flags.Parse(args[1:])
	if err != nil {
		return err, newContext
	}

	// Update the configuration object with the parsed values
	s.Version = *version
	s.Verbosity = *verbosity
	s.Help = *help
	s.List = *list
	s.PCIE = *pcie
	s.Priv = *priv
	s.Init = *initDev
	s.Cycle = *cycle
	s.Sysfs = *sysfs

	if len(args) == 1 {
		s.Help = true
	}
	if s.Cycle && !s.Init {
		return fmt.Errorf("--cycle needs --init"), newContext
	}
	if (s.Priv || s.Init) && s.PCIE == "" {
		return fmt.Errorf("--priv and --init need --PCIE"), newContext
	}

	return nil, newContext
}

func PrintTableToStdout(table any, prefix, indent string) {
	s, _ := json.MarshalIndent(table, prefix, indent)
	fmt.Print(string(s), "\n")
}

// lpssFunctions enumerates the Intel functions with a known LPSS profile.
func lpssFunctions(host *sysfsbus.Host, root *newbus.Device) ([]*newbus.Device, error) {
	devs, err := host.Enumerate(root, lpss.PCI_VENDOR_INTEL)
	if err != nil {
		return nil, err
	}
	var out []*newbus.Device
	for _, dev := range devs {
		p := dev.PCI()
		if _, ok := lpss.LookupProfile(p.Vendor, p.Device); ok {
			out = append(out, dev)
		}
	}
	return out, nil
}

func attachAndCycle(dev *newbus.Device, cycle bool) error {
	reg := newbus.NewRegistry()
	if err := lpss.Register(reg); err != nil {
		return err
	}
	// No I2C engine is wired into this tool, so the child is created but
	// left unattached.
	if err := ig4.Register(reg, nil); err != nil {
		return err
	}

	if err := reg.ProbeAndAttach(dev); err != nil {
		return err
	}
	ctrl := dev.Driver().(*lpss.Controller)
	fmt.Printf("\nAttached %s (%s), type %s, iDMA %v\n", dev.NameUnit(), dev.Desc(), ctrl.Caps().Type, ctrl.Caps().HasDMA)
	for _, child := range dev.Children() {
		fmt.Printf("   child %s attached=%v\n", child.NameUnit(), child.Attached())
	}

	var cycleErr error
	if cycle {
		before := lpss.Save(ctrl.PrivateWindow())
		if cycleErr = reg.Suspend(dev); cycleErr == nil {
			cycleErr = reg.Resume(dev)
		}
		if cycleErr == nil {
			after := lpss.Save(ctrl.PrivateWindow())
			for i := range before {
				if before[i] != after[i] {
					fmt.Printf("   priv 0x%02x: 0x%08x -> 0x%08x\n", i*4, before[i], after[i])
				}
			}
			fmt.Printf("Suspend/resume cycle done\n")
		}
	}

	if err := reg.Detach(dev); err != nil {
		return err
	}
	return cycleErr
}

func main() {

	// Extract settings and initialize context using command line args or defaults
	settings := Settings{}
	ctx := context.Background()
	var err error
	err, ctx = settings.InitContext(os.Args, ctx)

	if err != nil {
		fmt.Printf("ERROR: parsing parameters, err=%v\n", err)
		os.Exit(1)
	}

	// Set verbosity level according to the 'verbosity' flag
	var l klog.Level
	l.Set(settings.Verbosity)
	defer klog.Flush()

	// lpss-util banner
	args := strings.Join(os.Args[1:], " ")
	klog.V(1).InfoS("lpss-util", "args", args)
	klog.V(2).InfoS("lpss-util", "settings", settings)

	if settings.Version {
		fmt.Println("[] lpss-util", "version", Version, "build", buildTime)
		os.Exit(0)
	}

	if settings.Help {
		fmt.Print(helptxt)
		os.Exit(0)
	}

	host, err := sysfsbus.NewHost(klog.Background(), settings.Sysfs)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	root := newbus.NewRoot("pci", host)
	devList, err := lpssFunctions(host, root)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	if settings.List {
		prFmt := "%12s | %10s | %10s | %8s | %30s \n"
		fmt.Printf("Print the list of LPSS devs. Total devices found: %d\n", len(devList))
		fmt.Printf(prFmt, "BUS:DEV.FUN", "Device", "Platform", "Clock", "Product")
		for _, dev := range devList {
			p := dev.PCI()
			profile, _ := lpss.LookupProfile(p.Vendor, p.Device)
			product := lpss.ProductName(p.Vendor, p.Device)
			if len(product) > 30 {
				product = product[:27] + "..."
			}
			fmt.Printf(prFmt, p.Addr, fmt.Sprintf("%04x", p.Device), profile.Platform, fmt.Sprintf("%dMHz", profile.ClockRate()/1000000), product)
		}
	}

	if settings.PCIE != "" {
		addr, err := sysfsbus.ParseAddress(settings.PCIE)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}

		var dev *newbus.Device
		for _, d := range devList {
			if d.PCI().Addr == addr.String() {
				dev = d
			}
		}
		if dev == nil {
			fmt.Printf("No LPSS dev on BDF %s \n", addr)
			os.Exit(1)
		}

		p := dev.PCI()
		profile, _ := lpss.LookupProfile(p.Vendor, p.Device)
		fmt.Printf("\nLPSS function %s: %s\n", addr, lpss.VendorName(p.Vendor))
		PrintTableToStdout(profile, "   ", "   ")

		if settings.Priv {
			report, err := lpss.Inspect(host, dev)
			if err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("\nCapabilities: 0x%08x type %s iDMA %v\n", report.Caps.Raw, report.Caps.Type, report.Caps.HasDMA)
			fmt.Printf("\nPrivate registers:\n")
			PrintTableToStdout(report.Regs, "   ", "   ")
			fmt.Printf("   Active LTR: %d ns, Idle LTR: %d ns\n",
				lpss.LTRNanoseconds(report.Snapshot[lpss.LPSS_PRIV_ACTIVELTR/4]),
				lpss.LTRNanoseconds(report.Snapshot[lpss.LPSS_PRIV_IDLELTR/4]))
		}

		if settings.Init {
			if err := attachAndCycle(dev, settings.Cycle); err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
		}
	}
}
