package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agonite/agonite/internal/logging"
	"github.com/agonite/agonite/internal/numfmt"
	"github.com/agonite/agonite/internal/version"
	"github.com/agonite/agonite/pkg/debugger"
	"github.com/agonite/agonite/pkg/frontend"
	"github.com/agonite/agonite/pkg/machine"
	"github.com/agonite/agonite/pkg/mos"
	"github.com/agonite/agonite/pkg/sdcard"
)

// defaultClockHz is the Agon Light's eZ80F92 crystal: 18.432 MHz.
const defaultClockHz = 18_432_000

var (
	sdcardDir    string
	sdcardImg    string
	mosPath      string
	firmwareTag  string
	zeroRAM      bool
	unlimitedCPU bool
	withDebugger bool
	breakpoints  []string
	serialDevice string
)

var rootCmd = &cobra.Command{
	Use:     "agonite",
	Short:   "Agon Light (eZ80F92) single-board computer emulator",
	Version: version.String(),
	Long: `agonite emulates an Agon Light single-board computer: an eZ80F92
microcontroller running MOS firmware, connected over UART to a VDP video
and sound coprocessor.

FIRMWARE:
  --mos <path>        load a MOS ROM image directly (a sibling .map file
                       supplies the symbol table hostfs needs)
  --firmware <tag>     resolve <tag>.bin / <tag>.map from the firmware
                       search path instead (see PREFIX below)

STORAGE (at most one is meaningful at a time):
  --sdcard <dir>       emulated SD root on the host filesystem (hostfs)
  --sdcard-img <file>  raw 512-byte-sector SD card image (SPI state machine)

EXAMPLES:
  agonite --mos firmware/mos.bin --sdcard ./sdcard
  agonite --firmware console --sdcard-img disk.img -u
  agonite --mos firmware/mos.bin -d -b 0xC000`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&sdcardDir, "sdcard", "", "host directory to expose as the emulated SD root (hostfs)")
	rootCmd.Flags().StringVar(&sdcardImg, "sdcard-img", "", "raw SD card image file")
	rootCmd.Flags().StringVar(&mosPath, "mos", "", "path to a MOS ROM binary (with a sibling .map file)")
	rootCmd.Flags().StringVar(&firmwareTag, "firmware", "", "firmware tag to resolve from the firmware search path")
	rootCmd.Flags().BoolVarP(&zeroRAM, "zero", "z", false, "zero-fill RAM instead of randomizing it at startup")
	rootCmd.Flags().BoolVarP(&unlimitedCPU, "unlimited-cpu", "u", false, "disable the 1ms throttle and run as fast as possible")
	rootCmd.Flags().BoolVarP(&withDebugger, "debugger", "d", false, "start the debugger server and wait on its command queue before the first instruction")
	rootCmd.Flags().StringArrayVarP(&breakpoints, "breakpoint", "b", nil, "address to install a breakpoint at (repeatable, accepts 0x../&../$../..h/decimal)")
	rootCmd.Flags().StringVar(&serialDevice, "serial-device", "", "bridge UART0 to a real host serial device instead of the VDP link (e.g. /dev/ttyUSB0)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.New("agonite")

	romPath, mapPath, err := resolveFirmware(mosPath, firmwareTag)
	if err != nil {
		return err
	}

	rom, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("reading MOS ROM %s: %w", romPath, err)
	}

	mapFile, err := os.Open(mapPath)
	if err != nil {
		return fmt.Errorf("opening symbol map %s: %w", mapPath, err)
	}
	mosMap, err := mos.Load(mapFile)
	mapFile.Close()
	if err != nil {
		return fmt.Errorf("parsing symbol map %s: %w", mapPath, err)
	}

	m := machine.New()
	m.LoadROM(rom)

	if zeroRAM {
		log.Println("RAM zero-filled")
	} else {
		m.RandomizeRAM(rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	if sdcardDir != "" {
		m.AttachMosMap(mosMap, sdcardDir)
		log.Printf("hostfs root: %s", sdcardDir)
	}

	if sdcardImg != "" {
		img, err := os.OpenFile(sdcardImg, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("opening SD card image %s: %w", sdcardImg, err)
		}
		defer img.Close()
		m.AttachSDCard(sdcard.New(img, os.Stderr))
		log.Printf("SD card image: %s", sdcardImg)
	}

	vdp := frontend.NewFakeVDP()
	uart0Link := frontend.UART0Link{VDP: vdp}
	var uart1Link = uartDummyFallback{}
	if serialDevice != "" {
		host, err := openSerialDevice(serialDevice)
		if err != nil {
			return fmt.Errorf("opening serial device %s: %w", serialDevice, err)
		}
		m.AttachUARTLinks(host, uartDummyFallback{})
		log.Printf("UART0 bridged to host device: %s", serialDevice)
	} else {
		m.AttachUARTLinks(uart0Link, uart1Link)
	}

	if unlimitedCPU {
		m.SetClockSpeed(machine.UnlimitedClockSpeed)
	} else {
		m.SetClockSpeed(defaultClockHz)
	}

	var dbg *debugger.Server
	if withDebugger {
		dbg = debugger.New(m.CPU(), m.Memory())
		for _, raw := range breakpoints {
			addr, err := numfmt.ParseAddress(raw)
			if err != nil {
				return fmt.Errorf("invalid breakpoint address %q: %w", raw, err)
			}
			dbg.AddBreakpoint(addr)
		}
		dbg.Requests() <- debugger.Request{Kind: debugger.ReqPause} // pause before the first instruction
		m.AttachDebugger(dbg)
		log.Printf("debugger server attached, %d breakpoint(s) installed", len(breakpoints))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("shutdown requested")
		m.RequestShutdown()
	}()

	m.Run()
	return nil
}

// resolveFirmware decides which ROM binary and symbol map to load. An
// explicit --mos path wins; its symbol map is expected alongside it with a
// .map extension. Otherwise --firmware <tag> is resolved against the
// firmware search path.
func resolveFirmware(mosFlag, tag string) (romPath, mapPath string, err error) {
	if mosFlag != "" {
		return mosFlag, mapPathFor(mosFlag), nil
	}
	if tag == "" {
		return "", "", fmt.Errorf("no firmware specified: pass --mos <path> or --firmware <tag>")
	}
	for _, dir := range firmwareSearchPath() {
		candidateROM := filepath.Join(dir, tag+".bin")
		candidateMap := filepath.Join(dir, tag+".map")
		if _, err := os.Stat(candidateROM); err == nil {
			return candidateROM, candidateMap, nil
		}
	}
	return "", "", fmt.Errorf("firmware tag %q not found on search path %v", tag, firmwareSearchPath())
}

// mapPathFor derives a symbol-map path from a ROM path by swapping its
// extension for ".map".
func mapPathFor(romPath string) string {
	ext := filepath.Ext(romPath)
	if ext == "" {
		return romPath + ".map"
	}
	return strings.TrimSuffix(romPath, ext) + ".map"
}

// firmwareSearchPath is PREFIX's share directory (if PREFIX is set) followed
// by the current directory's ./firmware, per spec.md §6.
func firmwareSearchPath() []string {
	var dirs []string
	if prefix := os.Getenv("PREFIX"); prefix != "" {
		dirs = append(dirs, filepath.Join(prefix, "share", "agonite"))
	}
	return append(dirs, "firmware")
}

// uartDummyFallback drops everything; used for UART1, which has no VDP or
// host-device peer in this CLI.
type uartDummyFallback struct{}

func (uartDummyFallback) Send(b byte)           {}
func (uartDummyFallback) Recv() (byte, bool)    { return 0, false }
func (uartDummyFallback) ReadClearToSend() bool { return true }
