// Command wipe returns a bolt card to factory state using its wipe code or
// key files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/barnettlynn/boltcard/internal/cli"
	"github.com/barnettlynn/boltcard/pkg/boltcard"
	"github.com/barnettlynn/boltcard/pkg/ntag424"
	"github.com/barnettlynn/boltcard/wipe/internal/config"
)

const configFileName = "config.yaml"

func main() {
	logFlags := cli.RegisterLogFlags(flag.CommandLine)
	configFlag := flag.String("config", "", "config file (default: config.yaml next to the executable or in the working directory)")
	codeFlag := flag.String("code", "", "wipe code JSON file; overrides the config key source")
	flag.Parse()

	if err := logFlags.SetupLogging(os.Stderr); err != nil {
		log.Fatal(err)
	}

	configPath := *configFlag
	if configPath == "" {
		var err error
		if configPath, err = cli.DefaultConfigPath(configFileName); err != nil {
			log.Fatalf("resolve config path failed: %v", err)
		}
	}
	fmt.Printf("Using config: %s\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *codeFlag != "" {
		cfg.WipeCodeFile = *codeFlag
	}

	keys, version, err := loadKeys(cfg)
	if err != nil {
		log.Fatalf("keys invalid: %v", err)
	}

	reader, err := ntag424.OpenReader(*cfg.Runtime.ReaderIndex)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()
	fmt.Printf("Using reader [%d]: %s\n", reader.Index, reader.Name)

	fmt.Println("Place the card to wipe on the reader...")
	if err := reader.WaitForCard(cfg.Runtime.WaitTimeout); err != nil {
		log.Fatalf("wait for card failed: %v", err)
	}
	conn, err := reader.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	uid, err := ntag424.GetUID(conn)
	if err != nil {
		log.Fatalf("get UID failed: %v", err)
	}
	fmt.Printf("Tag UID: %X\n", uid)
	printNDEFSettings(conn, "Before")

	if err := boltcard.Wipe(conn, keys, boltcard.Options{KeyVersion: version}); err != nil {
		var stepErr *boltcard.StepError
		if errors.As(err, &stepErr) && strings.HasPrefix(stepErr.Step, "auth") {
			fmt.Println("k0 was rejected by the card.")
			diagnose(conn, keys[0], cfg.Runtime.KeyDir)
		}
		log.Fatalf("wipe failed: %v", err)
	}

	printNDEFSettings(conn, "After")
	fmt.Println("Card wiped. All keys are back to the factory default.")
}

func loadKeys(cfg *config.Config) ([][]byte, byte, error) {
	if cfg.Source() != config.SourcePrompt {
		return cfg.LoadKeys()
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, 0, fmt.Errorf("read wipe code: %w", err)
		}
		return config.KeysFromWipeCode(data)
	}

	fmt.Print("Paste the wipe code JSON (input hidden), then press Enter: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, 0, fmt.Errorf("read wipe code: %w", err)
	}
	return config.KeysFromWipeCode(data)
}

func printNDEFSettings(conn *ntag424.Connection, label string) {
	fs, err := ntag424.GetFileSettings(conn, ntag424.FileNDEF)
	if err != nil {
		fmt.Printf("%s: GetFileSettings failed: %v\n", label, err)
		return
	}
	ntag424.PrintFileSettings(os.Stdout, label, ntag424.FileNDEF, fs)
}

// diagnose reports whether slot 0 still holds the factory key, then tries
// k0 on every slot and finally every key in keyDir on slot 0.
func diagnose(conn *ntag424.Connection, k0 []byte, keyDir string) {
	if _, used, err := ntag424.AuthenticateWithFallback(conn, k0, 0); err == nil {
		if used.Factory {
			fmt.Println("slot 0 holds the factory key; the card is not burned.")
		} else {
			fmt.Printf("k0 opens %s on retry.\n", used.Label)
		}
		return
	}

	slots := make([]byte, boltcard.KeyCount)
	for i := range slots {
		slots[i] = byte(i)
	}
	matches := 0
	for _, r := range ntag424.DiagnoseAuthSlots(conn, k0, slots) {
		switch {
		case r.Success:
			fmt.Printf("slot=%d status=ok\n", r.Slot)
			matches++
		case r.Step != "":
			fmt.Printf("slot=%d status=fail step=%s sw=%04X resp_len=%d\n", r.Slot, r.Step, r.SW, r.RespLen)
		default:
			fmt.Printf("slot=%d status=fail err=%v\n", r.Slot, r.Err)
		}
	}
	if matches > 0 || keyDir == "" {
		return
	}

	candidates, err := ntag424.LoadAllHexKeys(keyDir)
	if err != nil {
		fmt.Printf("load %s: %v\n", keyDir, err)
		return
	}
	for _, kf := range candidates {
		r := ntag424.DiagnoseAuthSlots(conn, kf.Key, []byte{0})[0]
		if r.Success {
			fmt.Printf("key %s opens slot 0\n", kf.Name)
			return
		}
	}
	fmt.Printf("none of %d keys in %s opens slot 0\n", len(candidates), keyDir)
}
