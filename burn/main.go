// Command burn provisions NTAG 424 DNA tags as bolt cards.
//
// It writes the configured lnurlw:// URL template, enables SUN mirroring and
// installs the five application keys, then prints the wipe code for the card.
// With -batch it keeps burning one card after another.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/barnettlynn/boltcard/burn/internal/config"
	"github.com/barnettlynn/boltcard/internal/cli"
	"github.com/barnettlynn/boltcard/pkg/boltcard"
	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

const configFileName = "config.yaml"

func main() {
	logFlags := cli.RegisterLogFlags(flag.CommandLine)
	configFlag := flag.String("config", "", "config file (default: config.yaml next to the executable or in the working directory)")
	batch := flag.Bool("batch", false, "burn cards until interrupted")
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
	keys, err := cfg.LoadKeys()
	if err != nil {
		log.Fatalf("key file invalid: %v", err)
	}
	tmpl, err := boltcard.BuildURLTemplate(cfg.URL)
	if err != nil {
		log.Fatalf("url invalid: %v", err)
	}
	fmt.Printf("URL template: %s\n", tmpl.URL)
	fmt.Printf("PICC offset: %d  CMAC offset: %d\n", tmpl.PICCOffset, tmpl.CMACOffset)

	reader, err := ntag424.OpenReader(*cfg.Runtime.ReaderIndex)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()
	fmt.Printf("Using reader [%d]: %s\n", reader.Index, reader.Name)

	for n := 1; ; n++ {
		fmt.Println("\nPlace a factory-fresh card on the reader...")
		if err := reader.WaitForCard(cfg.Runtime.WaitTimeout); err != nil {
			log.Fatalf("wait for card failed: %v", err)
		}

		if err := burnOne(reader, cfg, keys); err != nil {
			if !*batch {
				log.Fatalf("burn failed: %v", err)
			}
			fmt.Printf("Card %d FAILED: %v\n", n, err)
		} else {
			fmt.Printf("Card %d burned.\n", n)
		}

		if !*batch {
			return
		}
		fmt.Println("Remove the card.")
		if err := reader.WaitForRemoval(0); err != nil {
			log.Fatalf("wait for removal failed: %v", err)
		}
	}
}

func burnOne(reader *ntag424.Reader, cfg *config.Config, keys [][]byte) error {
	conn, err := reader.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	uid, err := ntag424.GetUID(conn)
	if err != nil {
		return fmt.Errorf("get UID: %w", err)
	}
	fmt.Printf("Tag UID: %X\n", uid)

	tmpl, err := boltcard.Burn(conn, cfg.URL, keys, boltcard.Options{KeyVersion: cfg.KeyVersion()})
	if err != nil {
		var stepErr *boltcard.StepError
		if errors.As(err, &stepErr) && strings.HasPrefix(stepErr.Step, "auth") {
			fmt.Println("Authentication with the factory key failed; the card is probably provisioned already.")
		}
		return err
	}

	// The keys are on the card now; the wipe code goes out before anything
	// else can fail.
	wc, err := boltcard.NewWipeCode(uid, keys, cfg.KeyVersion())
	if err != nil {
		return err
	}
	doc, err := json.MarshalIndent(wc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Wipe code:\n%s\n", doc)
	if dir := cfg.Runtime.WipeCodeDir; dir != "" {
		path := filepath.Join(dir, fmt.Sprintf("%X.json", uid))
		if err := os.WriteFile(path, append(doc, '\n'), 0o600); err != nil {
			return fmt.Errorf("save wipe code: %w", err)
		}
		fmt.Printf("Wipe code saved to %s\n", path)
	}

	uri, err := ntag424.ReadURI(conn)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	picc, err := boltcard.VerifyTap(uri, tmpl, keys[1], keys[2])
	if err != nil {
		return fmt.Errorf("verify tap: %w", err)
	}
	fmt.Printf("Tap verified: counter %d\n", picc.Counter)
	return nil
}
