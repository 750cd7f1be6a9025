// Command tap prints the URL a burned bolt card emits for a given UID and
// read counter, without a card or reader.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/barnettlynn/boltcard/internal/cli"
	"github.com/barnettlynn/boltcard/pkg/boltcard"
	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

func main() {
	logFlags := cli.RegisterLogFlags(flag.CommandLine)
	var (
		uidHex  = flag.String("uid", "", "14-char hex string (7-byte tag UID, required)")
		counter = flag.Uint("ctr", 1, "SDM read counter value")
		k1File  = flag.String("k1", "k1.hex", "k1 hex file (PICC data encryption)")
		k2File  = flag.String("k2", "k2.hex", "k2 hex file (SUN MAC)")
		baseURL = flag.String("url", "", "lnurlw:// URL the card was burned with (required)")
		verify  = flag.Bool("verify", false, "self-verify the generated URL")
	)
	flag.Parse()

	if err := logFlags.SetupLogging(os.Stderr); err != nil {
		fail("%v", err)
	}
	if *uidHex == "" || *baseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -uid and -url are required")
		flag.Usage()
		os.Exit(1)
	}

	uid, err := hex.DecodeString(*uidHex)
	if err != nil {
		fail("decoding UID: %v", err)
	}
	if len(uid) != 7 {
		fail("UID must be 7 bytes, got %d", len(uid))
	}

	if *counter > 0xFFFFFF {
		fail("counter must be <= 0xFFFFFF, got %d", *counter)
	}

	slog.Debug("loading keys", "k1", *k1File, "k2", *k2File)
	k1, err := ntag424.LoadKeyHexFile(*k1File)
	if err != nil {
		fail("loading k1: %v", err)
	}
	k2, err := ntag424.LoadKeyHexFile(*k2File)
	if err != nil {
		fail("loading k2: %v", err)
	}

	tapped, err := boltcard.TapURL(*baseURL, uid, uint32(*counter), k1, k2)
	if err != nil {
		fail("generating tap URL: %v", err)
	}

	fmt.Printf("UID:     %X\n", uid)
	fmt.Printf("Counter: %d\n", *counter)
	fmt.Printf("URL:     %s\n", tapped)

	if *verify {
		tmpl, err := boltcard.BuildURLTemplate(*baseURL)
		if err != nil {
			fail("url: %v", err)
		}
		if _, err := boltcard.VerifyTap(tapped, tmpl, k1, k2); err != nil {
			fmt.Printf("Verify:  FAILED (%v)\n", err)
			os.Exit(1)
		}
		fmt.Println("Verify:  OK")
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
