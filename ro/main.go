// Command ro prints what a tapped card holds without changing it: UID,
// version, NDEF file settings and the URI. Given k1 and k2 it also checks
// the SUN mirrors of each tap.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/barnettlynn/boltcard/internal/cli"
	"github.com/barnettlynn/boltcard/pkg/boltcard"
	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

type tapKeys struct {
	k1, k2 []byte
}

func main() {
	logFlags := cli.RegisterLogFlags(flag.CommandLine)
	k1File := flag.String("k1", "", "k1 hex file (PICC data decryption)")
	k2File := flag.String("k2", "", "k2 hex file (SUN MAC)")
	once := flag.Bool("once", false, "read one card and exit")
	flag.Parse()

	if err := logFlags.SetupLogging(os.Stderr); err != nil {
		log.Fatal(err)
	}

	var keys *tapKeys
	if *k1File != "" || *k2File != "" {
		k1, err := ntag424.LoadKeyHexFile(*k1File)
		if err != nil {
			log.Fatalf("-k1 error: %v", err)
		}
		k2, err := ntag424.LoadKeyHexFile(*k2File)
		if err != nil {
			log.Fatalf("-k2 error: %v", err)
		}
		keys = &tapKeys{k1: k1, k2: k2}
	}

	readerIndex := 0
	if args := flag.Args(); len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("reader index %q: %v", args[0], err)
		}
		readerIndex = v
	}

	reader, err := ntag424.OpenReader(readerIndex)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()
	fmt.Printf("Using reader [%d]: %s\n", reader.Index, reader.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %v, shutting down...\n", sig)
		reader.Close()
		os.Exit(0)
	}()

	fmt.Println("Waiting for card scans...")
	for {
		if err := reader.WaitForCard(0); err != nil {
			log.Fatalf("wait for card failed: %v", err)
		}
		readAndPrint(reader, keys)
		if *once {
			return
		}
		if err := reader.WaitForRemoval(0); err != nil {
			log.Fatalf("wait for removal failed: %v", err)
		}
		fmt.Println("Waiting for next scan...")
	}
}

func readAndPrint(reader *ntag424.Reader, keys *tapKeys) {
	conn, err := reader.Connect()
	if err != nil {
		log.Printf("Connect failed: %v", err)
		return
	}
	defer conn.Close()

	uid, err := ntag424.GetUID(conn)
	if err != nil {
		log.Printf("UID error: %v", err)
	} else {
		fmt.Printf("UID: %X\n", uid)
	}

	if v, err := boltcard.CheckCard(conn); err != nil {
		log.Printf("Version: %v", err)
	} else {
		ntag424.PrintVersion(os.Stdout, v)
	}

	if fs, err := ntag424.GetFileSettings(conn, ntag424.FileNDEF); err != nil {
		log.Printf("File settings error: %v", err)
	} else {
		ntag424.PrintFileSettings(os.Stdout, "NDEF", ntag424.FileNDEF, fs)
	}

	if cc, err := ntag424.ReadCCFile(conn); err != nil {
		log.Printf("CC file error: %v", err)
	} else {
		fmt.Printf("CC: %X\n", cc)
	}

	msg, err := ntag424.ReadNDEF(conn)
	if err != nil {
		log.Printf("NDEF error: %v", err)
		return
	}
	if len(msg) == 0 {
		fmt.Println("NDEF: (empty)")
		return
	}
	fmt.Printf("NDEF: %X\n", msg)
	raw, err := ntag424.ParseURIMessage(msg)
	if err != nil {
		log.Printf("NDEF error: %v", err)
		return
	}
	uri, err := url.PathUnescape(raw)
	if err != nil {
		uri = raw
	}
	fmt.Printf("URL: %s\n", uri)
	if keys == nil {
		return
	}

	picc, ok, err := ntag424.VerifySUN(uri, keys.k1, keys.k2)
	if err != nil {
		fmt.Printf("SUN: %v\n", err)
		return
	}
	if !ok {
		fmt.Printf("SUN: MAC mismatch uid=%X counter=%d\n", picc.UID, picc.Counter)
		return
	}
	fmt.Printf("SUN: ok uid=%X counter=%d\n", picc.UID, picc.Counter)
}
