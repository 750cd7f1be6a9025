package ntag424

import (
	"fmt"
	"io"
)

// accessLabel returns a human-readable label for an access rights nibble.
func accessLabel(keyNo byte) string {
	switch keyNo {
	case AccessFree:
		return "free            (no key needed)"
	case AccessNone:
		return "denied          (never)"
	default:
		return fmt.Sprintf("Key slot %d", keyNo)
	}
}

// PrintFileSettings writes file settings in a human-readable format.
//
// Parameters:
//   - w: destination, usually os.Stdout
//   - label: Descriptive label (e.g., "BEFORE", "AFTER")
//   - fileNo: File number (0x01, 0x02, 0x03)
//   - fs: FileSettings structure
func PrintFileSettings(w io.Writer, label string, fileNo byte, fs *FileSettings) {
	readKey := (fs.AR2 >> 4) & 0x0F // AR2 upper = Read
	writeKey := fs.AR2 & 0x0F       // AR2 lower = Write
	rwKey := (fs.AR1 >> 4) & 0x0F   // AR1 upper = ReadWrite
	changeKey := fs.AR1 & 0x0F      // AR1 lower = ChangeAccessRights

	fmt.Fprintf(w, "  %s - File %d access rights:    [raw: %02X %02X]\n", label, fileNo, fs.AR1, fs.AR2)
	fmt.Fprintf(w, "    Read data:        %s\n", accessLabel(readKey))
	fmt.Fprintf(w, "    Write data:       %s\n", accessLabel(writeKey))
	fmt.Fprintf(w, "    Read+Write:       %s\n", accessLabel(rwKey))
	fmt.Fprintf(w, "    Change settings:  %s\n", accessLabel(changeKey))

	if !fs.SDMEnabled() {
		fmt.Fprintln(w, "  SDM config:                         [disabled]")
		return
	}
	fmt.Fprintf(w, "  SDM config:                         [enabled, opts 0x%02X]\n", fs.SDMOptions)
	fmt.Fprintf(w, "    MAC generation:   %s\n", accessLabel(fs.SDMFile))
	fmt.Fprintf(w, "    Counter read:     %s\n", accessLabel(fs.SDMCtr))
	fmt.Fprintf(w, "    Meta read:        %s\n", accessLabel(fs.SDMMeta))
	if fs.SDMMeta != AccessFree && fs.SDMMeta != AccessNone {
		fmt.Fprintf(w, "    PICC data at:     %d\n", fs.PICCDataOffset)
	}
	if fs.SDMFile != AccessNone {
		fmt.Fprintf(w, "    MAC at:           %d (input from %d)\n", fs.MACOffset, fs.MACInputOffset)
	}
}

// PrintVersion writes the decoded GetVersion record.
func PrintVersion(w io.Writer, v *TagVersion) {
	fmt.Fprintf(w, "  Hardware:  vendor %02X type %02X.%02X v%d.%d storage %02X proto %02X\n",
		v.HWVendorID, v.HWType, v.HWSubType, v.HWMajorVer, v.HWMinorVer, v.HWStorageSize, v.HWProtocol)
	fmt.Fprintf(w, "  Software:  vendor %02X type %02X.%02X v%d.%d storage %02X proto %02X\n",
		v.SWVendorID, v.SWType, v.SWSubType, v.SWMajorVer, v.SWMinorVer, v.SWStorageSize, v.SWProtocol)
	fmt.Fprintf(w, "  UID:       %s\n", upperHex(v.UID))
	fmt.Fprintf(w, "  Batch:     %d  produced week %02X of 20%02X\n", v.BatchNo, v.ProdWeek, v.ProdYear)
}
