package ntag424

// SelectNDEFApp selects the NFC Forum NDEF application (AID D2760000850101).
//
// CRITICAL: This INVALIDATES any active authentication session.
// Always select BEFORE authenticating, or re-authenticate after selecting.
func SelectNDEFApp(card Card) error {
	return expectOK(card, 0xA4, SelectAppCommand())
}

// SelectFile selects a file by its 16-bit ID using ISO 7816 SELECT FILE.
//
// Common file IDs:
//   - 0xE103: CC (Capability Container)
//   - 0xE104: NDEF file
//   - 0xE105: Proprietary data file
func SelectFile(card Card, fileID uint16) error {
	return expectOK(card, 0xA4, SelectFileCommand(fileID))
}

// WriteNDEFPlain writes NDEF data without authentication.
// Selects NDEF app and file, then writes data using ISO UPDATE BINARY.
func WriteNDEFPlain(card Card, data []byte) error {
	if err := SelectNDEFApp(card); err != nil {
		return err
	}
	if err := SelectFile(card, NDEFFileID); err != nil {
		return err
	}
	return WriteNDEFData(card, data)
}

// WriteNDEFData writes NDEF data without selecting app/file.
// Caller must ensure NDEF app and file are already selected.
// Writes data in chunks of up to 255 bytes using ISO UPDATE BINARY (INS 0xD6).
func WriteNDEFData(card Card, data []byte) error {
	for _, cmd := range UpdateBinaryCommands(0, data) {
		if err := expectOK(card, 0xD6, cmd); err != nil {
			return err
		}
	}
	return nil
}

// expectOK transmits an ISO command and fails unless the tag answers 9000.
func expectOK(card Card, ins byte, cmd []byte) error {
	r, err := Exchange(card, cmd)
	if err != nil {
		return err
	}
	if sw := SW(r); sw != SWSuccess {
		return &SWError{Cmd: ins, SW: sw}
	}
	return nil
}
