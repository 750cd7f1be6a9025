/*
Package ntag424 speaks the NTAG 424 DNA secure command protocol used to
provision bolt cards.

It provides:
  - Byte codec helpers (RotateLeft, Xor, Pad, JamCRC32, CMACShort)
  - AES-128 CBC and CMAC wrappers
  - Session, a value threaded through every protocol step
  - EV2First authentication as pure steps (AuthAnswer, AuthFinalize) and as
    a driver over a Card (AuthenticateEV2First)
  - Secure messaging (BuildSecureCommand, VerifyResponse, SsmCmdFull)
  - ChangeKey and ChangeFileSettings payloads
  - GetVersion, GetFileSettings, ISO READ/UPDATE BINARY, NDEF URI records
  - SUN verification of tapped URLs (DecryptPICCData, SUNMAC)
  - A PC/SC reader adapter

# Access Rights Encoding

The 16-bit access rights value is organized (MSB→LSB) as:

	[Read | Write | ReadWrite | ChangeAccessRights]

It is stored little-endian in file settings:

	AR1 = [ReadWrite nibble | ChangeAccessRights nibble]
	AR2 = [Read nibble      | Write nibble]

Nibble values:

	0x0-0x4 = key slot number
	0xE     = free (no authentication needed)
	0xF     = denied

# File Map

After SelectNDEFApp (AID D2760000850101):

	File 1 (0xE103) CC, 32 bytes
	File 2 (0xE104) NDEF, 256 bytes, where the URL template lives
	File 3 (0xE105) Proprietary, 128 bytes

# Operation: AuthenticateEV2First (INS 0x71 + 0xAF)

Phase 1:

	Command:  90 71 00 00 05 <keyNo> 03 00 00 00 00
	Response: <Enc(RndB)(16)> | SW=91AF

Phase 2:

	Command:  90 AF 00 00 20 <Enc(RndA||RotateLeft(RndB,1))(32)> 00
	Response: <Enc(TI||RotateLeft(RndA,1)||PDcap2||PCDcap2)(32)> | SW=9100

Both encryptions are AES-CBC with a zero IV under the slot key.

Session derivation:

	SV1 = A5 5A 00 01 00 80 || rndA[0:2] || (rndA[2:8] XOR rndB[0:6]) || rndB[6:16] || rndA[8:16]
	SV2 = 5A A5 00 01 00 80 || (same fill)
	KeyEnc = AES-CMAC(key, SV1)
	KeyMAC = AES-CMAC(key, SV2)

CRITICAL: SelectNDEFApp or SelectFile INVALIDATES the session.

# Secure Messaging

	IV  = E(KeyEnc, A5 5A || TI || CmdCounter(LE) || 00*8)
	Enc = AES-CBC(KeyEnc, IV, Pad(data))
	MAC = CMACShort(KeyMAC, INS || CmdCounter(LE) || TI || header || Enc)
	APDU: 90 INS 00 00 Lc header Enc MAC 00

CmdCounter is incremented once after each command is built. Responses carry
CMACShort(KeyMAC, SW2 || CmdCounter+1 || TI || RespEnc) and use the 5A A5
label for their IV.

# Operation: ChangeFileSettings (INS 0x5F)

	Basic: <FileOption> <AR1> <AR2>
	SDM:   <FileOption> <AR1> <AR2> <SDMOptions> <SDMAR(2)> [offsets...]

Offsets are conditional 3-byte little-endian values:

	UIDOffset       if SDMOptions.bit7 AND Meta=0xE
	CtrOffset       if SDMOptions.bit6 AND Meta=0xE
	PICCDataOffset  if Meta is a key slot
	MACInputOffset  if File != 0xF
	MACOffset       if File != 0xF

A bolt card uses 40 00 E0 C1 FF 12 <picc> <cmac> <cmac>: SDM on, Read free,
Write key 0, UID and counter mirrored in encrypted PICC data under key 1,
MAC under key 2 over an empty input.

# Operation: ChangeKey (INS 0xC4)

	Same slot as authentication: NewKey(16) || Version
	Other slot:                  (NewKey XOR OldKey)(16) || Version || JamCRC32(NewKey)

Changing the authentication key ends the session; that response has no MAC.

# SUN Mirror

On each read the tag replaces the p= and c= placeholders:

	p = E(K1, C7 || UID(7) || Counter(LE 3) || filler(5))
	c = CMACShort(CMAC(K2, 3C C3 00 01 00 80 || UID || Counter(LE)), "")

# Status Words

	SW=9000  ISO success
	SW=9100  DESFire success
	SW=91AF  Additional frame expected
	SW=917E  Length error
	SW=91AE  Authentication error (wrong key for slot)
	SW=919D  Permission denied
	SW=919E  Parameter error
	SW=911C  Boundary error
	SW=911E  Integrity error (bad CMAC or CRC)
	SW=6982  Security status not satisfied
	SW=6C00  Wrong Le (correct Le in SW2 low byte)
*/
package ntag424
