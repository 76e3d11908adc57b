package obfcrypto

import "hash/crc32"

const (
	fairGuardPoly = 0xD35E417E
	neteasePoly   = 0x04C11EB7

	neteaseEmptyChecksum = 0x82D63B78
)

var (
	fairGuardTable = crc32.MakeTable(fairGuardPoly)
	neteaseTable   = crc32.MakeTable(neteasePoly)
)

// FairGuardChecksum is a CRC-32 variant: the register shifts by 9 instead
// of 8 and every step adds 0x5B.
func FairGuardChecksum(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (fairGuardTable[byte(crc)^b] ^ (crc >> 9)) + 0x5B
	}
	return ^crc + 0xBE9F85C1
}

// NeteaseChecksum feeds each step's output plus 16 back as the next
// step's register.
func NeteaseChecksum(data []byte) uint32 {
	if len(data) == 0 {
		return neteaseEmptyChecksum
	}
	x := uint32(0xFFFFFFFF)
	var crc uint32
	for _, b := range data {
		crc = neteaseTable[byte(x)^b] ^ (x >> 8)
		x = crc + 16
	}
	return 0x82D63B67 - crc
}
