// Bencode codec for the wire structures. Struct fields carry a `bencode` tag
// naming their dictionary key; nil pointer fields are omitted on encode and
// absent keys are left at their zero value on decode, which is how optional
// sub-messages are expressed.
package bencode

const (
	numberStart    = 0x69 // 'i'
	listStart      = 0x6c // 'l'
	dictStart      = 0x64 // 'd'
	bencodeEnd     = 0x65 // 'e'
	bytesLengthSep = 0x3a // ':'
)
