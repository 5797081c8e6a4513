package descriptor

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// String descriptor indices.
const (
	StringLanguage     = 0
	StringManufacturer = 1
	StringProduct      = 2
	StringSerial       = 3
	StringCDC          = 4
	StringMSC          = 5
	StringAudio        = 6
)

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// MaxStringChars is the longest string a descriptor carries; longer strings
// are truncated.
const MaxStringChars = 31

// StringDescriptorTo writes s as a UTF-16LE string descriptor to buf.
// Returns the number of bytes written. Strings longer than [MaxStringChars]
// characters are truncated. If buf is too small, returns 0.
func StringDescriptorTo(buf []byte, s string) int {
	n := min(utf8.RuneCountInString(s), MaxStringChars)
	length := 2 + 2*n
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = TypeString
	i := 0
	for _, r := range s {
		if i == n {
			break
		}
		if r > 0xFFFF {
			r = utf8.RuneError
		}
		binary.LittleEndian.PutUint16(buf[2+2*i:], uint16(r))
		i++
	}
	return length
}

// LanguageDescriptorTo writes the supported language ID list (string index 0)
// to buf. Returns the number of bytes written. If buf is too small, returns 0.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	length := 2 + len(langIDs)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = TypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+i*2:], id)
	}
	return length
}

// StringTable holds the device strings. Entry i is string index i+1; index 0
// is the language list.
type StringTable struct {
	LangID  uint16
	Strings []string
}

// Descriptor returns the encoded string descriptor at index, or false if the
// table has no such string.
func (t StringTable) Descriptor(index uint8) ([]byte, bool) {
	buf := make([]byte, 2+2*MaxStringChars)
	if index == StringLanguage {
		return buf[:LanguageDescriptorTo(buf, t.LangID)], true
	}
	if int(index) > len(t.Strings) {
		return nil, false
	}
	return buf[:StringDescriptorTo(buf, t.Strings[index-1])], true
}

// Lookup returns the plain string at index.
func (t StringTable) Lookup(index uint8) (string, bool) {
	if index == StringLanguage || int(index) > len(t.Strings) {
		return "", false
	}
	return t.Strings[index-1], true
}

// SerialFromUID renders a hardware unique id as an upper-case hex serial
// number.
func SerialFromUID(uid []byte) string {
	return fmt.Sprintf("%X", uid)
}
