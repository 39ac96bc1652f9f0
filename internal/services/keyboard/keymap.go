package keyboard

import "github.com/fgeck/tapwake/internal/models"

// usLayout maps 7-bit ASCII to boot keyboard usage IDs for a US layout.
// Entries left zero are unsupported.
var usLayout = buildUSLayout()

func buildUSLayout() [128]models.KeyMapEntry {
	var m [128]models.KeyMapEntry
	plain := func(c byte, code byte) { m[c] = models.KeyMapEntry{Code: code} }
	shifted := func(c byte, code byte) { m[c] = models.KeyMapEntry{Modifier: models.ModLeftShift, Code: code} }

	for i := byte(0); i < 26; i++ {
		plain('a'+i, 0x04+i)
		shifted('A'+i, 0x04+i)
	}
	for i := byte(0); i < 9; i++ {
		plain('1'+i, 0x1E+i)
	}
	plain('0', 0x27)

	plain('\b', 0x2A)
	plain('\t', models.KeyTab)
	plain('\n', models.KeyEnter)
	plain('\r', models.KeyEnter)
	plain(0x1B, models.KeyEscape)
	plain(0x7F, 0x4C)

	plain(' ', 0x2C)
	plain('-', 0x2D)
	plain('=', 0x2E)
	plain('[', 0x2F)
	plain(']', 0x30)
	plain('\\', 0x31)
	plain(';', 0x33)
	plain('\'', 0x34)
	plain('`', 0x35)
	plain(',', 0x36)
	plain('.', 0x37)
	plain('/', 0x38)

	shifted('!', 0x1E)
	shifted('@', 0x1F)
	shifted('#', 0x20)
	shifted('$', 0x21)
	shifted('%', 0x22)
	shifted('^', 0x23)
	shifted('&', 0x24)
	shifted('*', 0x25)
	shifted('(', 0x26)
	shifted(')', 0x27)
	shifted('_', 0x2D)
	shifted('+', 0x2E)
	shifted('{', 0x2F)
	shifted('}', 0x30)
	shifted('|', 0x31)
	shifted(':', 0x33)
	shifted('"', 0x34)
	shifted('~', 0x35)
	shifted('<', 0x36)
	shifted('>', 0x37)
	shifted('?', 0x38)

	return m
}

// Lookup returns the key producing r. ok is false for characters outside the
// table, including every non-ASCII rune.
func Lookup(r rune) (entry models.KeyMapEntry, ok bool) {
	if r < 0 || r >= rune(len(usLayout)) {
		return models.KeyMapEntry{}, false
	}
	entry = usLayout[r]
	return entry, entry.Code != 0
}
