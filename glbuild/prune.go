package glbuild

// identifiers returns the set of identifier tokens in code. Comments are
// scanned too, which at worst keeps an unused uniform declared.
func identifiers(code []byte) map[string]struct{} {
	ids := make(map[string]struct{})
	for i := 0; i < len(code); {
		c := code[i]
		if !isAlnum(c) && c != '_' {
			i++
			continue
		}
		start := i
		for i < len(code) && (isAlnum(code[i]) || code[i] == '_') {
			i++
		}
		if !isDigit(code[start]) {
			ids[string(code[start:i])] = struct{}{}
		}
	}
	return ids
}
