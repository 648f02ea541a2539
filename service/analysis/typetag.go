package analysis

import "strings"

// TypeTag is a parsed Move type such as 0x2::coin::Coin<0x2::sui::SUI>.
// Package and Module are nil for unqualified names.
type TypeTag struct {
	Package  *string `json:"package"`
	Module   *string `json:"module"`
	Struct   string  `json:"struct"`
	TypeArgs *string `json:"type_args"`
}

// ParseTypeTag splits a type tag into its package, module, struct and
// generic arguments. Unparseable input yields a TypeTag whose Struct is the
// input itself.
func ParseTypeTag(s string) TypeTag {
	fallback := TypeTag{Struct: s}

	base := s
	var args *string
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if !strings.HasSuffix(s, ">") {
			return fallback
		}
		a := s[i+1 : len(s)-1]
		if a == "" {
			return fallback
		}
		base = s[:i]
		args = &a
	}
	if base == "" {
		return fallback
	}

	parts := strings.Split(base, "::")
	for _, p := range parts {
		if p == "" {
			return fallback
		}
	}

	tag := TypeTag{TypeArgs: args}
	switch len(parts) {
	case 1:
		tag.Struct = parts[0]
	case 2:
		tag.Module = &parts[0]
		tag.Struct = parts[1]
	default:
		tag.Package = &parts[0]
		tag.Module = &parts[1]
		tag.Struct = strings.Join(parts[2:], "::")
	}
	return tag
}

// Symbol is the short display name of a coin type: the struct name without
// generic arguments, e.g. "SUI" for 0x2::sui::SUI.
func Symbol(coinType string) string {
	return ParseTypeTag(coinType).Struct
}
