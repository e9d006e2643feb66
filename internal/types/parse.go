package types

import "strings"

// Parse resolves a written Go type against reg. reg may be nil, in which case declared names
// stay unresolved. An empty text yields nil.
func Parse(text string, reg *Registry) Type {
	s := strings.TrimSpace(text)
	switch {
	case s == "":
		return nil
	case strings.HasPrefix(s, "*"):
		return &Pointer{Elem: Parse(s[1:], reg)}
	case strings.HasPrefix(s, "[]"):
		return &Slice{Elem: Parse(s[2:], reg)}
	case strings.HasPrefix(s, "["):
		// Arrays are values; keep them opaque.
		return &Basic{Name: s}
	case strings.HasPrefix(s, "map["):
		end := matchingBracket(s, len("map"))
		if end < 0 {
			return &Basic{Name: s}
		}
		return &Map{Key: Parse(s[len("map["):end], reg), Value: Parse(s[end+1:], reg)}
	case strings.HasPrefix(s, "<-chan"):
		return &Chan{Dir: "<-chan", Elem: Parse(s[len("<-chan"):], reg)}
	case strings.HasPrefix(s, "chan<-"):
		return &Chan{Dir: "chan<-", Elem: Parse(s[len("chan<-"):], reg)}
	case strings.HasPrefix(s, "chan "):
		return &Chan{Dir: "chan", Elem: Parse(s[len("chan"):], reg)}
	case strings.HasPrefix(s, "func"):
		return &Func{Signature: s, Result: funcResult(s, reg)}
	case s == "any" || strings.HasPrefix(s, "interface"):
		return &Interface{Name: s}
	case s == "error":
		return &Interface{Name: s}
	case basicNames[s]:
		return &Basic{Name: s}
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		return Parse(s[1:len(s)-1], reg)
	}

	name := s
	if i := strings.IndexByte(name, '['); i > 0 {
		// Generic instantiation: the declaration is keyed by its bare name.
		name = name[:i]
	}
	var decl *Decl
	if reg != nil {
		decl = reg.Decl(name)
	}
	return &Named{Name: s, Decl: decl}
}

// matchingBracket returns the index of the ']' closing the '[' at open.
func matchingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// funcResult extracts a single unnamed result from a written func type, e.g. "func(int) string".
func funcResult(sig string, reg *Registry) Type {
	rest := strings.TrimPrefix(sig, "func")
	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				result := strings.TrimSpace(rest[i+1:])
				if result == "" || strings.HasPrefix(result, "(") {
					return nil
				}
				return Parse(result, reg)
			}
		}
	}
	return nil
}
