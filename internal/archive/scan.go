package archive

import (
	"strings"
)

// SupportedDeclaredProtocols lists the protocol versions a bot may declare
// statically. Bots that declare nothing run on the legacy flat protocol.
var SupportedDeclaredProtocols = []string{"2.0"}

// SourceScan is the result of a structural scan over bot.py. The scan is
// line-based: it recognises the top-level declarations the validator needs
// without a full language parse. Anything deeper (syntax errors, runtime
// failures) surfaces when the sandbox loads the module.
type SourceScan struct {
	HasPokerBotClass bool

	moduleProtocol string
	classProtocol  string
}

// ScanBotSource scans bot.py source text for the PokerBot class and any
// statically declared protocol version.
func ScanBotSource(source string) (*SourceScan, error) {
	scan := &SourceScan{}
	inBotClass := false

	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		indented := line[0] == ' ' || line[0] == '\t'

		if !indented {
			inBotClass = false
			trimmed := strings.TrimSpace(line)

			if name := strings.TrimPrefix(trimmed, "class "); name != trimmed {
				if isIdentHead(name, "PokerBot") {
					scan.HasPokerBotClass = true
					inBotClass = true
				}
				continue
			}

			if value, ok, err := scanAssignment(trimmed, "BOT_PROTOCOL_VERSION"); ok {
				if err != nil {
					return nil, err
				}
				scan.moduleProtocol = value
			}
			continue
		}

		if inBotClass {
			trimmed := strings.TrimSpace(line)
			if value, ok, err := scanAssignment(trimmed, "PokerBot.protocol_version"); ok {
				if err != nil {
					return nil, err
				}
				scan.classProtocol = value
			}
		}
	}

	return scan, nil
}

// DeclaredProtocol resolves the declared version: the module constant wins
// over the class attribute. Returns empty when nothing is declared, or a
// ValidationError when the declared version is unsupported.
func (s *SourceScan) DeclaredProtocol() (string, error) {
	declared := s.moduleProtocol
	if declared == "" {
		declared = s.classProtocol
	}
	if declared == "" {
		return "", nil
	}
	for _, v := range SupportedDeclaredProtocols {
		if declared == v {
			return declared, nil
		}
	}
	return "", validationErrorf(
		"Unsupported protocol version '%s'. Supported declared versions: %s",
		declared, strings.Join(SupportedDeclaredProtocols, ", "),
	)
}

// isIdentHead reports whether s starts with ident followed by a
// non-identifier character (or nothing).
func isIdentHead(s, ident string) bool {
	if !strings.HasPrefix(s, ident) {
		return false
	}
	rest := s[len(ident):]
	if rest == "" {
		return true
	}
	c := rest[0]
	return !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

// scanAssignment matches `name = <expr>` or `name: type = <expr>` and
// requires the value to be a non-empty string literal. The label names the
// declaration in error messages; the identifier is its last dotted part.
func scanAssignment(line, label string) (string, bool, error) {
	ident := label
	if i := strings.LastIndexByte(label, '.'); i >= 0 {
		ident = label[i+1:]
	}
	if !isIdentHead(line, ident) {
		return "", false, nil
	}

	rest := strings.TrimSpace(line[len(ident):])
	if strings.HasPrefix(rest, ":") {
		// Annotated assignment: skip the annotation up to '='.
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return "", false, nil
		}
		rest = rest[eq:]
	}
	if !strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, "==") {
		return "", false, nil
	}
	rest = strings.TrimSpace(rest[1:])

	value, ok := parseStringLiteral(rest)
	if !ok {
		return "", true, validationErrorf("%s must be a string literal", label)
	}
	if strings.TrimSpace(value) == "" {
		return "", true, validationErrorf("%s must be a non-empty string", label)
	}
	return strings.TrimSpace(value), true, nil
}

// parseStringLiteral extracts a leading quoted string, tolerating a
// trailing comment after the closing quote.
func parseStringLiteral(s string) (string, bool) {
	if len(s) < 2 || (s[0] != '"' && s[0] != '\'') {
		return "", false
	}
	quote := s[0]
	end := strings.IndexByte(s[1:], quote)
	if end < 0 {
		return "", false
	}
	value := s[1 : 1+end]

	rest := strings.TrimSpace(s[2+end:])
	if rest != "" && !strings.HasPrefix(rest, "#") {
		return "", false
	}
	return value, true
}
