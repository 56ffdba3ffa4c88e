// substitute.go — the `[vars]` substitution helper: variables used to
// substitute $VAR/${VAR:default} in rule text pre-parse. The WFL loader
// calls this before handing rule source text to its compiler;
// RuntimeConfig only owns the variable table and the substitution rule,
// not rule parsing itself.
package config

import (
	"fmt"
	"strings"
)

// Substitute replaces every `$NAME` or `${NAME}` or `${NAME:default}`
// reference in text with vars[NAME], or the literal default when NAME is
// absent from vars and a default was given. An unresolved reference with
// no default is an error: configuration errors are fatal at startup, and
// an unresolved rule-text variable is exactly that class of error
// surfacing at compile time.
func (c RuntimeConfig) Substitute(text string) (string, error) {
	return substitute(text, c.Vars)
}

func substitute(text string, vars map[string]string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(text) {
		if text[i] != '$' {
			out.WriteByte(text[i])
			i++
			continue
		}
		if i+1 < len(text) && text[i+1] == '{' {
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("config: unterminated ${...} reference at byte %d", i)
			}
			body := text[i+2 : i+2+end]
			name, def, hasDefault := splitNameDefault(body)
			val, ok := vars[name]
			switch {
			case ok:
				out.WriteString(val)
			case hasDefault:
				out.WriteString(def)
			default:
				return "", fmt.Errorf("config: unresolved variable %q (no [vars] entry and no default)", name)
			}
			i = i + 2 + end + 1
			continue
		}

		if i+1 >= len(text) || !isVarNameStartByte(text[i+1]) {
			// lone '$' with no following identifier: pass through literally.
			out.WriteByte('$')
			i++
			continue
		}
		j := i + 1
		for j < len(text) && isVarNameByte(text[j]) {
			j++
		}
		name := text[i+1 : j]
		val, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("config: unresolved variable %q (no [vars] entry and no default)", name)
		}
		out.WriteString(val)
		i = j
	}
	return out.String(), nil
}

func splitNameDefault(body string) (name, def string, hasDefault bool) {
	if idx := strings.IndexByte(body, ':'); idx >= 0 {
		return body[:idx], body[idx+1:], true
	}
	return body, "", false
}

func isVarNameStartByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isVarNameByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
