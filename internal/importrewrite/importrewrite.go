// Package importrewrite textually rewrites ES-module import statements for a
// fixed allow-list of host-bundled modules into destructuring reads from
// global objects the host injects into the evaluation realm.
package importrewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// hostGlobal maps an allow-listed module specifier to the name of the global
// object the host installs into the JS evaluation realm before activation.
var hostGlobal = map[string]string{
	"react":               "__PYXIS_REACT__",
	"react-dom":           "__PYXIS_REACT_DOM__",
	"react/jsx-runtime":   "__PYXIS_REACT__",
	"react-markdown":      "__PYXIS_MARKDOWN__",
	"remark-gfm":          "__PYXIS_MARKDOWN__",
	"remark-math":         "__PYXIS_MARKDOWN__",
	"rehype-katex":        "__PYXIS_MARKDOWN__",
	"katex":               "__PYXIS_MARKDOWN__",
}

// importLine matches one of the four supported import shapes for a single
// quoted module specifier. Named groups:
//   default   - the default binding, if any
//   named     - the `{ a, b as c }` clause body, if any
//   namespace - the `* as NS` binding, if any
//   module    - the specifier
var importLine = regexp.MustCompile(
	`(?m)^[ \t]*import\s+(?:` +
		`(?P<namespace>\*\s+as\s+\w+)` +
		`|(?:(?P<default>\w+)\s*,\s*)?\{(?P<named>[^}]*)\}` +
		`|(?P<defaultonly>\w+)` +
		`)\s+from\s+['"](?P<module>[^'"]+)['"]\s*;?\s*$`,
)

// Rewrite performs one linear pass over src, replacing every recognized
// import of an allow-listed module with equivalent `const` destructuring from
// the corresponding host global. Imports of modules outside the allow-list
// are left untouched. The transform is idempotent: rewritten declarations no
// longer match importLine, so a second pass is a no-op.
func Rewrite(src string) string {
	return importLine.ReplaceAllStringFunc(src, func(match string) string {
		groups := namedGroups(importLine, match)
		module := groups["module"]

		global, ok := hostGlobal[module]
		if !ok {
			return match
		}

		switch {
		case groups["namespace"] != "":
			// `* as NS` -> `const NS = __GLOBAL__;`
			ns := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(groups["namespace"]), "*"))
			ns = strings.TrimSpace(strings.TrimPrefix(ns, "as"))
			return fmt.Sprintf("const %s = %s;", ns, global)

		case groups["defaultonly"] != "":
			// `import Default from 'M'` -> `const Default = __GLOBAL__;`
			return fmt.Sprintf("const %s = %s;", groups["defaultonly"], global)

		default:
			// Named-only or default+named form.
			var decls []string
			if groups["default"] != "" {
				decls = append(decls, fmt.Sprintf("const %s = %s;", groups["default"], global))
			}
			named := rewriteNamedBindings(groups["named"])
			if named != "" {
				decls = append(decls, fmt.Sprintf("const { %s } = %s;", named, global))
			}
			return strings.Join(decls, " ")
		}
	})
}

// rewriteNamedBindings turns `a, b as c` into the destructuring-compatible
// `a, b: c` form (alias target becomes the property-renaming shorthand).
func rewriteNamedBindings(body string) string {
	parts := strings.Split(body, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if idx := strings.Index(p, " as "); idx >= 0 {
			orig := strings.TrimSpace(p[:idx])
			alias := strings.TrimSpace(p[idx+len(" as "):])
			out = append(out, fmt.Sprintf("%s: %s", orig, alias))
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// namedGroups maps a regexp's named capture groups to their matched text for
// a single match string, treating an unmatched group as "".
func namedGroups(re *regexp.Regexp, match string) map[string]string {
	sub := re.FindStringSubmatch(match)
	names := re.SubexpNames()
	out := make(map[string]string, len(names))
	for i, name := range names {
		if name == "" || i >= len(sub) {
			continue
		}
		out[name] = sub[i]
	}
	return out
}
