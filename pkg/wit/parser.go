package wit

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

var (
	packageRe   = regexp.MustCompile(`^package\s+([A-Za-z0-9:_.@-]+)\s*;?$`)
	interfaceRe = regexp.MustCompile(`^interface\s+([A-Za-z0-9_-]+)\s*\{$`)
	recordRe    = regexp.MustCompile(`^record\s+([A-Za-z0-9_-]+)\s*\{$`)
	funcRe      = regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*:\s*func\s*\((.*?)\)\s*(?:->\s*(.+?))?\s*;?$`)
	fieldRe     = regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*:\s*(.+?)\s*,?$`)
)

// Load parses the interface description at the given path. A missing file
// reports InterfaceDescriptorMissing so callers can fall back to
// root-export wiring.
func Load(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeDescriptorMissing,
				fmt.Sprintf("no interface descriptor at %s", path), err)
		}
		return nil, errors.Wrap(errors.ErrCodeConfigIO,
			fmt.Sprintf("failed to read %s", path), err)
	}
	return Parse(data)
}

// Parse parses an interface description from raw bytes. The grammar is the
// WIT subset the registry ships: a package line, interface blocks of
// `name: func(params) -> results` declarations, and record blocks.
func Parse(data []byte) (*Package, error) {
	p := &parser{
		pkg:     &Package{},
		records: map[string]cty.Type{},
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := p.line(line, lineNo); err != nil {
			return nil, err
		}
	}

	return p.pkg, nil
}

type parser struct {
	pkg     *Package
	records map[string]cty.Type

	iface  *Interface
	record string
	fields []Param

	// world blocks are skipped; depth tracks nesting until the close brace
	skipDepth int
}

func (p *parser) line(line string, lineNo int) error {
	if p.skipDepth > 0 {
		p.skipDepth += strings.Count(line, "{") - strings.Count(line, "}")
		return nil
	}

	switch {
	case p.record != "":
		if line == "}" {
			fields := make(map[string]cty.Type, len(p.fields))
			for _, f := range p.fields {
				fields[f.Name] = f.Type
			}
			p.records[p.record] = cty.Object(fields)
			p.record = ""
			p.fields = nil
			return nil
		}
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return syntaxErr(lineNo, line)
		}
		p.fields = append(p.fields, Param{Name: m[1], Type: p.resolveType(strings.TrimSuffix(m[2], ","))})
		return nil

	case p.iface != nil:
		if line == "}" {
			p.pkg.Interfaces = append(p.pkg.Interfaces, p.iface)
			p.iface = nil
			return nil
		}
		if m := recordRe.FindStringSubmatch(line); m != nil {
			p.record = m[1]
			return nil
		}
		m := funcRe.FindStringSubmatch(line)
		if m == nil {
			return syntaxErr(lineNo, line)
		}
		fn := Function{Name: m[1]}
		for _, raw := range splitTop(m[2]) {
			parts := strings.SplitN(raw, ":", 2)
			if len(parts) != 2 {
				return syntaxErr(lineNo, line)
			}
			fn.Params = append(fn.Params, Param{
				Name: strings.TrimSpace(parts[0]),
				Type: p.resolveType(strings.TrimSpace(parts[1])),
			})
		}
		if m[3] != "" {
			result := strings.TrimSpace(m[3])
			if strings.HasPrefix(result, "(") && strings.HasSuffix(result, ")") {
				for _, raw := range splitTop(result[1 : len(result)-1]) {
					fn.Results = append(fn.Results, p.resolveType(strings.TrimSpace(raw)))
				}
			} else {
				fn.Results = []cty.Type{p.resolveType(result)}
			}
		}
		p.iface.Functions = append(p.iface.Functions, fn)
		return nil

	default:
		if m := packageRe.FindStringSubmatch(line); m != nil {
			p.pkg.Name = m[1]
			return nil
		}
		if m := interfaceRe.FindStringSubmatch(line); m != nil {
			p.iface = &Interface{Name: m[1]}
			return nil
		}
		if strings.HasPrefix(line, "world ") {
			p.skipDepth = strings.Count(line, "{") - strings.Count(line, "}")
			return nil
		}
		if strings.HasPrefix(line, "use ") {
			return nil
		}
		return syntaxErr(lineNo, line)
	}
}

func syntaxErr(lineNo int, line string) error {
	return errors.New(errors.ErrCodeConfigSyntax,
		fmt.Sprintf("interface descriptor line %d: cannot parse %q", lineNo, line))
}

// resolveType maps a WIT type expression to the shared cty value model.
// Option payloads map to their inner type (absence is a null value);
// variant and result shapes have no static cty form and surface as the
// dynamic pseudo-type.
func (p *parser) resolveType(expr string) cty.Type {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "string", "char":
		return cty.String
	case "bool":
		return cty.Bool
	case "u8", "u16", "u32", "u64", "s8", "s16", "s32", "s64", "float32", "float64":
		return cty.Number
	}

	switch {
	case strings.HasPrefix(expr, "list<") && strings.HasSuffix(expr, ">"):
		return cty.List(p.resolveType(expr[5 : len(expr)-1]))
	case strings.HasPrefix(expr, "option<") && strings.HasSuffix(expr, ">"):
		return p.resolveType(expr[7 : len(expr)-1])
	case strings.HasPrefix(expr, "tuple<") && strings.HasSuffix(expr, ">"):
		var elems []cty.Type
		for _, raw := range splitTop(expr[6 : len(expr)-1]) {
			elems = append(elems, p.resolveType(strings.TrimSpace(raw)))
		}
		return cty.Tuple(elems)
	}

	if ty, ok := p.records[expr]; ok {
		return ty
	}
	return cty.DynamicPseudoType
}

// splitTop splits a comma-separated list at the top nesting level, so
// "a: string, b: list<tuple<u32, u32>>" yields two entries.
func splitTop(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<', '(', '{':
			depth++
		case '>', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, s[start:])
	}
	return parts
}
