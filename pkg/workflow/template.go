package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/davidthor/pypes/pkg/values"
	"github.com/zclconf/go-cty/cty"
)

var tokenRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// interpolate substitutes {{step.output}} tokens from prior step outputs.
// String outputs substitute literally; any other shape substitutes its JSON
// encoding. Unresolvable paths render as UNRESOLVED(path) so a typo
// surfaces in the produced argument rather than vanishing.
func interpolate(template string, outputs map[string]cty.Value) string {
	return tokenRe.ReplaceAllStringFunc(template, func(token string) string {
		path := tokenRe.FindStringSubmatch(token)[1]
		parts := strings.SplitN(path, ".", 2)
		if len(parts) == 2 && parts[1] == "output" {
			if val, ok := outputs[parts[0]]; ok {
				if val.Type() == cty.String && !val.IsNull() {
					return val.AsString()
				}
				if data, err := values.ToJSON(val); err == nil {
					return string(data)
				}
			}
		}
		return fmt.Sprintf("UNRESOLVED(%s)", path)
	})
}
