package glsllib_test

import (
	"testing"

	"github.com/soypat/glgraph/glbuild"
	"github.com/soypat/glgraph/glbuild/glsllib"
)

func TestHelpersParse(t *testing.T) {
	seen := make(map[string]bool)
	for _, src := range glsllib.All() {
		sf, err := glbuild.MakeShaderFunction([]byte(src))
		if err != nil {
			t.Fatalf("%q: %s", src, err)
		}
		if seen[sf.Name] {
			t.Errorf("duplicate helper %q", sf.Name)
		}
		seen[sf.Name] = true
		if sf.Name[:3] != "glg" {
			t.Errorf("helper %q lacks glg prefix", sf.Name)
		}
	}
}
