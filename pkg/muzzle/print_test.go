package muzzle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReferences(t *testing.T) {
	refs := []*Reference{
		NewReferenceBuilder("com.example.Foo").
			AddFlags(FlagPublic, FlagNonFinal).
			SetSuperName("com.example.Base").
			AddInterfaces("com.example.I").
			AddSource("com.example.Advice", 12).
			AddField(nil, []Flag{FlagNonStatic, FlagProtectedOrHigher}, "count", "I", false).
			AddMethod(nil, []Flag{FlagPublic}, "bar", "()V").
			Build(),
		NewReferenceBuilder("com.example.Bar").Build(),
	}

	var buf bytes.Buffer
	require.NoError(t, PrintReferences(&buf, refs))

	want := `PUBLIC NON_FINAL com.example.Foo
  extends com.example.Base
  implements com.example.I
  Sources:
    at: com.example.Advice:12
  Field: NON_STATIC PROTECTED_OR_HIGHER count I
  Method: PUBLIC bar()V
com.example.Bar
`
	assert.Equal(t, want, buf.String())
}
