package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/muzzle"
)

func writeClass(t *testing.T, dir string, b *classfile.Builder) {
	t.Helper()
	internal, err := b.ClassFile().ClassName()
	require.NoError(t, err)
	data, err := b.Bytes()
	require.NoError(t, err)
	path := filepath.Join(dir, filepath.FromSlash(internal)+".class")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// writeProject lays out a module whose advice reads com.lib.Config.name and
// a config file with one directive per library directory.
func writeProject(t *testing.T, emptyAssertPass bool) string {
	t.Helper()
	root := t.TempDir()
	moduleDir := filepath.Join(root, "module")
	goodDir := filepath.Join(root, "lib-good")
	emptyDir := filepath.Join(root, "lib-empty")
	require.NoError(t, os.MkdirAll(emptyDir, 0o755))

	advice := classfile.NewBuilder("io/opentelemetry/javaagent/instrumentation/cli/ConfigAdvice")
	field := advice.FieldRef("com/lib/Config", "name", "Ljava/lang/String;")
	advice.MethodWithCode(classfile.AccPublic|classfile.AccStatic, "onExit", "()V",
		[]byte{classfile.OpGetstatic, byte(field >> 8), byte(field), 0x57, 0xB1})
	writeClass(t, moduleDir, advice)

	library := classfile.NewBuilder("com/lib/Config")
	library.Field(classfile.AccPublic|classfile.AccStatic, "name", "Ljava/lang/String;")
	writeClass(t, goodDir, library)

	cfg := fmt.Sprintf(`bootstrap:
  disabled: true
modules:
  - name: cli
    classpath: [%q]
    advice: ["io.opentelemetry.javaagent.instrumentation.cli.ConfigAdvice"]
directives:
  - name: good
    classpath: [%q]
    assert_pass: true
  - name: empty
    classpath: [%q]
    assert_pass: %t
logging:
  level: warn
`, moduleDir, goodDir, emptyDir, emptyAssertPass)
	path := filepath.Join(root, "muzzle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerifyCommand(t *testing.T) {
	out, err := executeCommand(t, "verify", "-c", writeProject(t, false))
	require.NoError(t, err)
	assert.Contains(t, out, "Loader<directive:good> cli: PASSED (expected pass: true)")
	assert.Contains(t, out, "Loader<directive:empty> cli: FAILED (1 mismatches) (expected pass: false)")
}

func TestVerifyCommandFailure(t *testing.T) {
	out, err := executeCommand(t, "verify", "-c", writeProject(t, true))
	require.Error(t, err)
	assert.ErrorIs(t, err, muzzle.ErrVerificationFailed)
	assert.Contains(t, err.Error(), "Missing class com.lib.Config")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestVerifyCommandMissingConfig(t *testing.T) {
	_, err := executeCommand(t, "verify", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestPrintReferencesCommand(t *testing.T) {
	out, err := executeCommand(t, "print-references", "-c", writeProject(t, false))
	require.NoError(t, err)
	assert.Contains(t, out, "cli:\n")
	assert.Contains(t, out, "com.lib.Config\n")
	assert.Contains(t, out, "Field: PROTECTED_OR_HIGHER STATIC name Ljava/lang/String;")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gomuzzle "+Version)
	assert.Contains(t, out, "Go Version:")
}
