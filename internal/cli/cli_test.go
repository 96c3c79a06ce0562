package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// workspace moves into a temp dir so no aegis.yaml leaks in, and writes
// the given scripts there.
func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

func TestVersion(t *testing.T) {
	workspace(t, nil)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aegis v"+Version)
}

func TestRunSingleScript(t *testing.T) {
	workspace(t, map[string]string{
		"hello.ae": "set who = \"world\"\nprint(\"hello \" + who)\n",
	})
	out, _, err := execute(t, "run", "hello.ae")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
}

func TestRunModeFlag(t *testing.T) {
	workspace(t, map[string]string{"mode.ae": "print(mode())\n"})
	out, _, err := execute(t, "run", "--mode", "red", "mode.ae")
	require.NoError(t, err)
	assert.Equal(t, "red\n", out)

	_, _, err = execute(t, "run", "--mode", "purple", "mode.ae")
	assert.ErrorContains(t, err, `invalid mode "purple"`)
}

func TestRunSeveralScripts(t *testing.T) {
	workspace(t, map[string]string{
		"a.ae": "print(\"a\")\n",
		"b.ae": "print(\"b\")\nthrow \"boom\"\n",
		"c.ae": "print(\"c\")\n",
	})
	out, errOut, err := execute(t, "run", "a.ae", "b.ae", "c.ae")
	assert.ErrorIs(t, err, errScriptFailed)
	assert.Equal(t, "a\nb\nc\n", out)
	assert.Contains(t, errOut, "b.ae: UserThrown: boom")
	assert.Contains(t, errOut, `2 | throw "boom"`)
}

func TestRunVirtualClock(t *testing.T) {
	workspace(t, map[string]string{
		"wait.ae": "async def later() {\n  await sleep(3600)\n  return \"done\"\n}\nprint(await later())\n",
	})
	out, _, err := execute(t, "run", "--clock", "virtual", "wait.ae")
	require.NoError(t, err)
	assert.Equal(t, "done\n", out)
}

func TestCheck(t *testing.T) {
	workspace(t, map[string]string{
		"good.ae": "set x = 1\n",
		"bad.ae":  "set x = (1\n",
	})
	out, errOut, err := execute(t, "check", "good.ae", "bad.ae")
	assert.ErrorIs(t, err, errScriptFailed)
	assert.Contains(t, out, "good.ae: ok")
	assert.Contains(t, errOut, "bad.ae: ParseError")
}

func TestTokensAndAST(t *testing.T) {
	workspace(t, map[string]string{"p.ae": "set x = 1 + 2\n"})
	out, _, err := execute(t, "tokens", "p.ae")
	require.NoError(t, err)
	assert.Contains(t, out, "[SET] 'set' 1:1")

	out, _, err = execute(t, "ast", "p.ae")
	require.NoError(t, err)
	assert.Contains(t, out, "set x = (1 + 2)")
}

func TestHandlers(t *testing.T) {
	workspace(t, nil)
	out, _, err := execute(t, "handlers")
	require.NoError(t, err)
	assert.Contains(t, out, "block ip")
	assert.Contains(t, out, "exploit")
	assert.Contains(t, out, "any")
}

func TestAuditRoundTrip(t *testing.T) {
	dir := workspace(t, map[string]string{
		"defend.ae": "block ip \"10.0.0.9\" and monitor traffic\n",
	})
	db := filepath.Join(dir, "state", "audit.db")

	_, _, err := execute(t, "audit", "--audit-path", db)
	assert.ErrorContains(t, err, "no audit database")

	_, _, err = execute(t, "run", "--audit", "--audit-path", db, "defend.ae")
	require.NoError(t, err)

	out, _, err := execute(t, "audit", "--audit-path", db, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "block ip")
	assert.Contains(t, out, "monitor")
	assert.Contains(t, out, "blue")
}
