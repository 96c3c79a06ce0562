package interpreter

import (
	"bytes"
	"context"
	goerrors "errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"aegis/internal/errors"
	"aegis/internal/scheduler"
	"aegis/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testLogWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTest(t *testing.T, opts ...Option) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	base := []Option{
		WithOutput(&out),
		WithLogger(testLogger(t)),
		WithClock(scheduler.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
	}
	in := New(append(base, opts...)...)
	t.Cleanup(in.Close)
	return in, &out
}

func run(t *testing.T, src string, opts ...Option) (*Interpreter, string) {
	t.Helper()
	in, out := newTest(t, opts...)
	_, err := in.RunSource(context.Background(), src, "test.ae")
	require.NoError(t, err)
	return in, out.String()
}

func global(t *testing.T, in *Interpreter, name string) Value {
	t.Helper()
	v, ok := in.Get(name)
	require.True(t, ok, "global %s is not defined", name)
	return v
}

func runErr(t *testing.T, src string) *Thrown {
	t.Helper()
	in, _ := newTest(t)
	_, err := in.RunSource(context.Background(), src, "test.ae")
	require.Error(t, err)
	var th *Thrown
	require.True(t, goerrors.As(err, &th), "got %T: %v", err, err)
	return th
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{"arithmetic", "set r = 1 + 2 * 3 - 4 / 2", 5.0},
		{"modulo", "set r = 7 % 3", 1.0},
		{"concat number", `set r = "n=" + 4`, "n=4"},
		{"concat lists", "set r = len([1] + [2, 3])", 3.0},
		{"comparison", `set r = "a" < "b" and 2 >= 2`, true},
		{"is alias", "set r = 3 is 3", true},
		{"in list", "set r = 2 in [1, 2]", true},
		{"in map", `set r = "k" in {k: 1}`, true},
		{"in string", `set r = "ell" in "hello"`, true},
		{"zero is truthy", "set r = not 0", false},
		{"null is falsy", "set r = not null", true},
		{"or returns operand", `set r = null or "x"`, "x"},
		{"nor", "set r = false nor false", true},
		{"negative index", "set r = [1, 2, 3][-1]", 3.0},
		{"map property", `set m = {a: {b: 2}}
set r = m.a.b`, 2.0},
		{"missing map key", "set r = {}.nope", nil},
		{"string methods", `set r = " Hi ".trim().upper()`, "HI"},
		{"length", `set r = "abc".length + [1].length`, 4.0},
		{"map list method", "set r = [1, 2, 3].map(x => x * 2).join(\",\")", "2,4,6"},
		{"filter", "set r = len([1, 2, 3, 4].filter(x => x % 2 == 0))", 2.0},
		{"range", "set r = range(1, 4).join(\"\")", "123"},
		{"num", `set r = num("2.5") + 1`, 3.5},
		{"type of instance", "class P {}\nset r = type(new P())", "P"},
		{"structural equality", "set r = [1, {a: 2}] == [1, {a: 2}]", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := run(t, tt.src)
			assert.Equal(t, tt.want, global(t, in, "r"))
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		typ  errors.ErrorType
		msg  string
		line int
	}{
		{"undefined", "set a = 1\nprint(b)", errors.NameError, "undefined variable 'b'", 2},
		{"bad operands", "set a = 1 - \"x\"", errors.TypeError, "unsupported operand types for -: number and string", 1},
		{"not callable", "set a = 1\na()", errors.TypeError, "number is not callable", 2},
		{"division", "set a = 1 / 0", errors.RuntimeError, "division by zero", 1},
		{"missing method", "class A {}\nnew A().go()", errors.NameError, "'A' has no property or method 'go'", 2},
		{"builtin type error", "len(3)", errors.TypeError, "number has no length", 1},
		{"builtin arity", "len()", errors.TypeError, "len() takes 1 argument(s), got 0", 1},
		{"index range", "[1][5]", errors.RuntimeError, "index 5 out of range (length 1)", 1},
		{"assert", `assert 1 == 2, "math broke"`, errors.AssertionError, "math broke", 1},
		{"user throw", `throw "boom"`, errors.UserThrown, "boom", 1},
		{"break outside loop", "break", errors.RuntimeError, "break outside loop", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := runErr(t, tt.src)
			assert.Equal(t, tt.typ, th.Err.Type)
			assert.Equal(t, tt.msg, th.Err.Message)
			assert.Equal(t, tt.line, th.Err.Location.Line)
			assert.Equal(t, "test.ae", th.Err.Location.File)
			assert.NotEmpty(t, th.Err.Source)
		})
	}
}

func TestSetMutatesCapturedBinding(t *testing.T) {
	// Scenario A
	in, _ := run(t, `set x = 5
def f() { set x = x + 1 }
f()`)
	assert.Equal(t, 6.0, global(t, in, "x"))
}

func TestSetDeclaresInInnermostScope(t *testing.T) {
	in, _ := run(t, `def f() {
    set local = 1
    return local
}
set r = f()`)
	assert.Equal(t, 1.0, global(t, in, "r"))
	_, ok := in.Get("local")
	assert.False(t, ok)
}

func TestClosuresShareState(t *testing.T) {
	in, _ := run(t, `def counter() {
    set n = 0
    return fn () {
        set n = n + 1
        return n
    }
}
set c = counter()
c()
c()
set r = c()
set other = counter()()`)
	assert.Equal(t, 3.0, global(t, in, "r"))
	assert.Equal(t, 1.0, global(t, in, "other"))
}

func TestLexicalScoping(t *testing.T) {
	in, _ := run(t, `set v = "global"
def show() { return v }
def caller() {
    let v = "ignored"
    return show()
}
set r = caller()`)
	// caller assigns the existing global, so both read the same binding
	assert.Equal(t, "ignored", global(t, in, "r"))

	in, _ = run(t, `def show() { return seen }
def caller(seen) { return show() }
try { caller(1) } catch (e) { set r = e.type }`)
	assert.Equal(t, "NameError", global(t, in, "r"))
}

func TestControlFlow(t *testing.T) {
	in, out := run(t, `set total = 0
for i in range(10) {
    if (i == 2) { continue }
    if i == 5 { break }
    set total = total + i
}
set n = 0
until n >= 3 { set n = n + 1 }
set w = 10
while (w > 0) { set w = w - 4 }
unless false { print("unless ran") } else { print("no") }
if false { print("a") } however true { print("however ran") } otherwise { print("c") }
for k in {a: 1, b: 2} { print(k) }
for ch in "hi" { print(ch) }`)
	assert.Equal(t, 8.0, global(t, in, "total"))
	assert.Equal(t, 3.0, global(t, in, "n"))
	assert.Equal(t, -2.0, global(t, in, "w"))
	assert.Equal(t, "unless ran\nhowever ran\na\nb\nh\ni\n", out)
}

func TestRecursionAndDepthLimit(t *testing.T) {
	in, _ := run(t, `def fib(n) {
    if n < 2 { return n }
    return fib(n - 1) + fib(n - 2)
}
set r = fib(15)`)
	assert.Equal(t, 610.0, global(t, in, "r"))

	th := runErr(t, "def loop() { return loop() }\nloop()")
	assert.Equal(t, "maximum call depth exceeded", th.Err.Message)
	assert.NotEmpty(t, th.Err.CallStack)
}

func TestTryCatchFinally(t *testing.T) {
	// Scenario C
	in, _ := run(t, `try { throw "boom" } catch (e) { set caught = e } finally { set done = true }`)
	assert.Equal(t, "boom", global(t, in, "caught"))
	assert.Equal(t, true, global(t, in, "done"))
	_, ok := in.Get("e")
	assert.False(t, ok, "catch binding leaks")
}

func TestFinallyRunsExactlyOnce(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		fails bool
	}{
		{"normal", `try { set a = 1 } finally { set count = count + 1 }`, false},
		{"caught", `try { throw 1 } catch (e) { set a = e } finally { set count = count + 1 }`, false},
		{"uncaught", `try { throw 1 } finally { set count = count + 1 }`, true},
		{"catch throws", `try { throw 1 } catch (e) { throw 2 } finally { set count = count + 1 }`, true},
		{"return in flight", `def f() {
    try { return 1 } finally { set count = count + 1 }
}
f()`, false},
		{"break in flight", `for i in [1, 2] {
    try { break } finally { set count = count + 1 }
}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := newTest(t)
			_, err := in.RunSource(context.Background(), "set count = 0\n"+tt.src, "test.ae")
			if tt.fails {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1.0, global(t, in, "count"))
		})
	}
}

func TestFinallyOverridesReturn(t *testing.T) {
	in, _ := run(t, `def f() {
    try { return "try" } finally { return "finally" }
}
set r = f()`)
	assert.Equal(t, "finally", global(t, in, "r"))
}

func TestCatchValues(t *testing.T) {
	in, _ := run(t, `try { missing() } catch (e) { set err = e }
try { assert false } catch (e) { set amsg = e.message }
try { throw {code: 7} } catch (e) { set code = e.code }`)
	err, ok := global(t, in, "err").(*Map)
	require.True(t, ok)
	typ, _ := err.Get("type")
	line, _ := err.Get("line")
	assert.Equal(t, "NameError", typ)
	assert.Equal(t, 1.0, line)
	assert.Equal(t, "assertion failed", global(t, in, "amsg"))
	assert.Equal(t, 7.0, global(t, in, "code"))
}

func TestTypedCatch(t *testing.T) {
	in, _ := run(t, `class NetError {
    def init(msg) { set this.msg = msg }
}
class Timeout(NetError) {}
set r = []
try { 1 + null } catch (e: TypeError) { r.push("type") }
try {
    try { undefined_name } catch (e: TypeError) { r.push("wrong") }
} catch (e: NameError) { r.push("name") }
try { throw new Timeout("slow") } catch (e: NetError) { r.push(e.msg) }`)
	assert.Equal(t, NewList("type", "name", "slow"), global(t, in, "r"))
}

func TestClasses(t *testing.T) {
	// Scenario D plus inheritance details
	in, _ := run(t, `class A {
    def greet() { return "A" }
    def base() { return "base " + this.greet() }
}
class B(A) { def greet() { return "B" } }
set r = new B().greet()
set inherited = new B().base()

class Point {
    constructor(x, y) {
        set this.x = x
        set this.y = y
    }
    static def origin() { return new Point(0, 0) }
    sum() { return this.x + this.y }
}
class Point3 extends Point {
    def init(x, y, z) {
        super.constructor(x, y)
        set this.z = z
    }
    def sum() { return super.sum() + this.z }
}
set p = new Point3(1, 2, 3)
set q = new Point3(4, 5, 6)
set s = p.sum()
set o = Point.origin().sum()
set iso = is_instance(p, "Point") and not is_instance(new A(), Point)`)
	assert.Equal(t, "B", global(t, in, "r"))
	assert.Equal(t, "base B", global(t, in, "inherited"))
	assert.Equal(t, 6.0, global(t, in, "s"))
	assert.Equal(t, 0.0, global(t, in, "o"))
	assert.Equal(t, true, global(t, in, "iso"))

	p := global(t, in, "p").(*Instance)
	q := global(t, in, "q").(*Instance)
	px, _ := p.Fields.Get("x")
	qx, _ := q.Fields.Get("x")
	assert.Equal(t, 1.0, px)
	assert.Equal(t, 4.0, qx)
}

func TestModeSwitch(t *testing.T) {
	in, _ := run(t, `set before = mode()
.mode redteam
set after = mode()`)
	assert.Equal(t, "blue", global(t, in, "before"))
	assert.Equal(t, "red", global(t, in, "after"))
	assert.Equal(t, security.Red, in.Mode())
}

func runValue(t *testing.T, in *Interpreter, src string) *Map {
	t.Helper()
	v, err := in.RunSource(context.Background(), src, "test.ae")
	require.NoError(t, err)
	m, ok := v.(*Map)
	require.True(t, ok, "got %s", ToString(v))
	return m
}

func field(t *testing.T, m *Map, path ...interface{}) Value {
	t.Helper()
	var v Value = m
	for _, p := range path {
		switch k := p.(type) {
		case string:
			mm, ok := v.(*Map)
			require.True(t, ok, "not a map at %v", k)
			v, _ = mm.Get(k)
		case int:
			l, ok := v.(*List)
			require.True(t, ok, "not a list at %d", k)
			v = l.Elements[k]
		}
	}
	return v
}

func TestSentenceStub(t *testing.T) {
	// Scenario B
	in, _ := newTest(t)
	res := runValue(t, in, ".mode blue\nfirewall enable")
	assert.Equal(t, true, field(t, res, "ok"))
	assert.Equal(t, "blue", field(t, res, "mode"))
	assert.Equal(t, true, field(t, res, "outcomes", 0, "stub"))
	assert.Equal(t, "firewall enable", field(t, res, "outcomes", 0, "phrase"))
	assert.Contains(t, field(t, res, "outcomes", 0, "result"), "[stub] firewall enable")
}

func TestScriptHandlers(t *testing.T) {
	in, out := run(t, `set blocked = []
on("blue", "block ip", fn (addr) {
    blocked.push(addr)
    return "blocked " + addr
})
on("any", "isolate", fn (host) { return false })
on("red", "block ip", fn (addr) { throw "red only" })

block ip "10.0.0.1" then { print("then ran") } else { print("else ran") }
isolate "web-1" then { print("isolated") } else { print("isolate failed") }`)
	assert.Equal(t, "then ran\nisolate failed\n", out)

	res := runValue(t, in, `isolate "db" or block ip ("10.0.0." + 2)`)
	assert.Equal(t, true, field(t, res, "ok"))
	assert.Equal(t, "isolate: handler reported failure", field(t, res, "outcomes", 0, "error"))
	assert.Equal(t, "blocked 10.0.0.2", field(t, res, "outcomes", 1, "result"))
	assert.Equal(t, NewList("10.0.0.1", "10.0.0.2"), global(t, in, "blocked"))

	res = runValue(t, in, `block ip "10.9.9.9" unless true`)
	assert.Equal(t, false, field(t, res, "ok"))
	assert.Equal(t, true, field(t, res, "outcomes", 0, "skipped"))
	assert.Len(t, global(t, in, "blocked").(*List).Elements, 2)
}

func TestThrowInHandlerEscalates(t *testing.T) {
	in, _ := run(t, `on("red", "exploit", fn (target) { throw "denied: " + target })
.mode red
try { exploit "host" } catch (e) { set caught = e }`)
	assert.Equal(t, "denied: host", global(t, in, "caught"))
}

func TestLeadingSentenceWithElseChain(t *testing.T) {
	in, _ := run(t, `set seen = []
on("any", "alert", fn (msg) { seen.push(msg) })
set suspicious = false
if suspicious then scan host else alert "clean"
when true then alert "hot"`)
	assert.Equal(t, NewList("clean", "hot"), global(t, in, "seen"))
}

func TestAsyncWithoutAwaitIsSettled(t *testing.T) {
	in, _ := run(t, `async def f() { return 1 }
set p = f()
set state = p.state()`)
	assert.Equal(t, "fulfilled", global(t, in, "state"))
	p := global(t, in, "p").(*scheduler.Promise)
	assert.Equal(t, 1.0, p.Value())
}

func TestAsyncThen(t *testing.T) {
	in, _ := run(t, `async def f() {
    await sleep(0)
    return 1
}
f().then(v => set result = v)`)
	assert.Equal(t, 1.0, global(t, in, "result"))
}

func TestExpressionLambdaDeclaresInDefiningScope(t *testing.T) {
	in, _ := run(t, `set record = x => set seen = x
record(3)
def outer() {
    set g = y => set inner = y * 2
    g(5)
    return inner
}
set got = outer()`)
	assert.Equal(t, 3.0, global(t, in, "seen"))
	assert.Equal(t, 10.0, global(t, in, "got"))
	_, leaked := in.Get("x")
	assert.False(t, leaked, "lambda parameter leaked into globals")
	_, leaked = in.Get("inner")
	assert.False(t, leaked, "set inside outer() must stay local to outer")
}

func TestBlockLambdaKeepsOwnScope(t *testing.T) {
	in, _ := run(t, `set f = x => {
    set local = x
}
f(1)`)
	_, leaked := in.Get("local")
	assert.False(t, leaked)
}

func TestAsyncThenBeforeSettle(t *testing.T) {
	in, _ := run(t, `set result = null
async def f() {
    await sleep(1)
    return 1
}
f().then(v => set result = v)
set early = result`)
	assert.Nil(t, global(t, in, "early"))
	assert.Equal(t, 1.0, global(t, in, "result"))
}

func TestAsyncOrdering(t *testing.T) {
	_, out := run(t, `async def worker(name, delay) {
    print(name + " start")
    await sleep(delay)
    print(name + " done")
    return name
}
set a = worker("a", 2)
set b = worker("b", 1)
print("main")
set both = await all([a, b])
print(both)`)
	assert.Equal(t, "a start\nb start\nmain\nb done\na done\n[\"a\", \"b\"]\n", out)
}

func TestAwaitRejection(t *testing.T) {
	in, _ := run(t, `async def fail() {
    await sleep(0.5)
    throw "bad"
}
async def wrapper() {
    try { return await fail() } catch (e) { return "caught " + e }
}
set r = await wrapper()
set p = promise()
p.reject("nope")
set c = null
p.catch(e => set c = e)`)
	assert.Equal(t, "caught bad", global(t, in, "r"))
	assert.Equal(t, "nope", global(t, in, "c"))
}

func TestTimeoutAndRace(t *testing.T) {
	in, _ := run(t, `set slow = sleep(10)
try { await timeout(slow, 1) } catch (e) { set msg = e.message }
set winner = await race([sleep(3).then(x => "late"), sleep(1).then(x => "early")])
set d = promise()
d.resolve(5)
set got = await d`)
	assert.Equal(t, "timed out after 1s", global(t, in, "msg"))
	assert.Equal(t, "early", global(t, in, "winner"))
	assert.Equal(t, 5.0, global(t, in, "got"))
}

func TestTimeoutDoesNotDelayRun(t *testing.T) {
	in, _ := newTest(t, WithClock(scheduler.RealClock{}))
	start := time.Now()
	_, err := in.RunSource(context.Background(), `set p = timeout(sleep(0), 3)
set v = await p`, "test.ae")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, global(t, in, "v"))
}

func TestAwaitDeadlock(t *testing.T) {
	th := runErr(t, "await promise()")
	assert.Equal(t, errors.RuntimeError, th.Err.Type)
	assert.Contains(t, th.Err.Message, "deadlock")
}

func TestParseErrorsAbortBeforeRunning(t *testing.T) {
	in, out := newTest(t)
	_, err := in.RunSource(context.Background(), "print(\"x\")\nset = 3", "test.ae")
	var se *errors.ScriptError
	require.True(t, goerrors.As(err, &se))
	assert.Equal(t, errors.ParseError, se.Type)
	assert.Empty(t, out.String())
}

func TestContextCancelStopsLoop(t *testing.T) {
	in, _ := newTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.RunSource(ctx, "while true { }", "test.ae")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelfContainingValues(t *testing.T) {
	in, out := run(t, `
set a = [1]
a.push(a)
set m = {name: "m"}
set m["self"] = m
print(a)
print(m)
set same = a == a
set b = [1]
b.push(b)
set twins = a == b
`)
	assert.Equal(t, "[1, [...]]\n{\"name\": \"m\", \"self\": {...}}\n", out)
	assert.Equal(t, true, global(t, in, "same"))
	assert.Equal(t, false, global(t, in, "twins"))
}

func TestEqualRevisitFallsBackToIdentity(t *testing.T) {
	a := NewList(1.0)
	a.Elements = append(a.Elements, a)
	b := NewList(1.0)
	b.Elements = append(b.Elements, b)

	assert.True(t, Equal(a, a))
	assert.False(t, Equal(a, b))
	assert.True(t, Equal(NewList(a), NewList(a)))

	_, err := ToHost(NewList(a))
	assert.ErrorIs(t, err, ErrCyclic)
	v, err := ToHost(NewList(NewList(1.0), NewList(1.0)))
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{[]interface{}{1.0}, []interface{}{1.0}}, v)
}
