package closure

import "strings"

var fixtureGreeting = "Hello"

const fixturePunctuation = "!"

func fixtureShout(s string) string {
	return strings.ToUpper(s) + fixturePunctuation
}

// fixtureGreet greets someone.
func fixtureGreet(name string) string {
	return fixtureShout(fixtureGreeting + ", " + name)
}

func fixtureSummarize(name string) string {
	return fixtureGreet(name) + " Bye."
}

func fixtureEven(n int) bool {
	if n == 0 {
		return true
	}
	return fixtureOdd(n - 1)
}

func fixtureOdd(n int) bool {
	if n == 0 {
		return false
	}
	return fixtureEven(n - 1)
}

func fixtureCommented(x int) int {
	// doubled on purpose
	return x * 2
}

func fixtureShadow(fixtureGreeting string) string {
	return fixtureGreeting
}

type fixtureCounter struct {
	n int
}

func (c *fixtureCounter) Add(d int) int {
	c.n += d
	return c.n
}

func (c *fixtureCounter) Reset() {
	c.n = 0
}

func fixtureUseCounter() int {
	c := &fixtureCounter{n: 1}
	return c.Add(2)
}

var fixtureHandle = fixtureWrap(fixtureGreet)

func fixtureWrap(fn func(string) string) func(string) string {
	return fn
}

func fixtureCallHandle() string {
	return fixtureHandle("Ada")
}

var fixtureFactor = 3

var fixtureTriple = func(x int) int {
	return x * fixtureFactor
}

func fixtureMakeAdder(n int) func(int) int {
	return func(x int) int {
		return x + n
	}
}

var fixtureNested = func() func() int {
	return func() int {
		return 7
	}
}
