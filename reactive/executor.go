package reactive

import "github.com/kbukum/streamkit/stream"

// executor applies mutations one at a time in submission order. do
// returns once the mutation has run, except when called from inside a
// running mutation, for example from a change listener: that mutation is
// queued and runs after the current one.
type executor struct {
	ops *stream.Stream[func()]
}

func newExecutor(name string) executor {
	ops := stream.New[func()](stream.WithName(name + ".ops"))
	ops.Listen(func(op func()) { op() })
	return executor{ops: ops}
}

func (e executor) do(op func()) error {
	return e.ops.Push(op)
}

func (e executor) close() {
	e.ops.Close()
}
