package lasterr

// Frame models one caller's sequence of native calls and the last-error
// register that goes with it.
//
// Every Invoke clears the register before the call and sets it on failure, the
// same discipline as resetting errno to 0 before getpwent(3). Capture only
// reflects the most recent Invoke: any call made through the frame in between
// replaces the value. A Frame is owned by one goroutine.
type Frame struct {
	last Code
	err  error
}

// Invoke runs fn and reports whether it succeeded.
func (f *Frame) Invoke(fn func() error) bool {
	f.last = None
	f.err = nil
	err := fn()
	if err == nil {
		return true
	}
	f.err = err
	f.last = Capture(err)
	return false
}

// Capture returns the register as left by the last Invoke. It never resets it.
func (f *Frame) Capture() Code {
	return f.last
}

// Err returns the error of the last Invoke, or nil if it succeeded.
func (f *Frame) Err() error {
	return f.err
}
