//go:build !cgo || !linux

package acctview

// NativeLookup needs cgo on Linux; elsewhere every call reports
// ErrUnsupported and callers fall back to FileLookup.
type NativeLookup struct{}

func NewNativeLookup() (*NativeLookup, error) {
	return nil, ErrUnsupported
}

func (NativeLookup) UserByName(string) (*Passwd, error)   { return nil, ErrUnsupported }
func (NativeLookup) UserByID(uint32) (*Passwd, error)     { return nil, ErrUnsupported }
func (NativeLookup) ShadowByName(string) (*Shadow, error) { return nil, ErrUnsupported }
func (NativeLookup) GroupByName(string) (*Group, error)   { return nil, ErrUnsupported }
func (NativeLookup) GroupByID(uint32) (*Group, error)     { return nil, ErrUnsupported }
