package value

// ObjType tags the heap object variants listed in spec §3.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjList
	ObjBytes
	ObjDict
	ObjRange
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjFile
	ObjPointer
	ObjModule
	ObjNative
)

func (t ObjType) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjList:
		return "list"
	case ObjBytes:
		return "bytes"
	case ObjDict:
		return "dict"
	case ObjRange:
		return "range"
	case ObjFunction:
		return "function"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	case ObjFile:
		return "file"
	case ObjPointer:
		return "ptr"
	case ObjModule:
		return "module"
	case ObjNative:
		return "function"
	}
	return "object"
}

// Object is implemented by every heap-allocated Blade value. Trace reports
// every Value an object directly references, for the collector's mark
// phase (spec §4.C: "each object type has a known field set"). Finalize
// runs during sweep for objects that own a native resource (files,
// pointers, modules); it is a no-op for everything else.
type Object interface {
	ObjType() ObjType
	String() string
	Trace(mark func(Value))
	Finalize() error

	// Header bookkeeping, promoted from the embedded Header struct.
	Marked() bool
	SetMarked(bool)
	Stale() int
	BumpStale()
	ResetStale()
	Next() Object
	SetNext(Object)
}

// Header is embedded by every concrete Object implementation. It carries
// the GC bookkeeping spec §3 assigns to "every heap object": the mark bit,
// the stale counter (generations survived while pinned on the stack), and
// the intrusive next-object link.
type Header struct {
	marked bool
	stale  int
	next   Object
}

func (h *Header) Marked() bool     { return h.marked }
func (h *Header) SetMarked(m bool) { h.marked = m }
func (h *Header) Stale() int       { return h.stale }
func (h *Header) BumpStale()       { h.stale++ }
func (h *Header) ResetStale()      { h.stale = 0 }
func (h *Header) Next() Object     { return h.next }
func (h *Header) SetNext(o Object) { h.next = o }

// NoFinalize is embedded by object types that own no native resource.
// Exported so pkg/object's concrete types (which live in a different
// package than Header) can embed it too.
type NoFinalize struct{}

func (NoFinalize) Finalize() error { return nil }
