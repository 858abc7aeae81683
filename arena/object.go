package arena

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"unsafe"
)

// Destroyer is implemented by arena-placed types that need finalization.
// Destroy runs when the object's destructor is invoked by a rollback.
type Destroyer interface {
	Destroy()
}

// Make places count values of T in the arena. Each value is zeroed, passed
// to ctor if ctor is non-nil, and gets one destructor. The destructor calls
// Destroy when *T implements Destroyer and then zeroes the value.
//
// Allocation is all-or-nothing: when the values do not fit, nothing is
// constructed or registered and ErrCapacityExceeded is returned.
//
// T must not contain Go pointers (including strings, slices, maps,
// interfaces and funcs); such types fail with ErrPointerType.
func Make[T any](a *Arena, count int, ctor func(*T)) ([]T, error) {
	return place(a, count, ctor, nil)
}

// MakeOne places a single value of T. See Make.
func MakeOne[T any](a *Arena, ctor func(*T)) (*T, error) {
	objs, err := place(a, 1, ctor, nil)
	if err != nil {
		return nil, err
	}
	return &objs[0], nil
}

// MakeWithFinalizer is like Make, but every destructor calls fin instead of
// Destroy. fin may capture state of the caller.
func MakeWithFinalizer[T any](a *Arena, count int, ctor, fin func(*T)) ([]T, error) {
	return place(a, count, ctor, fin)
}

func place[T any](a *Arena, count int, ctor, fin func(*T)) ([]T, error) {
	if err := a.checkOpen("Make"); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	typ := reflect.TypeFor[T]()
	if containsPointers(typ) {
		return nil, fmt.Errorf("%w: %s", ErrPointerType, typ)
	}

	size := int(typ.Size())
	if size > 0 && count > math.MaxInt/size {
		return nil, fmt.Errorf("%w: %d x %d bytes", ErrCapacityExceeded, count, size)
	}
	start, err := a.reserve(size*count, typ.Align())
	if err != nil {
		return nil, err
	}

	var objs []T
	if size == 0 {
		objs = make([]T, count)
	} else {
		clear(a.buf[start : start+size*count])
		ptr := unsafe.Add(unsafe.Pointer(unsafe.SliceData(a.buf)), start)
		objs = unsafe.Slice((*T)(ptr), count)
	}

	for i := range objs {
		p := &objs[i]
		if ctor != nil {
			ctor(p)
		}
		a.dtors.pushBack(destructor{offset: start + i*size, fn: finalizer(p, fin)})
	}
	return objs, nil
}

func finalizer[T any](p *T, fin func(*T)) func() {
	return func() {
		if fin != nil {
			fin(p)
		} else if d, ok := any(p).(Destroyer); ok {
			d.Destroy()
		}
		var zero T
		*p = zero
	}
}

var pointerTypes sync.Map // reflect.Type -> bool

// containsPointers reports whether values of t hold memory the garbage
// collector must trace.
func containsPointers(t reflect.Type) bool {
	if v, ok := pointerTypes.Load(t); ok {
		return v.(bool)
	}
	has := scanPointers(t)
	pointerTypes.Store(t, has)
	return has
}

func scanPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && scanPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if scanPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
