package dcom

import (
	"context"
	"fmt"
)

// Object is a reference to an activated remote object.
type Object interface {
	// IID returns the interface the reference is narrowed to.
	IID() GUID

	// QueryInterface asks the remote object for another interface.
	QueryInterface(ctx context.Context, iid GUID) (Object, error)
}

// Dispatch is an Object exposing automation (IDispatch) method calls.
type Dispatch interface {
	Object

	// Invoke calls a named method with positional arguments and returns the
	// result list. Optional() marks omitted positions.
	Invoke(ctx context.Context, method string, args ...Variant) ([]Variant, error)
}

// ComServer is a stub for one class on one remote host, reached over a
// session's authenticated connection.
type ComServer interface {
	// CreateInstance instantiates the class and returns its IUnknown.
	CreateInstance(ctx context.Context) (Object, error)

	// Close releases the connection backing the stub.
	Close() error
}

// NarrowDispatch narrows obj to the automation interface.
func NarrowDispatch(obj Object) (Dispatch, error) {
	if obj == nil {
		return nil, NewError("narrow", CodeNoInterface, fmt.Errorf("object reference is nil"))
	}

	disp, ok := obj.(Dispatch)
	if !ok {
		return nil, NewError("narrow", CodeNoInterface, fmt.Errorf("interface %s does not support IDispatch", obj.IID()))
	}

	return disp, nil
}
