package dcom

import "fmt"

// VariantType is the automation VARTYPE of a Variant.
type VariantType uint16

const (
	VTEmpty    VariantType = 0
	VTI4       VariantType = 3
	VTBStr     VariantType = 8
	VTDispatch VariantType = 9
	VTError    VariantType = 10
	VTBool     VariantType = 11
	VTUnknown  VariantType = 13
)

// String returns the VARTYPE name.
func (t VariantType) String() string {
	switch t {
	case VTEmpty:
		return "VT_EMPTY"
	case VTI4:
		return "VT_I4"
	case VTBStr:
		return "VT_BSTR"
	case VTDispatch:
		return "VT_DISPATCH"
	case VTError:
		return "VT_ERROR"
	case VTBool:
		return "VT_BOOL"
	case VTUnknown:
		return "VT_UNKNOWN"
	default:
		return fmt.Sprintf("VT(%d)", uint16(t))
	}
}

// Variant is an automation argument or result value.
type Variant struct {
	vt    VariantType
	value any
}

// Optional returns the "parameter omitted" marker: VT_ERROR carrying
// DISP_E_PARAMNOTFOUND.
func Optional() Variant {
	return Variant{vt: VTError, value: CodeParamNotFound}
}

// String wraps s as a VT_BSTR.
func String(s string) Variant {
	return Variant{vt: VTBStr, value: s}
}

// Int32 wraps v as a VT_I4.
func Int32(v int32) Variant {
	return Variant{vt: VTI4, value: v}
}

// Bool wraps v as a VT_BOOL.
func Bool(v bool) Variant {
	return Variant{vt: VTBool, value: v}
}

// ObjectVariant wraps a remote object reference. Dispatch-capable objects are
// tagged VT_DISPATCH, everything else VT_UNKNOWN.
func ObjectVariant(obj Object) Variant {
	if _, ok := obj.(Dispatch); ok {
		return Variant{vt: VTDispatch, value: obj}
	}
	return Variant{vt: VTUnknown, value: obj}
}

// Type returns the VARTYPE.
func (v Variant) Type() VariantType {
	return v.vt
}

// IsOptional reports whether v is the omitted-parameter marker.
func (v Variant) IsOptional() bool {
	code, ok := v.value.(uint32)
	return v.vt == VTError && ok && code == CodeParamNotFound
}

// AsString returns the string payload of a VT_BSTR.
func (v Variant) AsString() (string, bool) {
	s, ok := v.value.(string)
	return s, ok && v.vt == VTBStr
}

// AsInt32 returns the integer payload of a VT_I4.
func (v Variant) AsInt32() (int32, bool) {
	i, ok := v.value.(int32)
	return i, ok && v.vt == VTI4
}

// AsBool returns the payload of a VT_BOOL.
func (v Variant) AsBool() (bool, bool) {
	b, ok := v.value.(bool)
	return b, ok && v.vt == VTBool
}

// AsObject returns the object reference of a VT_DISPATCH or VT_UNKNOWN.
func (v Variant) AsObject() (Object, bool) {
	if v.vt != VTDispatch && v.vt != VTUnknown {
		return nil, false
	}
	obj, ok := v.value.(Object)
	return obj, ok && obj != nil
}

func (v Variant) String() string {
	switch {
	case v.IsOptional():
		return "<optional>"
	case v.vt == VTEmpty:
		return "<empty>"
	case v.vt == VTDispatch || v.vt == VTUnknown:
		return fmt.Sprintf("<%s>", v.vt)
	default:
		return fmt.Sprintf("%v", v.value)
	}
}
