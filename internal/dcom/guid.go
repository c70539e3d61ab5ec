package dcom

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GUID identifies a COM class (CLSID) or interface (IID).
//
// The value is held in canonical (RFC 4122, big-endian) order: Data1, Data2
// and Data3 are the first three fields read big-endian.
type GUID uuid.UUID

// Well-known class and interface identifiers.
var (
	// CLSIDWbemLocator is the WbemScripting.SWbemLocator class.
	CLSIDWbemLocator = MustParseGUID("76A6415B-CB41-11d1-8B02-00600806D9B6")

	IIDUnknown  = MustParseGUID("00000000-0000-0000-C000-000000000046")
	IIDDispatch = MustParseGUID("00020400-0000-0000-C000-000000000046")

	// CLSIDWbemLevel1Login is the remotely activatable WMI login class that
	// serves locator requests.
	CLSIDWbemLevel1Login = MustParseGUID("8BC3F05E-D86B-11D0-A075-00C04FB68820")

	IIDWbemLevel1Login = MustParseGUID("F309AD18-D86A-11D0-A075-00C04FB68820")
	IIDWbemServices    = MustParseGUID("9556DC99-828C-11CF-A37E-00AA003240C7")
)

// ParseGUID parses a GUID in hyphenated, braced or compact form.
func ParseGUID(s string) (GUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return GUID{}, fmt.Errorf("GUID string cannot be empty")
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("invalid GUID format %q: %w", s, err)
	}

	return GUID(u), nil
}

// MustParseGUID is like ParseGUID but panics on malformed input.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

// String returns the upper-case hyphenated form used by Windows tooling.
func (g GUID) String() string {
	return strings.ToUpper(uuid.UUID(g).String())
}

// IsZero reports whether g is the nil GUID.
func (g GUID) IsZero() bool {
	return uuid.UUID(g) == uuid.Nil
}

// Data1 returns the first GUID field.
func (g GUID) Data1() uint32 {
	return binary.BigEndian.Uint32(g[0:4])
}

// Data2 returns the second GUID field.
func (g GUID) Data2() uint16 {
	return binary.BigEndian.Uint16(g[4:6])
}

// Data3 returns the third GUID field.
func (g GUID) Data3() uint16 {
	return binary.BigEndian.Uint16(g[6:8])
}

// Data4 returns a copy of the trailing eight bytes.
func (g GUID) Data4() []byte {
	return append([]byte(nil), g[8:]...)
}

// GUIDFromFields assembles a GUID from its four fields. data4 shorter than
// eight bytes is zero-padded.
func GUIDFromFields(data1 uint32, data2, data3 uint16, data4 []byte) GUID {
	var g GUID
	binary.BigEndian.PutUint32(g[0:4], data1)
	binary.BigEndian.PutUint16(g[4:6], data2)
	binary.BigEndian.PutUint16(g[6:8], data3)
	copy(g[8:], data4)
	return g
}
