package projection

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

var jsonMarshalerType = reflect.TypeFor[json.Marshaler]()

// SchemaVersion derives a stable identifier from the projection name, an
// explicit version number and the field layout of the state type.
func SchemaVersion(name string, version int, stateType reflect.Type) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\x00%d\x00", name, version)
	writeTypeSignature(&sb, stateType, map[reflect.Type]bool{})

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

func writeTypeSignature(sb *strings.Builder, t reflect.Type, seen map[reflect.Type]bool) {
	if t == nil {
		sb.WriteString("nil")
		return
	}
	if t.Implements(jsonMarshalerType) || reflect.PointerTo(t).Implements(jsonMarshalerType) {
		sb.WriteString(t.String())
		return
	}

	switch t.Kind() {
	case reflect.Pointer:
		sb.WriteByte('*')
		writeTypeSignature(sb, t.Elem(), seen)
	case reflect.Slice:
		sb.WriteString("[]")
		writeTypeSignature(sb, t.Elem(), seen)
	case reflect.Array:
		fmt.Fprintf(sb, "[%d]", t.Len())
		writeTypeSignature(sb, t.Elem(), seen)
	case reflect.Map:
		sb.WriteString("map[")
		writeTypeSignature(sb, t.Key(), seen)
		sb.WriteByte(']')
		writeTypeSignature(sb, t.Elem(), seen)
	case reflect.Struct:
		if seen[t] {
			sb.WriteString(t.String())
			return
		}
		seen[t] = true
		sb.WriteString("struct{")
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			fmt.Fprintf(sb, "%s %q ", f.Name, f.Tag.Get("json"))
			writeTypeSignature(sb, f.Type, seen)
			sb.WriteByte(';')
		}
		sb.WriteByte('}')
		delete(seen, t)
	default:
		sb.WriteString(t.Kind().String())
	}
}
