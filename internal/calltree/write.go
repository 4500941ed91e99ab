package calltree

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/prettymuchbryce/calltrace/internal/report"
)

// writeField writes `"key": value` at the current indentation. prefix is
// written between indentation and key, "- " opens a sequence item.
func (l *Listener) writeField(prefix, key string, value any) {
	l.buf.WriteString(strings.Repeat(" ", l.indentation))
	l.buf.WriteString(prefix)
	l.buf.WriteString(quote(key))
	l.buf.WriteByte(':')
	l.writeValue(value)
}

// writeItem writes a sequence item `- value` at the current indentation.
func (l *Listener) writeItem(value any) {
	l.buf.WriteString(strings.Repeat(" ", l.indentation))
	l.buf.WriteByte('-')
	l.writeValue(value)
}

// writeValue completes the line started by writeField or writeItem.
// Collections continue on the following lines one level deeper; nil and
// empty collections leave the field bare.
func (l *Listener) writeValue(value any) {
	if value == nil {
		l.buf.WriteByte('\n')
		return
	}
	if s, ok := scalar(value); ok {
		l.buf.WriteByte(' ')
		l.buf.WriteString(s)
		l.buf.WriteByte('\n')
		return
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Map:
		l.buf.WriteByte('\n')
		keys := make([]string, 0, v.Len())
		values := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			values[k] = iter.Value().Interface()
		}
		sort.Strings(keys)
		l.indentation += indentStep
		for _, k := range keys {
			l.writeField("", k, values[k])
		}
		l.indentation -= indentStep
	case reflect.Slice, reflect.Array:
		l.buf.WriteByte('\n')
		l.indentation += indentStep
		for i := 0; i < v.Len(); i++ {
			l.writeItem(v.Index(i).Interface())
		}
		l.indentation -= indentStep
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			l.buf.WriteByte('\n')
			return
		}
		l.writeValue(v.Elem().Interface())
	default:
		l.buf.WriteByte(' ')
		l.buf.WriteString(quote(fmt.Sprint(value)))
		l.buf.WriteByte('\n')
	}
}

// scalar renders strings quoted and numbers unquoted.
func scalar(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return quote(v), true
	case int:
		return strconv.Itoa(v), true
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(v).Int(), 10), true
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(v).Uint(), 10), true
	case float32:
		return formatFloat(float64(v), 32), true
	case float64:
		return formatFloat(v, 64), true
	case fmt.Stringer:
		return quote(v.String()), true
	case error:
		return quote(v.Error()), true
	}
	return "", false
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return quote(strconv.FormatFloat(f, 'g', -1, bits))
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func quote(s string) string {
	return `"` + report.Escape(s) + `"`
}
