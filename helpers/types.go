package helpers

import "reflect"

// Typeof resolves the type name of $v, pointers are prefixed with *
func Typeof(v interface{}) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}

	if t.Kind() == reflect.Ptr {
		return "*" + t.Elem().Name()
	}

	return t.Name()
}
